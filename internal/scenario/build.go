package scenario

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/mechatronics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/roadnetwork"
	"github.com/kilianp07/fleetsim/core/simstate"
	"github.com/kilianp07/fleetsim/core/update"
	"github.com/kilianp07/fleetsim/core/vehiclestate"
)

// DefaultChargers is the catalogue used when a scenario lists none.
var DefaultChargers = []model.Charger{
	{ID: "LEVEL_1", EnergyType: model.EnergyElectric, RateKW: 3.3},
	{ID: "LEVEL_2", EnergyType: model.EnergyElectric, RateKW: 7.2},
	{ID: "DCFC", EnergyType: model.EnergyElectric, RateKW: 50},
}

// DefaultMechatronics is the vehicle model used when a scenario lists none.
var DefaultMechatronics = mechatronics.BEVConfig{
	ID:                 "leaf_50",
	BatteryCapacityKWh: 50,
	IdleKWhPerHour:     0.8,
	NominalWhPerMile:   225,
}

// Scenario is a ready-to-run input set. Requests are not in Sim yet; they
// are meant for an update.RequestFeed.
type Scenario struct {
	Name           string
	Mechatronics   mechatronics.Registry
	Chargers       map[string]model.Charger
	Sim            *simstate.SimulationState
	Requests       []model.Request
	RateStructure  *model.RateStructure
	ChargingPrices []update.PriceChange
}

// Build places every entity of f into a new simulation state. Vehicles start
// Idle. All entity errors are collected before returning.
func Build(f *File, cfg simstate.Config, rn roadnetwork.RoadNetwork) (*Scenario, error) {
	sim, err := simstate.New(cfg, rn)
	if err != nil {
		return nil, err
	}
	chargers, err := buildChargers(f.Chargers)
	if err != nil {
		return nil, err
	}
	mechs, err := buildMechatronics(f.Mechatronics)
	if err != nil {
		return nil, err
	}
	b := &builder{
		sim:     sim,
		rn:      rn,
		res:     sim.LocationResolution(),
		members: invertFleets(f.Fleets),
	}

	for _, s := range f.Stations {
		b.station(s, chargers)
	}
	for _, base := range f.Bases {
		b.base(base)
	}
	for _, v := range f.Vehicles {
		b.vehicle(v, mechs)
	}
	var requests []model.Request
	for _, r := range f.Requests {
		if req, ok := b.request(r); ok {
			requests = append(requests, req)
		}
	}
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("scenario %s: %w", f.Name, errors.Join(b.errs...))
	}
	return &Scenario{
		Name:           f.Name,
		Mechatronics:   mechs,
		Chargers:       chargers,
		Sim:            b.sim,
		Requests:       requests,
		RateStructure:  f.RateStructure,
		ChargingPrices: f.ChargingPrices,
	}, nil
}

func buildChargers(in []model.Charger) (map[string]model.Charger, error) {
	if len(in) == 0 {
		in = DefaultChargers
	}
	out := make(map[string]model.Charger, len(in))
	for _, c := range in {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := out[c.ID]; dup {
			return nil, fmt.Errorf("charger %s listed twice", c.ID)
		}
		out[c.ID] = c
	}
	return out, nil
}

func buildMechatronics(in []mechatronics.BEVConfig) (mechatronics.Registry, error) {
	if len(in) == 0 {
		in = []mechatronics.BEVConfig{DefaultMechatronics}
	}
	out := make(mechatronics.Registry, len(in))
	for _, cfg := range in {
		bev, err := mechatronics.NewBEV(cfg)
		if err != nil {
			return nil, err
		}
		if _, dup := out[bev.ID()]; dup {
			return nil, fmt.Errorf("mechatronics %s listed twice", bev.ID())
		}
		out[bev.ID()] = bev
	}
	return out, nil
}

// invertFleets maps "kind/id" to the fleets that name it.
func invertFleets(fleets map[string]Fleet) map[string][]string {
	names := make([]string, 0, len(fleets))
	for name := range fleets {
		names = append(names, name)
	}
	sort.Strings(names)
	out := map[string][]string{}
	for _, name := range names {
		fl := fleets[name]
		for _, id := range fl.Vehicles {
			out["vehicle/"+id] = append(out["vehicle/"+id], name)
		}
		for _, id := range fl.Stations {
			out["station/"+id] = append(out["station/"+id], name)
		}
		for _, id := range fl.Bases {
			out["base/"+id] = append(out["base/"+id], name)
		}
	}
	return out
}

type builder struct {
	sim     *simstate.SimulationState
	rn      roadnetwork.RoadNetwork
	res     int
	members map[string][]string
	errs    []error
}

func (b *builder) fail(kind, id string, err error) {
	b.errs = append(b.errs, fmt.Errorf("%s %s: %w", kind, id, err))
}

func (b *builder) position(lat, lon float64) (model.Position, error) {
	g, err := geo.FromLatLng(lat, lon, b.res)
	if err != nil {
		return model.Position{}, err
	}
	return b.rn.StationaryLocation(g), nil
}

func (b *builder) membership(kind, id string, own []string) (model.Membership, error) {
	ids := append(append([]string(nil), own...), b.members[kind+"/"+id]...)
	return model.NewMembership(ids...)
}

func (b *builder) station(s Station, chargers map[string]model.Charger) {
	for cid := range s.Chargers {
		if _, ok := chargers[cid]; !ok {
			b.fail("station", s.ID, fmt.Errorf("%w: %s", model.ErrChargerNotFound, cid))
			return
		}
	}
	pos, err := b.position(s.Lat, s.Lon)
	if err != nil {
		b.fail("station", s.ID, err)
		return
	}
	m, err := b.membership("station", s.ID, s.FleetIDs)
	if err != nil {
		b.fail("station", s.ID, err)
		return
	}
	st, err := model.NewStation(s.ID, pos, s.Chargers, s.Prices, m)
	if err != nil {
		b.fail("station", s.ID, err)
		return
	}
	next, err := b.sim.AddStation(st)
	if err != nil {
		b.fail("station", s.ID, err)
		return
	}
	b.sim = next
}

func (b *builder) base(in Base) {
	if in.StationID != "" {
		if _, ok := b.sim.Station(in.StationID); !ok {
			b.fail("base", in.ID, fmt.Errorf("unknown station %s", in.StationID))
			return
		}
	}
	pos, err := b.position(in.Lat, in.Lon)
	if err != nil {
		b.fail("base", in.ID, err)
		return
	}
	m, err := b.membership("base", in.ID, in.FleetIDs)
	if err != nil {
		b.fail("base", in.ID, err)
		return
	}
	base, err := model.NewBase(in.ID, pos, in.StallCount, in.StationID, m)
	if err != nil {
		b.fail("base", in.ID, err)
		return
	}
	next, err := b.sim.AddBase(base)
	if err != nil {
		b.fail("base", in.ID, err)
		return
	}
	b.sim = next
}

func (b *builder) vehicle(in Vehicle, mechs mechatronics.Registry) {
	mid := in.MechatronicsID
	if mid == "" {
		mid = DefaultMechatronics.ID
	}
	mech, ok := mechs.Get(mid)
	if !ok {
		b.fail("vehicle", in.ID, fmt.Errorf("unknown mechatronics id %q", mid))
		return
	}
	if in.InitialSOC < 0 || in.InitialSOC > 1 {
		b.fail("vehicle", in.ID, fmt.Errorf("initial soc %v out of [0,1]", in.InitialSOC))
		return
	}
	pos, err := b.position(in.Lat, in.Lon)
	if err != nil {
		b.fail("vehicle", in.ID, err)
		return
	}
	m, err := b.membership("vehicle", in.ID, in.FleetIDs)
	if err != nil {
		b.fail("vehicle", in.ID, err)
		return
	}
	seats := in.TotalSeats
	if seats == 0 {
		seats = DefaultSeats
	}
	next, err := b.sim.AddVehicle(model.Vehicle{
		ID:             in.ID,
		MechatronicsID: mid,
		Energy:         mech.InitialEnergy(in.InitialSOC),
		Position:       pos,
		State:          vehiclestate.NewIdle(in.ID),
		Membership:     m,
		TotalSeats:     seats,
	})
	if err != nil {
		b.fail("vehicle", in.ID, err)
		return
	}
	b.sim = next
}

func (b *builder) request(in Request) (model.Request, bool) {
	dep, err := model.ParseSimTime(in.DepartureTime)
	if err != nil {
		b.fail("request", in.ID, err)
		return model.Request{}, false
	}
	origin, err := b.position(in.OLat, in.OLon)
	if err != nil {
		b.fail("request", in.ID, err)
		return model.Request{}, false
	}
	dest, err := b.position(in.DLat, in.DLon)
	if err != nil {
		b.fail("request", in.ID, err)
		return model.Request{}, false
	}
	m, err := model.NewMembership(in.FleetIDs...)
	if err != nil {
		b.fail("request", in.ID, err)
		return model.Request{}, false
	}
	passengers := in.Passengers
	if passengers == 0 {
		passengers = 1
	}
	r, err := model.NewRequest(in.ID, origin, dest, dep, passengers, in.Value, m)
	if err != nil {
		b.fail("request", in.ID, err)
		return model.Request{}, false
	}
	return r, true
}
