package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/instruction"
	"github.com/kilianp07/fleetsim/core/mechatronics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/core/roadnetwork"
	"github.com/kilianp07/fleetsim/core/simstate"
	"github.com/kilianp07/fleetsim/core/vehiclestate"
)

func cellAt(dLat float64) geo.ID {
	return geo.MustFromLatLng(39.7392+dLat, -104.9903, 15)
}

type world struct {
	t    *testing.T
	sim  *simstate.SimulationState
	env  *environment.Environment
	sink *report.MemorySink
	bev  *mechatronics.BEV
}

func newWorld(t *testing.T) *world {
	t.Helper()
	rn, err := roadnetwork.NewHaversine(roadnetwork.HaversineConfig{})
	require.NoError(t, err)
	sim, err := simstate.New(simstate.Config{}, rn)
	require.NoError(t, err)
	bev, err := mechatronics.NewBEV(mechatronics.BEVConfig{ID: "bev", BatteryCapacityKWh: 50, NominalWhPerMile: 225})
	require.NoError(t, err)
	sink := &report.MemorySink{}
	env, err := environment.New(mechatronics.Registry{"bev": bev}, map[string]model.Charger{
		"dcfc": {ID: "dcfc", EnergyType: model.EnergyElectric, RateKW: 50},
		"l2":   {ID: "l2", EnergyType: model.EnergyElectric, RateKW: 7.2},
	}, sink, nil, environment.Params{})
	require.NoError(t, err)
	return &world{t: t, sim: sim, env: env, sink: sink, bev: bev}
}

func (w *world) vehicle(id string, g geo.ID, soc float64, s model.VehicleState) {
	w.t.Helper()
	if s == nil {
		s = vehiclestate.NewIdle(id)
	}
	sim, err := w.sim.AddVehicle(model.Vehicle{
		ID:             id,
		MechatronicsID: "bev",
		Energy:         w.bev.InitialEnergy(soc),
		Position:       model.StationaryPosition(g),
		State:          s,
		TotalSeats:     4,
	})
	require.NoError(w.t, err)
	w.sim = sim
}

func (w *world) request(id string, g geo.ID, value float64) {
	w.t.Helper()
	r, err := model.NewRequest(id, model.StationaryPosition(g), model.StationaryPosition(cellAt(0.05)), 0, 1, value, model.Membership{})
	require.NoError(w.t, err)
	w.sim, err = w.sim.AddRequest(r)
	require.NoError(w.t, err)
}

func (w *world) station(id string, g geo.ID, counts map[string]int) {
	w.t.Helper()
	st, err := model.NewStation(id, model.StationaryPosition(g), counts, nil, model.Membership{})
	require.NoError(w.t, err)
	w.sim, err = w.sim.AddStation(st)
	require.NoError(w.t, err)
}

func (w *world) base(id string, g geo.ID, stalls int, stationID string) {
	w.t.Helper()
	b, err := model.NewBase(id, model.StationaryPosition(g), stalls, stationID, model.Membership{})
	require.NoError(w.t, err)
	w.sim, err = w.sim.AddBase(b)
	require.NoError(w.t, err)
}

type fixed []instruction.Instruction

func (f fixed) Generate(*simstate.SimulationState, *environment.Environment) ([]instruction.Instruction, error) {
	return f, nil
}

func TestChainLastWins(t *testing.T) {
	c := Chain{
		fixed{instruction.Idle{Vehicle: "a"}, instruction.Idle{Vehicle: "b"}},
		fixed{instruction.DispatchBase{Vehicle: "a", Base: "b1"}, instruction.Idle{Vehicle: "c"}},
	}
	out, err := c.Generate(nil, nil)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, instruction.DispatchBase{Vehicle: "a", Base: "b1"}, out[0])
	assert.Equal(t, "b", out[1].VehicleID())
	assert.Equal(t, "c", out[2].VehicleID())
}

func TestTripAssignmentServesValuableRequestsFirst(t *testing.T) {
	w := newWorld(t)
	w.vehicle("v1", cellAt(0), 0.8, nil)
	w.vehicle("v2", cellAt(0.02), 0.8, nil)
	w.request("cheap", cellAt(0.019), 5)
	w.request("rich", cellAt(0.018), 20)

	a, err := NewTripAssignment(Config{})
	require.NoError(t, err)
	out, err := a.Generate(w.sim, w.env)
	require.NoError(t, err)

	assert.Equal(t, []instruction.Instruction{
		instruction.DispatchTrip{Vehicle: "v2", Request: "rich"},
		instruction.DispatchTrip{Vehicle: "v1", Request: "cheap"},
	}, out)
}

func TestTripAssignmentSkipsIneligibleVehicles(t *testing.T) {
	w := newWorld(t)
	w.vehicle("low", cellAt(0), 0.02, nil)
	w.vehicle("busy", cellAt(0.001), 0.9, vehiclestate.NewChargingStation("busy", "s1", "dcfc"))
	w.request("r1", cellAt(0.002), 10)

	a, err := NewTripAssignment(Config{})
	require.NoError(t, err)
	out, err := a.Generate(w.sim, w.env)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestChargingFleetManagerPicksFastCharger(t *testing.T) {
	w := newWorld(t)
	w.vehicle("low", cellAt(0), 0.05, nil)
	w.vehicle("fine", cellAt(0.001), 0.9, nil)
	w.station("s1", cellAt(0.01), map[string]int{"l2": 2, "dcfc": 1})

	out, err := NewChargingFleetManager(Config{}).Generate(w.sim, w.env)
	require.NoError(t, err)
	assert.Equal(t, []instruction.Instruction{
		instruction.DispatchStation{Vehicle: "low", Station: "s1", Charger: "dcfc"},
	}, out)
	assert.Len(t, w.sink.Reports(report.RefuelSearchEvent), 1)
}

func TestChargingFleetManagerWithoutStations(t *testing.T) {
	w := newWorld(t)
	w.vehicle("low", cellAt(0), 0.05, nil)
	out, err := NewChargingFleetManager(Config{}).Generate(w.sim, w.env)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBaseFleetManager(t *testing.T) {
	w := newWorld(t)
	w.station("s1", cellAt(0.03), map[string]int{"l2": 1, "dcfc": 1})
	w.base("full", cellAt(0.001), 0, "")
	w.base("b1", cellAt(0.01), 2, "s1")

	w.vehicle("idle", cellAt(0), 0.9, nil)
	v, _ := w.sim.Vehicle("idle")
	var err error
	w.sim, err = w.sim.ModifyVehicle(v.AddIdleTime(4000))
	require.NoError(t, err)
	w.vehicle("parked", cellAt(0.01), 0.3, vehiclestate.NewReserveBase("parked", "b1"))
	w.vehicle("topped", cellAt(0.01), 0.95, vehiclestate.NewReserveBase("topped", "b1"))

	out, err := NewBaseFleetManager(Config{}).Generate(w.sim, w.env)
	require.NoError(t, err)
	assert.Equal(t, []instruction.Instruction{
		instruction.DispatchBase{Vehicle: "idle", Base: "b1"},
		instruction.ChargeBase{Vehicle: "parked", Base: "b1", Charger: "l2"},
	}, out)
}

func TestNewDefaultChain(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	assert.Len(t, c, 3)

	_, err = New(Config{Generators: []string{"nope"}})
	assert.Error(t, err)
	_, err = New(Config{ValidDispatchStates: []string{"flying"}})
	assert.Error(t, err)
}
