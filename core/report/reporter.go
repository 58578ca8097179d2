package report

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kilianp07/fleetsim/core/factory"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/mechatronics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/simstate"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

// Config selects which reports are kept and where they go.
type Config struct {
	// Types limits the reports kept; empty keeps every type.
	Types    []string               `json:"types"`
	Handlers []factory.ModuleConfig `json:"handlers"`
}

// Validate rejects unknown report types.
func (c Config) Validate() error {
	for _, t := range c.Types {
		if _, err := ParseType(t); err != nil {
			return err
		}
	}
	return nil
}

// Reporter buffers the reports of the tick in progress and hands them to
// every handler on Flush. It is safe to File from several goroutines but a
// Reporter belongs to a single run.
type Reporter struct {
	runID    string
	enabled  map[Type]bool
	handlers []Handler
	bus      *eventbus.TypedBus[Batch]
	mechs    mechatronics.Registry
	log      logger.Logger

	mu      sync.Mutex
	pending []Report
}

// Option customises a Reporter.
type Option func(*Reporter)

// WithBus publishes every flushed batch on bus.
func WithBus(bus *eventbus.TypedBus[Batch]) Option {
	return func(r *Reporter) { r.bus = bus }
}

// WithMechatronics lets vehicle_state reports carry the state of charge.
func WithMechatronics(m mechatronics.Registry) Option {
	return func(r *Reporter) { r.mechs = m }
}

// WithLogger sets the logger used for handler failures.
func WithLogger(l logger.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.log = l
		}
	}
}

// NewReporter builds a reporter for one run.
func NewReporter(runID string, types []string, handlers []Handler, opts ...Option) (*Reporter, error) {
	r := &Reporter{runID: runID, handlers: handlers, log: logger.NopLogger{}}
	if len(types) > 0 {
		r.enabled = make(map[Type]bool, len(types))
		for _, s := range types {
			t, err := ParseType(s)
			if err != nil {
				return nil, err
			}
			r.enabled[t] = true
		}
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// RunID identifies the run the reporter belongs to.
func (r *Reporter) RunID() string { return r.runID }

// Enabled reports whether reports of type t are kept.
func (r *Reporter) Enabled(t Type) bool {
	return r.enabled == nil || r.enabled[t]
}

// File queues a report for the current tick.
func (r *Reporter) File(rep Report) {
	if !r.Enabled(rep.Type) && !r.needsForDerived(rep.Type) {
		return
	}
	r.mu.Lock()
	r.pending = append(r.pending, rep)
	r.mu.Unlock()
}

// charge events are kept for the station load aggregate even when they are
// not themselves reported.
func (r *Reporter) needsForDerived(t Type) bool {
	return t == VehicleChargeEvent && r.Enabled(StationLoadEvent)
}

// Flush closes the current tick: it appends the state reports derived from
// sim, publishes the batch and passes it to each handler. Handler failures
// are logged and joined; they never stop the other handlers.
func (r *Reporter) Flush(ctx context.Context, sim *simstate.SimulationState) error {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	reports := make([]Report, 0, len(pending))
	for _, rep := range pending {
		if r.Enabled(rep.Type) {
			reports = append(reports, rep)
		}
	}
	if r.Enabled(StationLoadEvent) {
		reports = append(reports, stationLoad(sim.SimTime(), pending)...)
	}
	if r.Enabled(VehicleState) {
		for _, v := range sim.Vehicles() {
			reports = append(reports, r.vehicleState(sim.SimTime(), v))
		}
	}
	if r.Enabled(StationState) {
		for _, st := range sim.Stations() {
			reports = append(reports, stationState(sim.SimTime(), st))
		}
	}

	batch := Batch{RunID: r.runID, SimTime: int64(sim.SimTime()), Reports: reports}
	if r.bus != nil {
		r.bus.Publish(batch)
	}

	var errs []error
	for _, h := range r.handlers {
		if err := h.Handle(ctx, batch); err != nil {
			r.log.Errorf("report handler %T failed at %d: %v", h, batch.SimTime, err)
			errs = append(errs, fmt.Errorf("%T: %w", h, err))
		}
		if sh, ok := h.(StateHandler); ok {
			if err := sh.HandleState(ctx, r.runID, sim); err != nil {
				r.log.Errorf("state handler %T failed at %d: %v", h, batch.SimTime, err)
				errs = append(errs, fmt.Errorf("%T: %w", h, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every handler.
func (r *Reporter) Close() error {
	var errs []error
	for _, h := range r.handlers {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reporter) vehicleState(at model.SimTime, v model.Vehicle) Report {
	lat, lng := v.GeoID().LatLng()
	data := map[string]any{
		"vehicle_id":           v.ID,
		"vehicle_state":        v.State.Kind().String(),
		"instance_id":          v.State.InstanceID(),
		"geoid":                v.GeoID().String(),
		"lat":                  lat,
		"lon":                  lng,
		"balance":              v.Balance,
		"distance_traveled_km": v.DistanceTraveledKm,
		"passengers":           len(v.Passengers),
		"membership":           v.Membership.String(),
	}
	for t, kwh := range v.Energy {
		data["energy_"+string(t)] = kwh
	}
	if m, ok := r.mechs.Get(v.MechatronicsID); ok {
		data["soc"] = m.SOC(v)
		data["range_km"] = m.RangeRemainingKm(v)
	}
	return New(VehicleState, at, data)
}

func stationState(at model.SimTime, st model.Station) Report {
	chargers := make(map[string]any, len(st.Chargers))
	for _, cid := range st.ChargerIDs() {
		cs := st.Chargers[cid]
		chargers[cid] = map[string]any{
			"total":         cs.Total,
			"available":     cs.Available,
			"enqueued":      cs.Enqueued,
			"price_per_kwh": cs.PricePerKWh,
		}
	}
	return New(StationState, at, map[string]any{
		"station_id": st.ID,
		"geoid":      st.GeoID().String(),
		"balance":    st.Balance,
		"chargers":   chargers,
	})
}

// stationLoad sums the energy delivered per station during the tick.
func stationLoad(at model.SimTime, reports []Report) []Report {
	load := make(map[string]float64)
	for _, rep := range reports {
		if rep.Type != VehicleChargeEvent {
			continue
		}
		sid := rep.Str("station_id")
		if sid == "" {
			continue
		}
		kwh, _ := rep.Float("energy")
		load[sid] += kwh
	}
	out := make([]Report, 0, len(load))
	for _, sid := range sortedKeys(load) {
		out = append(out, New(StationLoadEvent, at, map[string]any{
			"station_id":   sid,
			"energy":       load[sid],
			"energy_units": "kwh",
		}))
	}
	return out
}
