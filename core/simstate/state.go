// Package simstate holds the immutable snapshot of a running simulation.
//
// Every write returns a new *SimulationState and leaves the receiver
// untouched, so callers may keep older snapshots around freely. Entities are
// kept in persistent sorted maps, which makes iteration order deterministic
// and copies cheap. Each entity collection carries two spatial indices: a
// location index keyed by the entity's own geoid and a search index keyed by
// its parent at the search resolution.
package simstate

import (
	"fmt"

	"github.com/benbjohnson/immutable"

	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/roadnetwork"
)

const (
	DefaultTimestepSeconds    = 60
	DefaultLocationResolution = 15
	DefaultSearchResolution   = 7
)

// Config carries the clock and the index resolutions of a new state.
type Config struct {
	StartTime          model.SimTime `json:"start_time"`
	TimestepSeconds    int64         `json:"timestep_duration_seconds"`
	LocationResolution int           `json:"sim_h3_resolution"`
	SearchResolution   int           `json:"sim_h3_search_resolution"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.TimestepSeconds == 0 {
		c.TimestepSeconds = DefaultTimestepSeconds
	}
	if c.LocationResolution == 0 {
		c.LocationResolution = DefaultLocationResolution
	}
	if c.SearchResolution == 0 {
		c.SearchResolution = DefaultSearchResolution
	}
}

// Validate checks the resolutions are ordered and the timestep is positive.
func (c Config) Validate() error {
	if c.TimestepSeconds <= 0 {
		return fmt.Errorf("timestep must be positive, got %d", c.TimestepSeconds)
	}
	if c.LocationResolution < 0 || c.LocationResolution > 15 {
		return fmt.Errorf("location resolution %d out of range [0,15]", c.LocationResolution)
	}
	if c.SearchResolution < 0 || c.SearchResolution > c.LocationResolution {
		return fmt.Errorf("search resolution %d must be within [0,%d]", c.SearchResolution, c.LocationResolution)
	}
	return nil
}

// SimulationState is a value snapshot. The zero value is not usable; build
// one with New.
type SimulationState struct {
	roadNetwork roadnetwork.RoadNetwork
	simTime     model.SimTime
	timestep    int64
	locRes      int
	searchRes   int

	vehicles collection[model.Vehicle]
	requests collection[model.Request]
	stations collection[model.Station]
	bases    collection[model.Base]

	applied *immutable.SortedMap[string, string]
}

// New returns an empty state. cfg is defaulted before validation.
func New(cfg Config, rn roadnetwork.RoadNetwork) (*SimulationState, error) {
	if rn == nil {
		return nil, fmt.Errorf("road network is nil")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SimulationState{
		roadNetwork: rn,
		simTime:     cfg.StartTime,
		timestep:    cfg.TimestepSeconds,
		locRes:      cfg.LocationResolution,
		searchRes:   cfg.SearchResolution,
		vehicles:    newCollection[model.Vehicle](),
		requests:    newCollection[model.Request](),
		stations:    newCollection[model.Station](),
		bases:       newCollection[model.Base](),
		applied:     immutable.NewSortedMap[string, string](stringComparer{}),
	}, nil
}

func (s *SimulationState) clone() *SimulationState {
	c := *s
	return &c
}

func (s *SimulationState) SimTime() model.SimTime { return s.simTime }
func (s *SimulationState) TimestepSeconds() int64 { return s.timestep }
func (s *SimulationState) LocationResolution() int { return s.locRes }
func (s *SimulationState) SearchResolution() int { return s.searchRes }
func (s *SimulationState) RoadNetwork() roadnetwork.RoadNetwork { return s.roadNetwork }

// Tick advances the clock by one timestep.
func (s *SimulationState) Tick() *SimulationState {
	c := s.clone()
	c.simTime = s.simTime.Add(s.timestep)
	return c
}

// Vehicle looks up a vehicle by id.
func (s *SimulationState) Vehicle(id string) (model.Vehicle, bool) { return s.vehicles.get(id) }

// Vehicles returns all vehicles sorted by id.
func (s *SimulationState) Vehicles() []model.Vehicle { return s.vehicles.values() }

// VehicleIDs returns every vehicle id in ascending order.
func (s *SimulationState) VehicleIDs() []string { return s.vehicles.ids() }

// VehiclesWhere returns the vehicles accepted by keep, sorted by id.
func (s *SimulationState) VehiclesWhere(keep func(model.Vehicle) bool) []model.Vehicle {
	return filter(s.vehicles.values(), keep)
}

// VehiclesAt lists the ids of vehicles located exactly at g.
func (s *SimulationState) VehiclesAt(g geo.ID) []string { return s.vehicles.loc.ids(g) }

func (s *SimulationState) Request(id string) (model.Request, bool) { return s.requests.get(id) }
func (s *SimulationState) Requests() []model.Request { return s.requests.values() }
func (s *SimulationState) RequestIDs() []string { return s.requests.ids() }
func (s *SimulationState) RequestsAt(g geo.ID) []string { return s.requests.loc.ids(g) }

func (s *SimulationState) RequestsWhere(keep func(model.Request) bool) []model.Request {
	return filter(s.requests.values(), keep)
}

func (s *SimulationState) Station(id string) (model.Station, bool) { return s.stations.get(id) }
func (s *SimulationState) Stations() []model.Station { return s.stations.values() }
func (s *SimulationState) StationIDs() []string { return s.stations.ids() }
func (s *SimulationState) StationsAt(g geo.ID) []string { return s.stations.loc.ids(g) }

func (s *SimulationState) StationsWhere(keep func(model.Station) bool) []model.Station {
	return filter(s.stations.values(), keep)
}

func (s *SimulationState) Base(id string) (model.Base, bool) { return s.bases.get(id) }
func (s *SimulationState) Bases() []model.Base { return s.bases.values() }
func (s *SimulationState) BaseIDs() []string { return s.bases.ids() }
func (s *SimulationState) BasesAt(g geo.ID) []string { return s.bases.loc.ids(g) }

func (s *SimulationState) BasesWhere(keep func(model.Base) bool) []model.Base {
	return filter(s.bases.values(), keep)
}

// AppliedInstructions maps vehicle ids to a description of the instruction
// applied to them during the current tick.
func (s *SimulationState) AppliedInstructions() map[string]string {
	out := make(map[string]string, s.applied.Len())
	itr := s.applied.Iterator()
	for !itr.Done() {
		k, v, _ := itr.Next()
		out[k] = v
	}
	return out
}

// WithAppliedInstruction records the instruction applied to a vehicle.
func (s *SimulationState) WithAppliedInstruction(vehicleID, description string) *SimulationState {
	c := s.clone()
	c.applied = s.applied.Set(vehicleID, description)
	return c
}

// ClearAppliedInstructions forgets the previous tick's instructions.
func (s *SimulationState) ClearAppliedInstructions() *SimulationState {
	if s.applied.Len() == 0 {
		return s
	}
	c := s.clone()
	c.applied = immutable.NewSortedMap[string, string](stringComparer{})
	return c
}

// VehicleAtRequest reports whether the vehicle sits on the request's origin
// cell.
func (s *SimulationState) VehicleAtRequest(vehicleID, requestID string) bool {
	v, ok := s.vehicles.get(vehicleID)
	if !ok {
		return false
	}
	r, ok := s.requests.get(requestID)
	return ok && v.GeoID() == r.GeoID()
}

func (s *SimulationState) VehicleAtStation(vehicleID, stationID string) bool {
	v, ok := s.vehicles.get(vehicleID)
	if !ok {
		return false
	}
	st, ok := s.stations.get(stationID)
	return ok && v.GeoID() == st.GeoID()
}

func (s *SimulationState) VehicleAtBase(vehicleID, baseID string) bool {
	v, ok := s.vehicles.get(vehicleID)
	if !ok {
		return false
	}
	b, ok := s.bases.get(baseID)
	return ok && v.GeoID() == b.GeoID()
}

func filter[T any](in []T, keep func(T) bool) []T {
	if keep == nil {
		return in
	}
	out := in[:0]
	for _, e := range in {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
