package simstate

import (
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
)

func (s *SimulationState) bounds(cfg geo.SearchConfig) geo.SearchConfig {
	cfg.SearchResolution = s.searchRes
	return cfg
}

// NearestVehicle runs a ring search over the vehicle search index. The
// search resolution of cfg is replaced by the state's own.
func (s *SimulationState) NearestVehicle(g geo.ID, cfg geo.SearchConfig, valid func(model.Vehicle) bool) (model.Vehicle, bool, error) {
	return geo.Nearest(g, s.vehicles.geoIndex(), s.bounds(cfg), valid)
}

func (s *SimulationState) NearestRequest(g geo.ID, cfg geo.SearchConfig, valid func(model.Request) bool) (model.Request, bool, error) {
	return geo.Nearest(g, s.requests.geoIndex(), s.bounds(cfg), valid)
}

func (s *SimulationState) NearestStation(g geo.ID, cfg geo.SearchConfig, valid func(model.Station) bool) (model.Station, bool, error) {
	return geo.Nearest(g, s.stations.geoIndex(), s.bounds(cfg), valid)
}

func (s *SimulationState) NearestBase(g geo.ID, cfg geo.SearchConfig, valid func(model.Base) bool) (model.Base, bool, error) {
	return geo.Nearest(g, s.bases.geoIndex(), s.bounds(cfg), valid)
}
