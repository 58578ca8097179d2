package roadnetwork

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
)

// DefaultSpeedKmph is the travel speed of the haversine network.
const DefaultSpeedKmph = 40.0

// HaversineConfig configures a HaversineRoadNetwork.
type HaversineConfig struct {
	SpeedKmph float64 `json:"speed_kmph"`
	// Geofence lists the cells (any resolution) that make up the simulated
	// area. Empty means unbounded.
	Geofence []string `json:"geofence"`
}

// HaversineRoadNetwork drives in straight lines at a constant speed.
type HaversineRoadNetwork struct {
	speed    float64
	fence    map[geo.ID]struct{}
	fenceRes int
}

// NewHaversine builds the network. Geofence cells must share one resolution.
func NewHaversine(cfg HaversineConfig) (*HaversineRoadNetwork, error) {
	speed := cfg.SpeedKmph
	if speed <= 0 {
		speed = DefaultSpeedKmph
	}
	n := &HaversineRoadNetwork{speed: speed}
	if len(cfg.Geofence) == 0 {
		return n, nil
	}
	n.fence = make(map[geo.ID]struct{}, len(cfg.Geofence))
	for i, s := range cfg.Geofence {
		g, err := geo.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("geofence: %w", err)
		}
		if i == 0 {
			n.fenceRes = g.Resolution()
		} else if g.Resolution() != n.fenceRes {
			return nil, fmt.Errorf("geofence: mixed resolutions %d and %d", n.fenceRes, g.Resolution())
		}
		n.fence[g] = struct{}{}
	}
	return n, nil
}

// SpeedKmph is the constant travel speed.
func (n *HaversineRoadNetwork) SpeedKmph() float64 { return n.speed }

// Route returns one straight link, or nothing for co-located endpoints.
func (n *HaversineRoadNetwork) Route(origin, destination model.Position) Route {
	if origin.GeoID == destination.GeoID {
		return Route{}
	}
	id := origin.GeoID.String() + "-" + destination.GeoID.String()
	return Route{NewLink(id, origin.GeoID, destination.GeoID, n.speed, 0)}
}

// StationaryLocation places g on a zero-length link.
func (n *HaversineRoadNetwork) StationaryLocation(g geo.ID) model.Position {
	return model.StationaryPosition(g)
}

// WithinGeofence checks the parent of g at the fence resolution.
func (n *HaversineRoadNetwork) WithinGeofence(g geo.ID) bool {
	if n.fence == nil {
		return true
	}
	p, err := g.Parent(n.fenceRes)
	if err != nil {
		return false
	}
	_, ok := n.fence[p]
	return ok
}
