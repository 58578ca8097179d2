package model

import "github.com/kilianp07/fleetsim/core/geo"

// Position places an entity on the road network.
type Position struct {
	LinkID string `json:"link_id"`
	GeoID  geo.ID `json:"geoid"`
}

// StationaryPosition is a position not attached to any road link.
func StationaryPosition(g geo.ID) Position {
	return Position{LinkID: g.String() + "-" + g.String(), GeoID: g}
}
