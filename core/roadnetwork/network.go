package roadnetwork

import (
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
)

// RoadNetwork answers routing questions for a simulation.
type RoadNetwork interface {
	// Route returns the links from origin to destination; empty when they
	// coincide or no path exists.
	Route(origin, destination model.Position) Route
	// StationaryLocation positions an off-road entity at a cell.
	StationaryLocation(g geo.ID) model.Position
	// WithinGeofence reports whether the cell is part of the simulated area.
	WithinGeofence(g geo.ID) bool
}
