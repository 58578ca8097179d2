// Package mechatronics models how vehicles spend and gain energy.
package mechatronics

import (
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/roadnetwork"
)

// Mechatronics is the energy model selected by a vehicle's mechatronics id.
type Mechatronics interface {
	ID() string
	// ValidCharger reports whether the vehicle can use the charger at all.
	ValidCharger(c model.Charger) bool
	// InitialEnergy builds an energy map for a state of charge in [0, 1].
	InitialEnergy(soc float64) model.Energy
	SOC(v model.Vehicle) float64
	RangeRemainingKm(v model.Vehicle) float64
	IsEmpty(v model.Vehicle) bool
	IsFull(v model.Vehicle) bool
	// ConsumeEnergy spends the energy needed to drive r.
	ConsumeEnergy(v model.Vehicle, r roadnetwork.Route) model.Vehicle
	// Idle spends stationary energy for the duration.
	Idle(v model.Vehicle, seconds int64) model.Vehicle
	// AddEnergy charges for at most seconds and returns the time actually
	// spent charging.
	AddEnergy(v model.Vehicle, c model.Charger, seconds int64) (model.Vehicle, float64)
}

// Registry maps mechatronics ids to models.
type Registry map[string]Mechatronics

// Get looks up a model by id.
func (r Registry) Get(id string) (Mechatronics, bool) {
	m, ok := r[id]
	return m, ok
}
