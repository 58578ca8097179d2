// Package update advances a simulation through time. Update functions bring
// external input into the state at the start of each tick; the Runner chains
// them with the dispatcher, the instruction layer and the vehicle state
// machine.
package update

import (
	"context"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/simstate"
)

// Function ingests external input at the start of a tick.
//
// A function may return a state together with an error when part of its
// work succeeded; the Runner keeps that state and reports the error. A nil
// state leaves the simulation as it was.
type Function interface {
	Name() string
	Update(ctx context.Context, sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error)
}

// Func adapts a plain function to Function.
type Func struct {
	Label string
	Fn    func(ctx context.Context, sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error)
}

func (f Func) Name() string { return f.Label }

func (f Func) Update(ctx context.Context, sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return f.Fn(ctx, sim, env)
}
