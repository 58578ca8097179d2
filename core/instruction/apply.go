package instruction

import (
	"errors"
	"fmt"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/core/simstate"
	"github.com/kilianp07/fleetsim/core/vehiclestate"
)

// ErrTransitionNotAllowed is returned for instructions the adjacency table
// forbids, such as redirecting a vehicle that carries passengers.
var ErrTransitionNotAllowed = errors.New("transition not allowed")

// Apply carries out one instruction. It returns nil, nil when the instruction
// is a no-op: the target is gone, the vehicle already is in that state, or the
// state refused entry. sim is never modified.
func Apply(sim *simstate.SimulationState, env *environment.Environment, ins Instruction) (*simstate.SimulationState, error) {
	const op = "apply_instruction"
	wrap := func(err error) error {
		return &simstate.OpError{Op: op, EntityID: ins.VehicleID(), SimTime: sim.SimTime(), Err: err}
	}

	v, err := lookupVehicle(sim, ins.VehicleID())
	if err != nil {
		return nil, wrap(err)
	}
	cur, err := vehiclestate.Of(v)
	if err != nil {
		return nil, wrap(err)
	}
	if !vehiclestate.CanTransition(cur.Kind(), ins.Kind()) {
		if cur.Kind() == ins.Kind() {
			return nil, nil
		}
		return nil, wrap(fmt.Errorf("%w: %s to %s", ErrTransitionNotAllowed, cur.Kind(), ins.Kind()))
	}

	next, err := ins.Build(sim, env)
	if err != nil {
		return nil, wrap(err)
	}
	if next == nil {
		return nil, nil
	}
	out, err := vehiclestate.Transition(sim, env, cur, next)
	if err != nil || out == nil {
		return nil, err
	}

	env.File(report.New(report.Instruction, sim.SimTime(), map[string]any{
		"vehicle_id":  ins.VehicleID(),
		"from":        cur.Kind().String(),
		"to":          ins.Kind().String(),
		"instruction": ins.String(),
	}))
	return out.WithAppliedInstruction(ins.VehicleID(), ins.String()), nil
}

// ApplyAll applies instructions in order. Failed instructions are collected
// and skipped; the returned state reflects every successful one.
func ApplyAll(sim *simstate.SimulationState, env *environment.Environment, ins []Instruction) (*simstate.SimulationState, []error) {
	var errs []error
	for _, i := range ins {
		next, err := Apply(sim, env, i)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if next != nil {
			sim = next
		}
	}
	return sim, errs
}
