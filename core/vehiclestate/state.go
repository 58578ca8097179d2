// Package vehiclestate implements the vehicle state machine. Each state knows
// how to be entered, advanced by one tick and left; every method takes a
// simulation snapshot and returns a new one.
//
// A nil state with a nil error means "no change": the precondition was not
// met and the caller may try again later. Errors are reserved for broken
// data such as a missing vehicle or station.
package vehiclestate

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/mechatronics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/core/roadnetwork"
	"github.com/kilianp07/fleetsim/core/simstate"
)

var (
	ErrMembership       = errors.New("membership does not grant access")
	ErrLocationMismatch = errors.New("location mismatch")
	ErrInvalidRoute     = errors.New("route does not match its endpoints")
	ErrInvalidCharger   = errors.New("charger cannot be used by vehicle")
	ErrInvalidState     = errors.New("invalid vehicle state")
)

// State is implemented by the eleven vehicle states of this package only.
type State interface {
	model.VehicleState

	// Enter validates preconditions and applies the entry side effects.
	Enter(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error)
	// Update advances the vehicle by one timestep, following the default
	// transition when the state has run its course.
	Update(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error)
	// Exit releases held resources. It leaves the vehicle's state field alone.
	Exit(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error)

	terminal(sim *simstate.SimulationState, env *environment.Environment) bool
	next(sim *simstate.SimulationState, env *environment.Environment) (State, error)
	perform(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error)
}

// routed states follow a route that shrinks as the vehicle moves.
type routed interface {
	State
	Route() roadnetwork.Route
	withRoute(r roadnetwork.Route) State
}

type common struct {
	Vehicle  string `json:"vehicle_id"`
	Instance string `json:"instance_id"`
}

func newCommon(vehicleID string) common {
	return common{Vehicle: vehicleID, Instance: uuid.NewString()}
}

func (c common) VehicleID() string  { return c.Vehicle }
func (c common) InstanceID() string { return c.Instance }

// Of returns the state machine behind a vehicle.
func Of(v model.Vehicle) (State, error) {
	s, ok := v.State.(State)
	if !ok {
		return nil, fmt.Errorf("%w: vehicle %s holds %T", ErrInvalidState, v.ID, v.State)
	}
	return s, nil
}

// Transition exits prev and enters next in one step. It returns nil, nil
// when either side refuses, in which case sim is still the valid state.
func Transition(sim *simstate.SimulationState, env *environment.Environment, prev, next State) (*simstate.SimulationState, error) {
	exited, err := prev.Exit(sim, env)
	if err != nil || exited == nil {
		return nil, err
	}
	entered, err := next.Enter(exited, env)
	if err != nil || entered == nil {
		return nil, err
	}
	env.File(report.New(report.StateTransition, sim.SimTime(), map[string]any{
		"vehicle_id":       prev.VehicleID(),
		"from":             prev.Kind().String(),
		"to":               next.Kind().String(),
		"from_instance_id": prev.InstanceID(),
		"instance_id":      next.InstanceID(),
	}))
	return entered, nil
}

func defaultUpdate(sim *simstate.SimulationState, env *environment.Environment, s State) (*simstate.SimulationState, error) {
	if !s.terminal(sim, env) {
		return s.perform(sim, env)
	}
	nxt, err := s.next(sim, env)
	if err != nil {
		return nil, fail(sim, "update_"+s.Kind().String(), s.VehicleID(), err)
	}
	if nxt == nil {
		return nil, nil
	}
	moved, err := Transition(sim, env, s, nxt)
	if err != nil {
		return nil, fail(sim, "update_"+s.Kind().String(), s.VehicleID(), err)
	}
	if moved == nil {
		return nil, nil
	}
	v, ok := moved.Vehicle(s.VehicleID())
	if !ok {
		return nil, fail(sim, "update_"+s.Kind().String(), s.VehicleID(), simstate.ErrNotFound)
	}
	cur, err := Of(v)
	if err != nil {
		return nil, err
	}
	performed, err := cur.perform(moved, env)
	if err != nil {
		return nil, err
	}
	if performed == nil {
		return moved, nil
	}
	return performed, nil
}

// apply stores s as the vehicle's current state.
func apply(sim *simstate.SimulationState, s State, edit func(model.Vehicle) model.Vehicle) (*simstate.SimulationState, error) {
	v, ok := sim.Vehicle(s.VehicleID())
	if !ok {
		return nil, fail(sim, "enter_"+s.Kind().String(), s.VehicleID(), simstate.ErrNotFound)
	}
	if edit != nil {
		v = edit(v)
	}
	return sim.ModifyVehicle(v.WithState(s))
}

func fail(sim *simstate.SimulationState, op, id string, err error) error {
	var opErr *simstate.OpError
	if errors.As(err, &opErr) {
		return err
	}
	return &simstate.OpError{Op: op, EntityID: id, SimTime: sim.SimTime(), Err: err}
}

func vehicle(sim *simstate.SimulationState, op, id string) (model.Vehicle, error) {
	v, ok := sim.Vehicle(id)
	if !ok {
		return model.Vehicle{}, fail(sim, op, id, fmt.Errorf("vehicle: %w", simstate.ErrNotFound))
	}
	return v, nil
}

func station(sim *simstate.SimulationState, op, id string) (model.Station, error) {
	st, ok := sim.Station(id)
	if !ok {
		return model.Station{}, fail(sim, op, id, fmt.Errorf("station: %w", simstate.ErrNotFound))
	}
	return st, nil
}

func base(sim *simstate.SimulationState, op, id string) (model.Base, error) {
	b, ok := sim.Base(id)
	if !ok {
		return model.Base{}, fail(sim, op, id, fmt.Errorf("base: %w", simstate.ErrNotFound))
	}
	return b, nil
}

func mechatronicsFor(sim *simstate.SimulationState, env *environment.Environment, op string, v model.Vehicle) (mechatronics.Mechatronics, error) {
	m, err := env.MechatronicsFor(v)
	if err != nil {
		return nil, fail(sim, op, v.ID, err)
	}
	return m, nil
}
