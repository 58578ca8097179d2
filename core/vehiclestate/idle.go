package vehiclestate

import (
	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/simstate"
)

// Idle is a parked, available vehicle burning idle energy.
type Idle struct {
	common
}

func NewIdle(vehicleID string) Idle { return Idle{common: newCommon(vehicleID)} }

func (Idle) Kind() model.StateKind { return model.StateIdle }

func (s Idle) Enter(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	return apply(sim, s, model.Vehicle.ResetIdleTime)
}

func (s Idle) Update(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return defaultUpdate(sim, env, s)
}

func (Idle) Exit(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	return sim, nil
}

func (s Idle) terminal(sim *simstate.SimulationState, env *environment.Environment) bool {
	v, ok := sim.Vehicle(s.Vehicle)
	if !ok {
		return false
	}
	m, err := env.MechatronicsFor(v)
	return err == nil && m.IsEmpty(v)
}

func (s Idle) next(sim *simstate.SimulationState, _ *environment.Environment) (State, error) {
	return NewOutOfService(s.Vehicle, sim.SimTime()), nil
}

func (s Idle) perform(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	const op = "idle"
	v, err := vehicle(sim, op, s.Vehicle)
	if err != nil {
		return nil, err
	}
	m, err := mechatronicsFor(sim, env, op, v)
	if err != nil {
		return nil, err
	}
	dt := sim.TimestepSeconds()
	return sim.ModifyVehicle(m.Idle(v, dt).AddIdleTime(dt))
}

// OutOfService holds a vehicle that ran out of energy. It only leaves this
// state through roadside recovery, when enabled.
type OutOfService struct {
	common
	Since model.SimTime `json:"since"`
}

func NewOutOfService(vehicleID string, since model.SimTime) OutOfService {
	return OutOfService{common: newCommon(vehicleID), Since: since}
}

func (OutOfService) Kind() model.StateKind { return model.StateOutOfService }

func (s OutOfService) Enter(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	return apply(sim, s, nil)
}

func (OutOfService) Exit(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	return sim, nil
}

// Update restores the vehicle once the recovery delay has passed.
func (s OutOfService) Update(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return defaultUpdate(sim, env, s)
}

func (s OutOfService) terminal(sim *simstate.SimulationState, env *environment.Environment) bool {
	after := env.Params.OutOfServiceRecoverySeconds
	return after > 0 && int64(sim.SimTime()-s.Since) >= after
}

func (s OutOfService) next(sim *simstate.SimulationState, env *environment.Environment) (State, error) {
	return recovered{Idle: NewIdle(s.Vehicle), since: s.Since}, nil
}

func (OutOfService) perform(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	return sim, nil
}

// recovered is Idle entered from roadside recovery: entering it refills the
// vehicle to the recovery state of charge first.
type recovered struct {
	Idle
	since model.SimTime
}

func (r recovered) Enter(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	const op = "roadside_recovery"
	v, err := vehicle(sim, op, r.Vehicle)
	if err != nil {
		return nil, err
	}
	m, err := mechatronicsFor(sim, env, op, v)
	if err != nil {
		return nil, err
	}
	refilled := v.WithEnergy(m.InitialEnergy(env.Params.OutOfServiceRecoverySOC))
	next, err := apply(sim, r.Idle, func(model.Vehicle) model.Vehicle { return refilled.ResetIdleTime() })
	if err != nil {
		return nil, err
	}
	env.File(reportRecovery(sim, v, refilled, m.SOC(v), m.SOC(refilled), r.since))
	return next, nil
}
