package vehiclestate

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/roadnetwork"
	"github.com/kilianp07/fleetsim/core/simstate"
)

// DispatchBase drives to a base.
type DispatchBase struct {
	common
	BaseID string            `json:"base_id"`
	Path   roadnetwork.Route `json:"route"`
}

func NewDispatchBase(vehicleID, baseID string, r roadnetwork.Route) DispatchBase {
	return DispatchBase{common: newCommon(vehicleID), BaseID: baseID, Path: r}
}

func (DispatchBase) Kind() model.StateKind      { return model.StateDispatchBase }
func (s DispatchBase) Route() roadnetwork.Route { return s.Path }
func (s DispatchBase) withRoute(r roadnetwork.Route) State {
	s.Path = r
	return s
}

func (s DispatchBase) Enter(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	const op = "enter_dispatch_base"
	v, err := vehicle(sim, op, s.Vehicle)
	if err != nil {
		return nil, err
	}
	b, err := base(sim, op, s.BaseID)
	if err != nil {
		return nil, err
	}
	dst := b.GeoID()
	if !s.Path.CorrespondsWith(v.GeoID(), &dst) {
		return nil, nil
	}
	if !b.Membership.GrantAccess(v.Membership) {
		return nil, fail(sim, op, s.Vehicle, fmt.Errorf("%w: base %s", ErrMembership, b.ID))
	}
	return apply(sim, s, nil)
}

func (s DispatchBase) Update(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return defaultUpdate(sim, env, s)
}

func (DispatchBase) Exit(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	return sim, nil
}

func (s DispatchBase) terminal(*simstate.SimulationState, *environment.Environment) bool {
	return s.Path.Empty()
}

// next reserves a stall when one is free, otherwise idles at the base.
func (s DispatchBase) next(sim *simstate.SimulationState, _ *environment.Environment) (State, error) {
	v, ok := sim.Vehicle(s.Vehicle)
	if !ok {
		return nil, simstate.ErrNotFound
	}
	b, ok := sim.Base(s.BaseID)
	if !ok {
		return nil, fmt.Errorf("base %s: %w", s.BaseID, simstate.ErrNotFound)
	}
	if b.GeoID() != v.GeoID() {
		return nil, fmt.Errorf("%w: vehicle %s ended trip to base %s at %s",
			ErrLocationMismatch, v.ID, b.ID, v.GeoID())
	}
	if b.HasAvailableStall() {
		return NewReserveBase(s.Vehicle, s.BaseID), nil
	}
	return NewIdle(s.Vehicle), nil
}

func (s DispatchBase) perform(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return move(sim, env, s)
}

// ReserveBase parks the vehicle in a base stall, out of service for trips.
type ReserveBase struct {
	common
	BaseID string `json:"base_id"`
}

func NewReserveBase(vehicleID, baseID string) ReserveBase {
	return ReserveBase{common: newCommon(vehicleID), BaseID: baseID}
}

func (ReserveBase) Kind() model.StateKind { return model.StateReserveBase }

// Enter checks out a stall.
func (s ReserveBase) Enter(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	const op = "enter_reserve_base"
	v, err := vehicle(sim, op, s.Vehicle)
	if err != nil {
		return nil, err
	}
	b, err := base(sim, op, s.BaseID)
	if err != nil {
		return nil, err
	}
	if b.GeoID() != v.GeoID() {
		env.Log.Warnf("vehicle %s is not at base %s", v.ID, b.ID)
		return nil, nil
	}
	if !b.Membership.GrantAccess(v.Membership) {
		return nil, fail(sim, op, s.Vehicle, fmt.Errorf("%w: base %s", ErrMembership, b.ID))
	}
	updated, ok := b.CheckoutStall()
	if !ok {
		return nil, nil
	}
	withBase, err := sim.ModifyBase(updated)
	if err != nil {
		return nil, fail(sim, op, s.BaseID, err)
	}
	return apply(withBase, s, nil)
}

func (s ReserveBase) Update(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return defaultUpdate(sim, env, s)
}

// Exit returns the stall.
func (s ReserveBase) Exit(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	const op = "exit_reserve_base"
	b, err := base(sim, op, s.BaseID)
	if err != nil {
		return nil, err
	}
	updated, err := b.ReturnStall()
	if err != nil {
		return nil, fail(sim, op, s.BaseID, err)
	}
	return sim.ModifyBase(updated)
}

func (ReserveBase) terminal(*simstate.SimulationState, *environment.Environment) bool { return false }

func (s ReserveBase) next(*simstate.SimulationState, *environment.Environment) (State, error) {
	return s, nil
}

func (ReserveBase) perform(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	return sim, nil
}

// ChargingBase charges in a base stall on the base's station.
type ChargingBase struct {
	common
	BaseID    string `json:"base_id"`
	ChargerID string `json:"charger_id"`
}

func NewChargingBase(vehicleID, baseID, chargerID string) ChargingBase {
	return ChargingBase{common: newCommon(vehicleID), BaseID: baseID, ChargerID: chargerID}
}

func (ChargingBase) Kind() model.StateKind { return model.StateChargingBase }

// Enter checks out both a stall and a charger of the base's station.
func (s ChargingBase) Enter(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	const op = "enter_charging_base"
	v, err := vehicle(sim, op, s.Vehicle)
	if err != nil {
		return nil, err
	}
	b, err := base(sim, op, s.BaseID)
	if err != nil {
		return nil, err
	}
	if b.StationID == "" {
		return nil, fail(sim, op, s.BaseID, fmt.Errorf("base has no station"))
	}
	st, err := station(sim, op, b.StationID)
	if err != nil {
		return nil, err
	}
	m, err := mechatronicsFor(sim, env, op, v)
	if err != nil {
		return nil, err
	}
	if !b.Membership.GrantAccess(v.Membership) {
		return nil, fail(sim, op, s.Vehicle, fmt.Errorf("%w: base %s", ErrMembership, b.ID))
	}
	if v.GeoID() != b.GeoID() || m.IsFull(v) {
		return nil, nil
	}
	c, err := env.Charger(s.ChargerID)
	if err != nil {
		return nil, fail(sim, op, s.Vehicle, err)
	}
	if !m.ValidCharger(c) {
		return nil, fail(sim, op, s.Vehicle, fmt.Errorf("%w: %s on %s", ErrInvalidCharger, v.MechatronicsID, c.ID))
	}
	withStall, ok := b.CheckoutStall()
	if !ok {
		return nil, nil
	}
	withCharger, ok, err := st.CheckoutCharger(s.ChargerID)
	if err != nil {
		return nil, fail(sim, op, st.ID, err)
	}
	if !ok {
		return nil, nil
	}
	sim2, err := sim.ModifyBase(withStall)
	if err != nil {
		return nil, fail(sim, op, s.BaseID, err)
	}
	sim3, err := sim2.ModifyStation(withCharger)
	if err != nil {
		return nil, fail(sim, op, st.ID, err)
	}
	return apply(sim3, s, nil)
}

func (s ChargingBase) Update(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return defaultUpdate(sim, env, s)
}

// Exit returns the stall and the charger.
func (s ChargingBase) Exit(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	const op = "exit_charging_base"
	b, err := base(sim, op, s.BaseID)
	if err != nil {
		return nil, err
	}
	st, err := station(sim, op, b.StationID)
	if err != nil {
		return nil, err
	}
	freedStall, err := b.ReturnStall()
	if err != nil {
		return nil, fail(sim, op, s.BaseID, err)
	}
	freedCharger, err := st.ReturnCharger(s.ChargerID)
	if err != nil {
		return nil, fail(sim, op, st.ID, err)
	}
	sim2, err := sim.ModifyBase(freedStall)
	if err != nil {
		return nil, fail(sim, op, s.BaseID, err)
	}
	return sim2.ModifyStation(freedCharger)
}

func (s ChargingBase) terminal(sim *simstate.SimulationState, env *environment.Environment) bool {
	v, ok := sim.Vehicle(s.Vehicle)
	if !ok {
		return false
	}
	m, err := env.MechatronicsFor(v)
	return err == nil && chargeComplete(env, m, v, s.ChargerID)
}

// next parks the vehicle in the base once charged.
func (s ChargingBase) next(*simstate.SimulationState, *environment.Environment) (State, error) {
	return NewReserveBase(s.Vehicle, s.BaseID), nil
}

func (s ChargingBase) perform(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	b, err := base(sim, "charging_base", s.BaseID)
	if err != nil {
		return nil, err
	}
	return charge(sim, env, s.Vehicle, b.StationID, s.ChargerID)
}
