package vehiclestate

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/roadnetwork"
	"github.com/kilianp07/fleetsim/core/simstate"
)

// DispatchStation drives to a station to charge on a given charger type.
type DispatchStation struct {
	common
	StationID string            `json:"station_id"`
	ChargerID string            `json:"charger_id"`
	Path      roadnetwork.Route `json:"route"`
}

func NewDispatchStation(vehicleID, stationID, chargerID string, r roadnetwork.Route) DispatchStation {
	return DispatchStation{common: newCommon(vehicleID), StationID: stationID, ChargerID: chargerID, Path: r}
}

func (DispatchStation) Kind() model.StateKind      { return model.StateDispatchStation }
func (s DispatchStation) Route() roadnetwork.Route { return s.Path }
func (s DispatchStation) withRoute(r roadnetwork.Route) State {
	s.Path = r
	return s
}

// Enter goes straight to charging when the vehicle already is at the station.
func (s DispatchStation) Enter(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	const op = "enter_dispatch_station"
	v, err := vehicle(sim, op, s.Vehicle)
	if err != nil {
		return nil, err
	}
	st, err := station(sim, op, s.StationID)
	if err != nil {
		return nil, err
	}
	if _, ok := st.Chargers[s.ChargerID]; !ok {
		return nil, fail(sim, op, s.StationID, fmt.Errorf("%w: %s", model.ErrChargerNotFound, s.ChargerID))
	}
	if !st.Membership.GrantAccess(v.Membership) {
		return nil, fail(sim, op, s.Vehicle, fmt.Errorf("%w: station %s", ErrMembership, st.ID))
	}
	if st.GeoID() == v.GeoID() {
		return NewChargingStation(s.Vehicle, s.StationID, s.ChargerID).Enter(sim, env)
	}
	dst := st.GeoID()
	if !s.Path.CorrespondsWith(v.GeoID(), &dst) {
		return nil, nil
	}
	return apply(sim, s, nil)
}

func (s DispatchStation) Update(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return defaultUpdate(sim, env, s)
}

func (DispatchStation) Exit(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	return sim, nil
}

func (s DispatchStation) terminal(*simstate.SimulationState, *environment.Environment) bool {
	return s.Path.Empty()
}

// next charges if a charger is free on arrival, else joins the queue. A
// vehicle that arrives with nothing left to charge goes idle.
func (s DispatchStation) next(sim *simstate.SimulationState, env *environment.Environment) (State, error) {
	v, ok := sim.Vehicle(s.Vehicle)
	if !ok {
		return nil, simstate.ErrNotFound
	}
	st, ok := sim.Station(s.StationID)
	if !ok {
		return nil, fmt.Errorf("station %s: %w", s.StationID, simstate.ErrNotFound)
	}
	if st.GeoID() != v.GeoID() {
		return nil, fmt.Errorf("%w: vehicle %s ended trip to station %s at %s",
			ErrLocationMismatch, v.ID, st.ID, v.GeoID())
	}
	if m, err := env.MechatronicsFor(v); err == nil && chargeComplete(env, m, v, s.ChargerID) {
		return NewIdle(s.Vehicle), nil
	}
	if st.HasAvailableCharger(s.ChargerID) {
		return NewChargingStation(s.Vehicle, s.StationID, s.ChargerID), nil
	}
	return NewChargeQueueing(s.Vehicle, s.StationID, s.ChargerID, sim.SimTime()), nil
}

func (s DispatchStation) perform(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return move(sim, env, s)
}

// ChargingStation holds one charger of a station while charging.
type ChargingStation struct {
	common
	StationID string `json:"station_id"`
	ChargerID string `json:"charger_id"`
}

func NewChargingStation(vehicleID, stationID, chargerID string) ChargingStation {
	return ChargingStation{common: newCommon(vehicleID), StationID: stationID, ChargerID: chargerID}
}

func (ChargingStation) Kind() model.StateKind { return model.StateChargingStation }

// Enter checks out a charger. No free charger, a vehicle elsewhere or an
// already full battery are soft failures.
func (s ChargingStation) Enter(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	const op = "enter_charging_station"
	v, err := vehicle(sim, op, s.Vehicle)
	if err != nil {
		return nil, err
	}
	st, err := station(sim, op, s.StationID)
	if err != nil {
		return nil, err
	}
	m, err := mechatronicsFor(sim, env, op, v)
	if err != nil {
		return nil, err
	}
	if v.GeoID() != st.GeoID() {
		return nil, nil
	}
	if !st.Membership.GrantAccess(v.Membership) {
		return nil, fail(sim, op, s.Vehicle, fmt.Errorf("%w: station %s", ErrMembership, st.ID))
	}
	c, err := env.Charger(s.ChargerID)
	if err != nil {
		return nil, fail(sim, op, s.Vehicle, err)
	}
	if !m.ValidCharger(c) {
		return nil, fail(sim, op, s.Vehicle, fmt.Errorf("%w: %s on %s", ErrInvalidCharger, v.MechatronicsID, c.ID))
	}
	if m.IsFull(v) {
		return nil, nil
	}
	updated, ok, err := st.CheckoutCharger(s.ChargerID)
	if err != nil {
		return nil, fail(sim, op, s.StationID, err)
	}
	if !ok {
		return nil, nil
	}
	withStation, err := sim.ModifyStation(updated)
	if err != nil {
		return nil, fail(sim, op, s.StationID, err)
	}
	return apply(withStation, s, nil)
}

func (s ChargingStation) Update(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return defaultUpdate(sim, env, s)
}

// Exit returns the charger.
func (s ChargingStation) Exit(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	const op = "exit_charging_station"
	st, err := station(sim, op, s.StationID)
	if err != nil {
		return nil, err
	}
	updated, err := st.ReturnCharger(s.ChargerID)
	if err != nil {
		return nil, fail(sim, op, s.StationID, err)
	}
	return sim.ModifyStation(updated)
}

func (s ChargingStation) terminal(sim *simstate.SimulationState, env *environment.Environment) bool {
	v, ok := sim.Vehicle(s.Vehicle)
	if !ok {
		return false
	}
	m, err := env.MechatronicsFor(v)
	return err == nil && chargeComplete(env, m, v, s.ChargerID)
}

func (s ChargingStation) next(*simstate.SimulationState, *environment.Environment) (State, error) {
	return NewIdle(s.Vehicle), nil
}

func (s ChargingStation) perform(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return charge(sim, env, s.Vehicle, s.StationID, s.ChargerID)
}

// ChargeQueueing waits at a station for a charger. Queue order across
// vehicles follows EnqueueTime.
type ChargeQueueing struct {
	common
	StationID   string        `json:"station_id"`
	ChargerID   string        `json:"charger_id"`
	EnqueueTime model.SimTime `json:"enqueue_time"`
}

func NewChargeQueueing(vehicleID, stationID, chargerID string, at model.SimTime) ChargeQueueing {
	return ChargeQueueing{common: newCommon(vehicleID), StationID: stationID, ChargerID: chargerID, EnqueueTime: at}
}

func (ChargeQueueing) Kind() model.StateKind { return model.StateChargeQueueing }

func (s ChargeQueueing) Enter(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	const op = "enter_charge_queueing"
	v, err := vehicle(sim, op, s.Vehicle)
	if err != nil {
		return nil, err
	}
	st, err := station(sim, op, s.StationID)
	if err != nil {
		return nil, err
	}
	if v.GeoID() != st.GeoID() || st.HasAvailableCharger(s.ChargerID) {
		return nil, nil
	}
	if !st.Membership.GrantAccess(v.Membership) {
		return nil, fail(sim, op, s.Vehicle, fmt.Errorf("%w: station %s", ErrMembership, st.ID))
	}
	updated, err := st.EnqueueForCharger(s.ChargerID)
	if err != nil {
		return nil, fail(sim, op, s.StationID, err)
	}
	withStation, err := sim.ModifyStation(updated)
	if err != nil {
		return nil, fail(sim, op, s.StationID, err)
	}
	return apply(withStation, s, nil)
}

func (s ChargeQueueing) Update(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return defaultUpdate(sim, env, s)
}

// Exit leaves the queue. A station that disappeared has no queue to leave.
func (s ChargeQueueing) Exit(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	st, ok := sim.Station(s.StationID)
	if !ok {
		return sim, nil
	}
	updated, err := st.DequeueForCharger(s.ChargerID)
	if err != nil {
		return nil, fail(sim, "exit_charge_queueing", s.StationID, err)
	}
	return sim.ModifyStation(updated)
}

func (s ChargeQueueing) terminal(sim *simstate.SimulationState, _ *environment.Environment) bool {
	st, ok := sim.Station(s.StationID)
	return !ok || st.HasAvailableCharger(s.ChargerID)
}

func (s ChargeQueueing) next(sim *simstate.SimulationState, _ *environment.Environment) (State, error) {
	if _, ok := sim.Station(s.StationID); !ok {
		return NewIdle(s.Vehicle), nil
	}
	return NewChargingStation(s.Vehicle, s.StationID, s.ChargerID), nil
}

// perform burns idle energy while waiting.
func (s ChargeQueueing) perform(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	const op = "charge_queueing"
	v, err := vehicle(sim, op, s.Vehicle)
	if err != nil {
		return nil, err
	}
	m, err := mechatronicsFor(sim, env, op, v)
	if err != nil {
		return nil, err
	}
	return sim.ModifyVehicle(m.Idle(v, sim.TimestepSeconds()))
}
