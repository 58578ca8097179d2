package vehiclestate

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/core/roadnetwork"
	"github.com/kilianp07/fleetsim/core/simstate"
)

// Repositioning drives an empty vehicle somewhere, then idles.
type Repositioning struct {
	common
	Path roadnetwork.Route `json:"route"`
}

func NewRepositioning(vehicleID string, r roadnetwork.Route) Repositioning {
	return Repositioning{common: newCommon(vehicleID), Path: r}
}

func (Repositioning) Kind() model.StateKind      { return model.StateRepositioning }
func (s Repositioning) Route() roadnetwork.Route { return s.Path }
func (s Repositioning) withRoute(r roadnetwork.Route) State {
	s.Path = r
	return s
}

func (s Repositioning) Enter(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	v, err := vehicle(sim, "enter_repositioning", s.Vehicle)
	if err != nil {
		return nil, err
	}
	if !s.Path.CorrespondsWith(v.GeoID(), nil) {
		return nil, nil
	}
	return apply(sim, s, nil)
}

func (s Repositioning) Update(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return defaultUpdate(sim, env, s)
}

func (Repositioning) Exit(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	return sim, nil
}

func (s Repositioning) terminal(*simstate.SimulationState, *environment.Environment) bool {
	return s.Path.Empty()
}

func (s Repositioning) next(*simstate.SimulationState, *environment.Environment) (State, error) {
	return NewIdle(s.Vehicle), nil
}

func (s Repositioning) perform(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return move(sim, env, s)
}

// DispatchTrip drives to a request's pickup point. The request is marked as
// dispatched to this vehicle for as long as the state lasts.
type DispatchTrip struct {
	common
	RequestID string            `json:"request_id"`
	Path      roadnetwork.Route `json:"route"`
}

func NewDispatchTrip(vehicleID, requestID string, r roadnetwork.Route) DispatchTrip {
	return DispatchTrip{common: newCommon(vehicleID), RequestID: requestID, Path: r}
}

func (DispatchTrip) Kind() model.StateKind      { return model.StateDispatchTrip }
func (s DispatchTrip) Route() roadnetwork.Route { return s.Path }
func (s DispatchTrip) withRoute(r roadnetwork.Route) State {
	s.Path = r
	return s
}

func (s DispatchTrip) Enter(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	const op = "enter_dispatch_trip"
	v, err := vehicle(sim, op, s.Vehicle)
	if err != nil {
		return nil, err
	}
	req, ok := sim.Request(s.RequestID)
	if !ok {
		// picked up or cancelled meanwhile
		return nil, nil
	}
	if !req.Membership.GrantAccess(v.Membership) {
		return nil, fail(sim, op, s.Vehicle, fmt.Errorf("%w: request %s", ErrMembership, req.ID))
	}
	if req.IsDispatched() && req.DispatchedVehicle != s.Vehicle {
		return nil, nil
	}
	dst := req.GeoID()
	if !s.Path.CorrespondsWith(v.GeoID(), &dst) {
		return nil, nil
	}
	withReq, err := sim.ModifyRequest(req.AssignDispatchedVehicle(s.Vehicle, sim.SimTime()))
	if err != nil {
		return nil, fail(sim, op, s.Vehicle, err)
	}
	return apply(withReq, s, nil)
}

func (s DispatchTrip) Update(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return defaultUpdate(sim, env, s)
}

// Exit releases the request so another vehicle may take it.
func (s DispatchTrip) Exit(sim *simstate.SimulationState, _ *environment.Environment) (*simstate.SimulationState, error) {
	req, ok := sim.Request(s.RequestID)
	if !ok || req.DispatchedVehicle != s.Vehicle {
		return sim, nil
	}
	return sim.ModifyRequest(req.UnassignDispatchedVehicle())
}

func (s DispatchTrip) terminal(*simstate.SimulationState, *environment.Environment) bool {
	return s.Path.Empty()
}

func (s DispatchTrip) next(sim *simstate.SimulationState, _ *environment.Environment) (State, error) {
	v, ok := sim.Vehicle(s.Vehicle)
	if !ok {
		return nil, simstate.ErrNotFound
	}
	req, ok := sim.Request(s.RequestID)
	if !ok {
		return NewIdle(s.Vehicle), nil
	}
	if req.GeoID() != v.GeoID() {
		return nil, fmt.Errorf("%w: vehicle %s ended dispatch at %s, request %s is at %s",
			ErrLocationMismatch, v.ID, v.GeoID(), req.ID, req.GeoID())
	}
	r := sim.RoadNetwork().Route(req.Origin, req.Destination)
	return NewServicingTrip(s.Vehicle, req, sim.SimTime(), r), nil
}

func (s DispatchTrip) perform(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return move(sim, env, s)
}

// ServicingTrip carries boarded passengers to their destination.
type ServicingTrip struct {
	common
	Request       model.Request     `json:"request"`
	DepartureTime model.SimTime     `json:"departure_time"`
	Path          roadnetwork.Route `json:"route"`
}

func NewServicingTrip(vehicleID string, req model.Request, departure model.SimTime, r roadnetwork.Route) ServicingTrip {
	return ServicingTrip{common: newCommon(vehicleID), Request: req, DepartureTime: departure, Path: r}
}

func (ServicingTrip) Kind() model.StateKind      { return model.StateServicingTrip }
func (s ServicingTrip) Route() roadnetwork.Route { return s.Path }
func (s ServicingTrip) withRoute(r roadnetwork.Route) State {
	s.Path = r
	return s
}

// Enter boards the request. It is only reachable from DispatchTrip.
func (s ServicingTrip) Enter(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	const op = "enter_servicing_trip"
	v, err := vehicle(sim, op, s.Vehicle)
	if err != nil {
		return nil, err
	}
	req, ok := sim.Request(s.Request.ID)
	if !ok {
		return nil, nil
	}
	if v.State == nil || v.State.Kind() != model.StateDispatchTrip {
		return nil, fail(sim, op, s.Vehicle, fmt.Errorf("%w: servicing trip entered from %v", ErrInvalidState, v.State))
	}
	if !req.Membership.GrantAccess(v.Membership) {
		return nil, fail(sim, op, s.Vehicle, fmt.Errorf("%w: request %s", ErrMembership, req.ID))
	}
	dst := req.Destination.GeoID
	if !s.Path.CorrespondsWith(req.GeoID(), &dst) || !s.Path.CorrespondsWith(v.GeoID(), &dst) {
		env.Log.Warnf("vehicle %s: servicing route does not match request %s", v.ID, req.ID)
		return nil, nil
	}

	boarded, err := sim.BoardVehicle(req.ID, v.ID)
	if err != nil {
		return nil, fail(sim, op, s.Vehicle, err)
	}
	s.Request = req
	next, err := apply(boarded, s, nil)
	if err != nil {
		return nil, err
	}
	lat, lng := req.GeoID().LatLng()
	env.File(report.New(report.PickupRequestEvent, sim.SimTime(), map[string]any{
		"vehicle_id":        v.ID,
		"request_id":        req.ID,
		"pickup_time":       int64(sim.SimTime()),
		"request_time":      int64(req.DepartureTime),
		"wait_time_seconds": int64(sim.SimTime() - req.DepartureTime),
		"fleet_id":          req.Membership.String(),
		"price":             req.Value,
		"geoid":             req.GeoID().String(),
		"lat":               lat,
		"lon":               lng,
	}))
	return next, nil
}

func (s ServicingTrip) Update(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return defaultUpdate(sim, env, s)
}

// Exit lets out anyone still aboard.
func (s ServicingTrip) Exit(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	return dropOff(sim, env, s.Vehicle, s.Request, s.DepartureTime)
}

func (s ServicingTrip) terminal(*simstate.SimulationState, *environment.Environment) bool {
	return s.Path.Empty()
}

func (s ServicingTrip) next(*simstate.SimulationState, *environment.Environment) (State, error) {
	return NewIdle(s.Vehicle), nil
}

// perform moves and drops everyone off on arrival.
func (s ServicingTrip) perform(sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	moved, err := move(sim, env, s)
	if err != nil {
		return nil, err
	}
	v, ok := moved.Vehicle(s.Vehicle)
	if !ok {
		return nil, fail(sim, "servicing_trip", s.Vehicle, simstate.ErrNotFound)
	}
	cur, isTrip := v.State.(ServicingTrip)
	if !isTrip || !cur.Path.Empty() {
		return moved, nil
	}
	if v.GeoID() != s.Request.Destination.GeoID {
		return nil, fail(sim, "servicing_trip", s.Vehicle, fmt.Errorf("%w: arrived at %s, destination is %s",
			ErrLocationMismatch, v.GeoID(), s.Request.Destination.GeoID))
	}
	return dropOff(moved, env, s.Vehicle, s.Request, s.DepartureTime)
}
