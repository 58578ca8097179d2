// Package instruction holds the commands a dispatcher issues to vehicles and
// the logic that turns them into vehicle state transitions.
package instruction

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/simstate"
	"github.com/kilianp07/fleetsim/core/vehiclestate"
)

// Instruction asks one vehicle to move into a new state.
type Instruction interface {
	VehicleID() string
	// Kind is the state the vehicle should end up in.
	Kind() model.StateKind
	// Build resolves targets and routes against sim. A nil state means the
	// instruction cannot be carried out right now.
	Build(sim *simstate.SimulationState, env *environment.Environment) (vehiclestate.State, error)
	fmt.Stringer
}

// Idle stops the vehicle where it is.
type Idle struct {
	Vehicle string `json:"vehicle_id"`
}

func (i Idle) VehicleID() string   { return i.Vehicle }
func (Idle) Kind() model.StateKind { return model.StateIdle }
func (i Idle) String() string      { return fmt.Sprintf("idle(%s)", i.Vehicle) }

func (i Idle) Build(*simstate.SimulationState, *environment.Environment) (vehiclestate.State, error) {
	return vehiclestate.NewIdle(i.Vehicle), nil
}

// Reposition drives an empty vehicle to a cell.
type Reposition struct {
	Vehicle     string `json:"vehicle_id"`
	Destination geo.ID `json:"destination"`
}

func (i Reposition) VehicleID() string   { return i.Vehicle }
func (Reposition) Kind() model.StateKind { return model.StateRepositioning }
func (i Reposition) String() string {
	return fmt.Sprintf("reposition(%s -> %s)", i.Vehicle, i.Destination)
}

func (i Reposition) Build(sim *simstate.SimulationState, _ *environment.Environment) (vehiclestate.State, error) {
	v, err := lookupVehicle(sim, i.Vehicle)
	if err != nil {
		return nil, err
	}
	rn := sim.RoadNetwork()
	if !rn.WithinGeofence(i.Destination) {
		return nil, fmt.Errorf("reposition %s to %s: %w", i.Vehicle, i.Destination, simstate.ErrGeofenceViolation)
	}
	return vehiclestate.NewRepositioning(i.Vehicle, rn.Route(v.Position, rn.StationaryLocation(i.Destination))), nil
}

// DispatchTrip sends a vehicle to pick up a request.
type DispatchTrip struct {
	Vehicle string `json:"vehicle_id"`
	Request string `json:"request_id"`
}

func (i DispatchTrip) VehicleID() string   { return i.Vehicle }
func (DispatchTrip) Kind() model.StateKind { return model.StateDispatchTrip }
func (i DispatchTrip) String() string {
	return fmt.Sprintf("dispatch_trip(%s -> %s)", i.Vehicle, i.Request)
}

// Build is a no-op when the request is already gone.
func (i DispatchTrip) Build(sim *simstate.SimulationState, _ *environment.Environment) (vehiclestate.State, error) {
	v, err := lookupVehicle(sim, i.Vehicle)
	if err != nil {
		return nil, err
	}
	req, ok := sim.Request(i.Request)
	if !ok {
		return nil, nil
	}
	return vehiclestate.NewDispatchTrip(i.Vehicle, i.Request, sim.RoadNetwork().Route(v.Position, req.Origin)), nil
}

// DispatchStation sends a vehicle to a station to charge.
type DispatchStation struct {
	Vehicle string `json:"vehicle_id"`
	Station string `json:"station_id"`
	Charger string `json:"charger_id"`
}

func (i DispatchStation) VehicleID() string   { return i.Vehicle }
func (DispatchStation) Kind() model.StateKind { return model.StateDispatchStation }
func (i DispatchStation) String() string {
	return fmt.Sprintf("dispatch_station(%s -> %s/%s)", i.Vehicle, i.Station, i.Charger)
}

func (i DispatchStation) Build(sim *simstate.SimulationState, _ *environment.Environment) (vehiclestate.State, error) {
	v, err := lookupVehicle(sim, i.Vehicle)
	if err != nil {
		return nil, err
	}
	st, ok := sim.Station(i.Station)
	if !ok {
		return nil, fmt.Errorf("station %s: %w", i.Station, simstate.ErrNotFound)
	}
	return vehiclestate.NewDispatchStation(i.Vehicle, i.Station, i.Charger, sim.RoadNetwork().Route(v.Position, st.Position)), nil
}

// ChargeStation plugs a vehicle already at a station in.
type ChargeStation struct {
	Vehicle string `json:"vehicle_id"`
	Station string `json:"station_id"`
	Charger string `json:"charger_id"`
}

func (i ChargeStation) VehicleID() string   { return i.Vehicle }
func (ChargeStation) Kind() model.StateKind { return model.StateChargingStation }
func (i ChargeStation) String() string {
	return fmt.Sprintf("charge_station(%s @ %s/%s)", i.Vehicle, i.Station, i.Charger)
}

func (i ChargeStation) Build(*simstate.SimulationState, *environment.Environment) (vehiclestate.State, error) {
	return vehiclestate.NewChargingStation(i.Vehicle, i.Station, i.Charger), nil
}

// DispatchBase sends a vehicle home.
type DispatchBase struct {
	Vehicle string `json:"vehicle_id"`
	Base    string `json:"base_id"`
}

func (i DispatchBase) VehicleID() string   { return i.Vehicle }
func (DispatchBase) Kind() model.StateKind { return model.StateDispatchBase }
func (i DispatchBase) String() string {
	return fmt.Sprintf("dispatch_base(%s -> %s)", i.Vehicle, i.Base)
}

func (i DispatchBase) Build(sim *simstate.SimulationState, _ *environment.Environment) (vehiclestate.State, error) {
	v, err := lookupVehicle(sim, i.Vehicle)
	if err != nil {
		return nil, err
	}
	b, ok := sim.Base(i.Base)
	if !ok {
		return nil, fmt.Errorf("base %s: %w", i.Base, simstate.ErrNotFound)
	}
	return vehiclestate.NewDispatchBase(i.Vehicle, i.Base, sim.RoadNetwork().Route(v.Position, b.Position)), nil
}

// ReserveBase parks a vehicle already at a base.
type ReserveBase struct {
	Vehicle string `json:"vehicle_id"`
	Base    string `json:"base_id"`
}

func (i ReserveBase) VehicleID() string   { return i.Vehicle }
func (ReserveBase) Kind() model.StateKind { return model.StateReserveBase }
func (i ReserveBase) String() string      { return fmt.Sprintf("reserve_base(%s @ %s)", i.Vehicle, i.Base) }

func (i ReserveBase) Build(*simstate.SimulationState, *environment.Environment) (vehiclestate.State, error) {
	return vehiclestate.NewReserveBase(i.Vehicle, i.Base), nil
}

// ChargeBase charges a vehicle parked at a base with a station.
type ChargeBase struct {
	Vehicle string `json:"vehicle_id"`
	Base    string `json:"base_id"`
	Charger string `json:"charger_id"`
}

func (i ChargeBase) VehicleID() string   { return i.Vehicle }
func (ChargeBase) Kind() model.StateKind { return model.StateChargingBase }
func (i ChargeBase) String() string {
	return fmt.Sprintf("charge_base(%s @ %s/%s)", i.Vehicle, i.Base, i.Charger)
}

func (i ChargeBase) Build(*simstate.SimulationState, *environment.Environment) (vehiclestate.State, error) {
	return vehiclestate.NewChargingBase(i.Vehicle, i.Base, i.Charger), nil
}

func lookupVehicle(sim *simstate.SimulationState, id string) (model.Vehicle, error) {
	v, ok := sim.Vehicle(id)
	if !ok {
		return model.Vehicle{}, fmt.Errorf("vehicle %s: %w", id, simstate.ErrNotFound)
	}
	return v, nil
}
