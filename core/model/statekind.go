package model

import (
	"fmt"
	"strings"
)

// StateKind enumerates the vehicle state variants.
type StateKind int

const (
	StateIdle StateKind = iota + 1
	StateRepositioning
	StateDispatchTrip
	StateServicingTrip
	StateDispatchStation
	StateChargingStation
	StateChargeQueueing
	StateDispatchBase
	StateChargingBase
	StateReserveBase
	StateOutOfService
)

// AllStateKinds lists every variant in declaration order.
var AllStateKinds = []StateKind{
	StateIdle, StateRepositioning, StateDispatchTrip, StateServicingTrip,
	StateDispatchStation, StateChargingStation, StateChargeQueueing,
	StateDispatchBase, StateChargingBase, StateReserveBase, StateOutOfService,
}

var stateKindNames = map[StateKind]string{
	StateIdle:            "idle",
	StateRepositioning:   "repositioning",
	StateDispatchTrip:    "dispatch_trip",
	StateServicingTrip:   "servicing_trip",
	StateDispatchStation: "dispatch_station",
	StateChargingStation: "charging_station",
	StateChargeQueueing:  "charge_queueing",
	StateDispatchBase:    "dispatch_base",
	StateChargingBase:    "charging_base",
	StateReserveBase:     "reserve_base",
	StateOutOfService:    "out_of_service",
}

func (k StateKind) String() string {
	if s, ok := stateKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("state_kind(%d)", int(k))
}

// ParseStateKind accepts snake_case or CamelCase names, case-insensitively.
func ParseStateKind(s string) (StateKind, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "")
	for k, name := range stateKindNames {
		if strings.ReplaceAll(name, "_", "") == norm {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown vehicle state %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k StateKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *StateKind) UnmarshalText(b []byte) error {
	v, err := ParseStateKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// VehicleState is the part of a vehicle state visible to the entity store.
// The behaviour lives in package vehiclestate.
type VehicleState interface {
	Kind() StateKind
	VehicleID() string
	InstanceID() string
}
