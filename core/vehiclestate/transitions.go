package vehiclestate

import "github.com/kilianp07/fleetsim/core/model"

// allowed lists the states an instruction may move a vehicle into. Automatic
// transitions driven by Update are not restricted by this table.
var allowed = map[model.StateKind][]model.StateKind{
	model.StateIdle: {
		model.StateRepositioning, model.StateDispatchTrip, model.StateDispatchStation,
		model.StateChargingStation, model.StateDispatchBase, model.StateReserveBase,
		model.StateChargingBase,
	},
	model.StateRepositioning: {
		model.StateIdle, model.StateRepositioning, model.StateDispatchTrip,
		model.StateDispatchStation, model.StateChargingStation, model.StateDispatchBase,
		model.StateReserveBase, model.StateChargingBase,
	},
	model.StateDispatchTrip: {
		model.StateIdle, model.StateRepositioning, model.StateDispatchTrip,
		model.StateDispatchStation, model.StateDispatchBase,
	},
	model.StateServicingTrip: nil,
	model.StateDispatchStation: {
		model.StateIdle, model.StateRepositioning, model.StateDispatchTrip,
		model.StateDispatchStation, model.StateDispatchBase, model.StateChargingStation,
	},
	model.StateChargingStation: {
		model.StateIdle, model.StateRepositioning, model.StateDispatchTrip,
		model.StateDispatchStation, model.StateDispatchBase,
	},
	model.StateChargeQueueing: {
		model.StateIdle, model.StateRepositioning, model.StateDispatchTrip,
		model.StateDispatchStation, model.StateDispatchBase, model.StateChargingStation,
	},
	model.StateDispatchBase: {
		model.StateIdle, model.StateRepositioning, model.StateDispatchTrip,
		model.StateDispatchStation, model.StateDispatchBase, model.StateReserveBase,
		model.StateChargingBase,
	},
	model.StateChargingBase: {
		model.StateIdle, model.StateRepositioning, model.StateDispatchTrip,
		model.StateDispatchStation, model.StateDispatchBase, model.StateReserveBase,
	},
	model.StateReserveBase: {
		model.StateIdle, model.StateRepositioning, model.StateDispatchTrip,
		model.StateDispatchStation, model.StateDispatchBase, model.StateChargingBase,
		model.StateChargingStation,
	},
	model.StateOutOfService: nil,
}

// CanTransition reports whether an instruction may move a vehicle from one
// state kind to another.
func CanTransition(from, to model.StateKind) bool {
	for _, k := range allowed[from] {
		if k == to {
			return true
		}
	}
	return false
}

// Allowed returns the kinds reachable by instruction from k.
func Allowed(k model.StateKind) []model.StateKind {
	return append([]model.StateKind(nil), allowed[k]...)
}
