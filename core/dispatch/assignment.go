package dispatch

import (
	"sort"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/instruction"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/simstate"
)

// TripAssignment greedily matches the most valuable open requests with the
// closest eligible vehicle.
type TripAssignment struct {
	cfg    Config
	states map[model.StateKind]bool
}

func NewTripAssignment(cfg Config) (*TripAssignment, error) {
	cfg.SetDefaults()
	states, err := cfg.dispatchStates()
	if err != nil {
		return nil, err
	}
	return &TripAssignment{cfg: cfg, states: states}, nil
}

func (a *TripAssignment) Generate(sim *simstate.SimulationState, env *environment.Environment) ([]instruction.Instruction, error) {
	open := sim.RequestsWhere(func(r model.Request) bool { return !r.IsDispatched() })
	sort.SliceStable(open, func(i, j int) bool {
		if open[i].Value != open[j].Value {
			return open[i].Value > open[j].Value
		}
		return open[i].ID < open[j].ID
	})

	taken := make(map[string]bool)
	var out []instruction.Instruction
	for _, r := range open {
		req := r
		v, ok, err := sim.NearestVehicle(req.GeoID(), a.cfg.search(), func(v model.Vehicle) bool {
			return !taken[v.ID] && a.eligible(env, v, req)
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		taken[v.ID] = true
		out = append(out, instruction.DispatchTrip{Vehicle: v.ID, Request: req.ID})
	}
	return out, nil
}

func (a *TripAssignment) eligible(env *environment.Environment, v model.Vehicle, r model.Request) bool {
	if v.State == nil || !a.states[v.State.Kind()] {
		return false
	}
	if !r.Membership.GrantAccess(v.Membership) || v.AvailableSeats() < len(r.Passengers) {
		return false
	}
	m, err := env.MechatronicsFor(v)
	if err != nil {
		env.Log.Errorf("trip assignment: %v", err)
		return false
	}
	rng := m.RangeRemainingKm(v)
	if v.State.Kind() == model.StateChargingBase && rng < a.cfg.BaseChargingRangeKmThreshold {
		return false
	}
	return rng > a.cfg.MatchingRangeKmThreshold
}
