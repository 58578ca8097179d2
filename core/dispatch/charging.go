package dispatch

import (
	"sort"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/instruction"
	"github.com/kilianp07/fleetsim/core/mechatronics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/core/simstate"
)

// ChargingFleetManager sends vehicles running low to the nearest station they
// may use.
type ChargingFleetManager struct {
	cfg Config
}

func NewChargingFleetManager(cfg Config) *ChargingFleetManager {
	cfg.SetDefaults()
	return &ChargingFleetManager{cfg: cfg}
}

func (c *ChargingFleetManager) Generate(sim *simstate.SimulationState, env *environment.Environment) ([]instruction.Instruction, error) {
	candidates := sim.VehiclesWhere(func(v model.Vehicle) bool {
		if v.State == nil {
			return false
		}
		k := v.State.Kind()
		return k == model.StateIdle || k == model.StateRepositioning
	})

	var out []instruction.Instruction
	for _, v := range candidates {
		m, err := env.MechatronicsFor(v)
		if err != nil {
			env.Log.Errorf("charging fleet manager: %v", err)
			continue
		}
		if m.IsFull(v) {
			continue
		}
		rng := m.RangeRemainingKm(v)
		if rng > c.cfg.ChargingRangeKmSoftThreshold {
			continue
		}
		st, ok, err := sim.NearestStation(v.GeoID(), c.cfg.search(), usableStation(env, m, v))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		dist := geo.DistanceKm(v.GeoID(), st.GeoID())
		if c.cfg.ChargingRangeKmThreshold+dist < rng {
			continue
		}
		charger := bestCharger(env, m, st)
		if charger == "" {
			continue
		}
		env.File(report.New(report.RefuelSearchEvent, sim.SimTime(), map[string]any{
			"vehicle_id":         v.ID,
			"vehicle_state":      v.State.Kind().String(),
			"station_id":         st.ID,
			"charger_id":         charger,
			"distance_km":        dist,
			"range_remaining_km": rng,
			"soc":                m.SOC(v),
			"geoid":              v.GeoID().String(),
		}))
		out = append(out, instruction.DispatchStation{Vehicle: v.ID, Station: st.ID, Charger: charger})
	}
	return out, nil
}

// usableStation accepts stations the vehicle may enter and that carry at
// least one charger its powertrain can use.
func usableStation(env *environment.Environment, m mechatronics.Mechatronics, v model.Vehicle) func(model.Station) bool {
	return func(st model.Station) bool {
		return st.Membership.GrantAccess(v.Membership) && bestCharger(env, m, st) != ""
	}
}

// bestCharger prefers free chargers, then short queues, then higher rates.
func bestCharger(env *environment.Environment, m mechatronics.Mechatronics, st model.Station) string {
	type option struct {
		id    string
		state model.ChargerState
		rate  float64
	}
	var opts []option
	for _, id := range st.ChargerIDs() {
		cs := st.Chargers[id]
		c, err := env.Charger(id)
		if err != nil || cs.Total == 0 || !m.ValidCharger(c) {
			continue
		}
		opts = append(opts, option{id: id, state: cs, rate: c.RateKW})
	}
	if len(opts) == 0 {
		return ""
	}
	sort.SliceStable(opts, func(i, j int) bool {
		a, b := opts[i], opts[j]
		if (a.state.Available > 0) != (b.state.Available > 0) {
			return a.state.Available > 0
		}
		if a.state.Enqueued != b.state.Enqueued {
			return a.state.Enqueued < b.state.Enqueued
		}
		return a.rate > b.rate
	})
	return opts[0].id
}
