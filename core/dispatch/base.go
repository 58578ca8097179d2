package dispatch

import (
	"sort"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/instruction"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/simstate"
	"github.com/kilianp07/fleetsim/core/vehiclestate"
)

// BaseFleetManager returns vehicles that idled too long to a base and tops up
// the ones parked there.
type BaseFleetManager struct {
	cfg Config
}

func NewBaseFleetManager(cfg Config) *BaseFleetManager {
	cfg.SetDefaults()
	return &BaseFleetManager{cfg: cfg}
}

func (b *BaseFleetManager) Generate(sim *simstate.SimulationState, env *environment.Environment) ([]instruction.Instruction, error) {
	out, err := b.returnToBase(sim)
	if err != nil {
		return nil, err
	}
	return append(out, b.chargeAtBase(sim, env)...), nil
}

func (b *BaseFleetManager) returnToBase(sim *simstate.SimulationState) ([]instruction.Instruction, error) {
	timedOut := sim.VehiclesWhere(func(v model.Vehicle) bool {
		return v.State != nil && v.State.Kind() == model.StateIdle && v.IdleDurationSeconds > b.cfg.IdleTimeOutSeconds
	})
	// stalls promised this tick
	claimed := make(map[string]int)
	var out []instruction.Instruction
	for _, v := range timedOut {
		veh := v
		base, ok, err := sim.NearestBase(veh.GeoID(), b.cfg.search(), func(bs model.Base) bool {
			return bs.Membership.GrantAccess(veh.Membership) && bs.AvailableStalls > claimed[bs.ID]
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		claimed[base.ID]++
		out = append(out, instruction.DispatchBase{Vehicle: veh.ID, Base: base.ID})
	}
	return out, nil
}

// chargeAtBase plugs in reserve vehicles below the base charging threshold,
// emptiest first, on the slowest charger the base's station offers.
func (b *BaseFleetManager) chargeAtBase(sim *simstate.SimulationState, env *environment.Environment) []instruction.Instruction {
	parked := sim.VehiclesWhere(func(v model.Vehicle) bool {
		_, ok := v.State.(vehiclestate.ReserveBase)
		return ok
	})
	sort.SliceStable(parked, func(i, j int) bool {
		ei, ej := parked[i].Energy[model.EnergyElectric], parked[j].Energy[model.EnergyElectric]
		if ei != ej {
			return ei < ej
		}
		return parked[i].ID < parked[j].ID
	})

	used := make(map[string]int)
	var out []instruction.Instruction
	for _, v := range parked {
		rb := v.State.(vehiclestate.ReserveBase)
		base, ok := sim.Base(rb.BaseID)
		if !ok || base.StationID == "" {
			continue
		}
		st, ok := sim.Station(base.StationID)
		if !ok {
			env.Log.Errorf("base %s references missing station %s", base.ID, base.StationID)
			continue
		}
		m, err := env.MechatronicsFor(v)
		if err != nil {
			env.Log.Errorf("base fleet manager: %v", err)
			continue
		}
		if m.IsFull(v) || m.SOC(v) >= b.cfg.BaseChargingSOCThreshold {
			continue
		}
		charger := ""
		rate := 0.0
		for _, id := range st.ChargerIDs() {
			c, err := env.Charger(id)
			if err != nil || !m.ValidCharger(c) {
				continue
			}
			if st.Chargers[id].Available-used[st.ID+"/"+id] <= 0 {
				continue
			}
			if charger == "" || c.RateKW < rate {
				charger, rate = id, c.RateKW
			}
		}
		if charger == "" {
			continue
		}
		used[st.ID+"/"+charger]++
		out = append(out, instruction.ChargeBase{Vehicle: v.ID, Base: base.ID, Charger: charger})
	}
	return out
}
