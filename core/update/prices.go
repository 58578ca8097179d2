package update

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/simstate"
)

// PriceChange sets the price of one charger type from Time on. An empty
// StationID applies to every station offering the charger.
type PriceChange struct {
	Time        model.SimTime `json:"time" yaml:"time"`
	StationID   string        `json:"station_id,omitempty" yaml:"station_id"`
	ChargerID   string        `json:"charger_id" yaml:"charger_id"`
	PricePerKWh float64       `json:"price_per_kwh" yaml:"price_per_kwh"`
}

// ChargingPriceUpdate applies a charging price schedule.
type ChargingPriceUpdate struct {
	schedule []PriceChange
	next     int
}

// NewChargingPriceUpdate orders the schedule by time, keeping the given
// order for changes at the same time.
func NewChargingPriceUpdate(schedule []PriceChange) (*ChargingPriceUpdate, error) {
	sorted := append([]PriceChange(nil), schedule...)
	for _, c := range sorted {
		if c.ChargerID == "" {
			return nil, fmt.Errorf("price change at %d: charger id is required", c.Time)
		}
		if c.PricePerKWh < 0 {
			return nil, fmt.Errorf("price change at %d: negative price %v", c.Time, c.PricePerKWh)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	return &ChargingPriceUpdate{schedule: sorted}, nil
}

func (u *ChargingPriceUpdate) Name() string { return "charging_price_update" }

func (u *ChargingPriceUpdate) Update(_ context.Context, sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	now := sim.SimTime()
	out := sim
	var errs []error
	for u.next < len(u.schedule) && u.schedule[u.next].Time <= now {
		c := u.schedule[u.next]
		u.next++
		var targets []model.Station
		if c.StationID != "" {
			st, ok := out.Station(c.StationID)
			if !ok {
				errs = append(errs, fmt.Errorf("price change at %d: %w: station %s", c.Time, simstate.ErrNotFound, c.StationID))
				continue
			}
			targets = []model.Station{st}
		} else {
			targets = out.StationsWhere(func(st model.Station) bool {
				_, ok := st.Chargers[c.ChargerID]
				return ok
			})
		}
		for _, st := range targets {
			priced, err := st.UpdatePrices(map[string]float64{c.ChargerID: c.PricePerKWh})
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next, err := out.ModifyStation(priced)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out = next
		}
		env.Log.Debugf("charger %s priced at %.3f/kWh at %d stations", c.ChargerID, c.PricePerKWh, len(targets))
	}
	return out, errors.Join(errs...)
}
