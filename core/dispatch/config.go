package dispatch

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
)

const (
	GeneratorTrips    = "trip_assignment"
	GeneratorCharging = "charging_fleet_manager"
	GeneratorBase     = "base_fleet_manager"
)

// Config holds the thresholds shared by the default instruction generators.
type Config struct {
	// Policy names the dispatcher plugin built from this config.
	Policy                       string  `json:"policy"`
	MatchingRangeKmThreshold     float64 `json:"matching_range_km_threshold"`
	ChargingRangeKmThreshold     float64 `json:"charging_range_km_threshold"`
	ChargingRangeKmSoftThreshold float64 `json:"charging_range_km_soft_threshold"`
	BaseChargingRangeKmThreshold float64 `json:"base_charging_range_km_threshold"`
	BaseChargingSOCThreshold     float64 `json:"base_charging_soc_threshold"`
	IdealFastchargeSOCLimit      float64 `json:"ideal_fastcharge_soc_limit"`
	MaxSearchRadiusKm            float64 `json:"max_search_radius_km"`
	MaxRing                      int     `json:"max_ring"`
	IdleTimeOutSeconds           int64   `json:"idle_time_out_seconds"`
	// ValidDispatchStates lists the states from which a vehicle may be
	// assigned a trip.
	ValidDispatchStates []string `json:"valid_dispatch_states"`
	// Generators runs in order; later generators override earlier ones for
	// the same vehicle.
	Generators []string `json:"generators"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Policy == "" {
		c.Policy = "default"
	}
	if c.MatchingRangeKmThreshold == 0 {
		c.MatchingRangeKmThreshold = 20
	}
	if c.ChargingRangeKmThreshold == 0 {
		c.ChargingRangeKmThreshold = 20
	}
	if c.ChargingRangeKmSoftThreshold == 0 {
		c.ChargingRangeKmSoftThreshold = 50
	}
	if c.BaseChargingRangeKmThreshold == 0 {
		c.BaseChargingRangeKmThreshold = 100
	}
	if c.BaseChargingSOCThreshold == 0 {
		c.BaseChargingSOCThreshold = 0.8
	}
	if c.IdealFastchargeSOCLimit == 0 {
		c.IdealFastchargeSOCLimit = 0.8
	}
	if c.MaxSearchRadiusKm == 0 {
		c.MaxSearchRadiusKm = geo.DefaultMaxSearchRadiusKm
	}
	if c.IdleTimeOutSeconds == 0 {
		c.IdleTimeOutSeconds = 1800
	}
	if len(c.ValidDispatchStates) == 0 {
		c.ValidDispatchStates = []string{"idle", "repositioning"}
	}
	if len(c.Generators) == 0 {
		c.Generators = []string{GeneratorBase, GeneratorTrips, GeneratorCharging}
	}
}

// Validate checks ranges and names.
func (c Config) Validate() error {
	if c.MatchingRangeKmThreshold < 0 || c.ChargingRangeKmThreshold < 0 || c.ChargingRangeKmSoftThreshold < 0 {
		return fmt.Errorf("dispatcher range thresholds must not be negative")
	}
	if c.BaseChargingSOCThreshold < 0 || c.BaseChargingSOCThreshold > 1 {
		return fmt.Errorf("base_charging_soc_threshold %v out of [0,1]", c.BaseChargingSOCThreshold)
	}
	if c.IdealFastchargeSOCLimit < 0 || c.IdealFastchargeSOCLimit > 1 {
		return fmt.Errorf("ideal_fastcharge_soc_limit %v out of [0,1]", c.IdealFastchargeSOCLimit)
	}
	if c.MaxSearchRadiusKm < 0 || c.MaxRing < 0 {
		return fmt.Errorf("search bounds must not be negative")
	}
	if _, err := c.dispatchStates(); err != nil {
		return err
	}
	for _, g := range c.Generators {
		if _, ok := generators[g]; !ok {
			return fmt.Errorf("unknown instruction generator %q", g)
		}
	}
	return nil
}

func (c Config) search() geo.SearchConfig {
	return geo.SearchConfig{MaxRadiusKm: c.MaxSearchRadiusKm, MaxRing: c.MaxRing}
}

func (c Config) dispatchStates() (map[model.StateKind]bool, error) {
	out := make(map[model.StateKind]bool, len(c.ValidDispatchStates))
	for _, s := range c.ValidDispatchStates {
		k, err := model.ParseStateKind(s)
		if err != nil {
			return nil, fmt.Errorf("valid_dispatch_states: %w", err)
		}
		out[k] = true
	}
	return out, nil
}
