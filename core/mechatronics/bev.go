package mechatronics

import (
	"fmt"
	"math"

	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/roadnetwork"
)

const (
	kmToMiles   = 0.621371
	kmphToMph   = 0.621371
	whToKWh     = 0.001
	secondsHour = 3600.0
)

// BEVConfig describes a battery electric vehicle model.
type BEVConfig struct {
	ID                      string       `json:"mechatronics_id" yaml:"mechatronics_id"`
	BatteryCapacityKWh      float64      `json:"battery_capacity_kwh" yaml:"battery_capacity_kwh"`
	IdleKWhPerHour          float64      `json:"idle_kwh_per_hour" yaml:"idle_kwh_per_hour"`
	NominalWhPerMile        float64      `json:"nominal_watt_hour_per_mile" yaml:"nominal_watt_hour_per_mile"`
	ChargeTaperCutoffKW     float64      `json:"charge_taper_cutoff_kw" yaml:"charge_taper_cutoff_kw"`
	NominalMaxChargeKW      float64      `json:"nominal_max_charge_kw" yaml:"nominal_max_charge_kw"`
	BatteryFullThresholdKWh float64      `json:"battery_full_threshold_kwh" yaml:"battery_full_threshold_kwh"`
	PowercurveStepSeconds   int          `json:"step_size_seconds" yaml:"step_size_seconds"`
	Powertrain              []SpeedPoint `json:"powertrain" yaml:"powertrain"`
	Powercurve              []PowerPoint `json:"powercurve" yaml:"powercurve"`
}

// SetDefaults fills optional fields.
func (c *BEVConfig) SetDefaults() {
	if c.BatteryFullThresholdKWh == 0 {
		c.BatteryFullThresholdKWh = 0.1
	}
	if c.PowercurveStepSeconds == 0 {
		c.PowercurveStepSeconds = 15
	}
	if c.NominalMaxChargeKW == 0 {
		c.NominalMaxChargeKW = 50
	}
	if c.ChargeTaperCutoffKW == 0 {
		c.ChargeTaperCutoffKW = 10
	}
	if len(c.Powertrain) == 0 {
		c.Powertrain = DefaultPowertrain
	}
	if len(c.Powercurve) == 0 {
		c.Powercurve = DefaultPowercurve
	}
}

// Validate checks mandatory fields.
func (c BEVConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("mechatronics_id is required")
	}
	if c.BatteryCapacityKWh <= 0 {
		return fmt.Errorf("mechatronics %s: battery capacity must be positive", c.ID)
	}
	if c.NominalWhPerMile <= 0 {
		return fmt.Errorf("mechatronics %s: nominal watt hour per mile must be positive", c.ID)
	}
	if c.IdleKWhPerHour < 0 {
		return fmt.Errorf("mechatronics %s: idle consumption must not be negative", c.ID)
	}
	if c.PowercurveStepSeconds <= 0 {
		return fmt.Errorf("mechatronics %s: step size must be positive", c.ID)
	}
	return nil
}

// BEV is a battery electric vehicle with tabular powertrain and powercurve.
type BEV struct {
	cfg        BEVConfig
	powertrain *table
	powercurve *table
}

// NewBEV validates cfg and builds the lookup tables.
func NewBEV(cfg BEVConfig) (*BEV, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pt, err := powertrainTable(cfg.Powertrain, cfg.NominalWhPerMile)
	if err != nil {
		return nil, fmt.Errorf("mechatronics %s powertrain: %w", cfg.ID, err)
	}
	pc, err := powercurveTable(cfg.Powercurve, cfg.BatteryCapacityKWh, cfg.NominalMaxChargeKW)
	if err != nil {
		return nil, fmt.Errorf("mechatronics %s powercurve: %w", cfg.ID, err)
	}
	return &BEV{cfg: cfg, powertrain: pt, powercurve: pc}, nil
}

func (b *BEV) ID() string { return b.cfg.ID }

// BatteryCapacityKWh is the usable pack size.
func (b *BEV) BatteryCapacityKWh() float64 { return b.cfg.BatteryCapacityKWh }

func (b *BEV) ValidCharger(c model.Charger) bool { return c.EnergyType == model.EnergyElectric }

func (b *BEV) InitialEnergy(soc float64) model.Energy {
	soc = math.Max(0, math.Min(1, soc))
	return model.Energy{model.EnergyElectric: b.cfg.BatteryCapacityKWh * soc}
}

func (b *BEV) kwh(v model.Vehicle) float64 { return v.Energy[model.EnergyElectric] }

func (b *BEV) SOC(v model.Vehicle) float64 { return b.kwh(v) / b.cfg.BatteryCapacityKWh }

func (b *BEV) RangeRemainingKm(v model.Vehicle) float64 {
	return b.kwh(v) / (b.cfg.NominalWhPerMile * whToKWh) / kmToMiles
}

func (b *BEV) IsEmpty(v model.Vehicle) bool { return b.kwh(v) <= 0 }

func (b *BEV) IsFull(v model.Vehicle) bool {
	return b.kwh(v) >= b.cfg.BatteryCapacityKWh-b.cfg.BatteryFullThresholdKWh
}

func (b *BEV) linkCostKWh(l roadnetwork.Link) float64 {
	whPerMile := b.powertrain.at(l.SpeedKmph * kmphToMph)
	return whPerMile * l.DistanceKm * kmToMiles * whToKWh
}

func (b *BEV) ConsumeEnergy(v model.Vehicle, r roadnetwork.Route) model.Vehicle {
	var used float64
	for _, l := range r {
		used += b.linkCostKWh(l)
	}
	return v.WithEnergy(v.Energy.With(model.EnergyElectric, math.Max(0, b.kwh(v)-used)))
}

func (b *BEV) Idle(v model.Vehicle, seconds int64) model.Vehicle {
	used := b.cfg.IdleKWhPerHour * float64(seconds) / secondsHour
	return v.WithEnergy(v.Energy.With(model.EnergyElectric, math.Max(0, b.kwh(v)-used)))
}

func (b *BEV) AddEnergy(v model.Vehicle, c model.Charger, seconds int64) (model.Vehicle, float64) {
	if !b.ValidCharger(c) || seconds <= 0 {
		return v, 0
	}
	start := b.kwh(v)
	capacity := b.cfg.BatteryCapacityKWh
	duration := float64(seconds)

	var energy, charged float64
	if c.RateKW < b.cfg.ChargeTaperCutoffKW {
		needed := (capacity - start) / c.RateKW * secondsHour
		charged = math.Max(0, math.Min(duration, needed))
		energy = start + c.RateKW*charged/secondsHour
	} else {
		energy, charged = b.chargeAlongCurve(start, c.RateKW, duration)
	}
	energy = math.Min(capacity, energy)
	return v.WithEnergy(v.Energy.With(model.EnergyElectric, energy)), charged
}

// chargeAlongCurve steps the powercurve until the duration ends or the pack
// reaches its full threshold.
func (b *BEV) chargeAlongCurve(startKWh, chargerKW, duration float64) (float64, float64) {
	full := b.cfg.BatteryCapacityKWh - b.cfg.BatteryFullThresholdKWh
	step := float64(b.cfg.PowercurveStepSeconds)
	energy := startKWh
	t := 0.0
	for t < duration && energy < full {
		dt := math.Min(step, duration-t)
		kw := math.Min(b.powercurve.at(energy), chargerKW)
		energy += kw * dt / secondsHour
		t += dt
	}
	return energy, t
}
