package model

import "fmt"

// EnergyType names a fuel a vehicle or charger deals in.
type EnergyType string

const (
	EnergyElectric EnergyType = "electric"
	EnergyGasoline EnergyType = "gasoline"
)

// ParseEnergyType validates a textual energy type.
func ParseEnergyType(s string) (EnergyType, error) {
	switch EnergyType(s) {
	case EnergyElectric, EnergyGasoline:
		return EnergyType(s), nil
	default:
		return "", fmt.Errorf("unknown energy type %q", s)
	}
}

// Charger is a catalogue entry describing a class of charging equipment.
type Charger struct {
	ID         string     `json:"id" yaml:"id"`
	EnergyType EnergyType `json:"energy_type" yaml:"energy_type"`
	RateKW     float64    `json:"rate_kw" yaml:"rate_kw"`
}

// Validate checks the catalogue entry.
func (c Charger) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("charger id is required")
	}
	if _, err := ParseEnergyType(string(c.EnergyType)); err != nil {
		return fmt.Errorf("charger %s: %w", c.ID, err)
	}
	if c.RateKW <= 0 {
		return fmt.Errorf("charger %s: rate must be positive", c.ID)
	}
	return nil
}

// Energy maps an energy type to an amount in that type's native unit.
type Energy map[EnergyType]float64

// With returns a copy of e with one entry replaced.
func (e Energy) With(t EnergyType, amount float64) Energy {
	out := make(Energy, len(e)+1)
	for k, v := range e {
		out[k] = v
	}
	out[t] = amount
	return out
}
