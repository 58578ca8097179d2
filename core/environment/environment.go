// Package environment carries the read-only collaborators of a run: energy
// models, the charger catalogue, the report sink and tunables that are not
// part of the simulation state itself.
package environment

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/mechatronics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/report"
)

const (
	DefaultRequestCancelTimeSeconds = 600
	DefaultFastChargeMinKW          = 50
	DefaultRecoverySOC              = 0.2
)

// Params are run-level tunables used by vehicle states and update functions.
type Params struct {
	// RequestCancelTimeSeconds is how long an undispatched request waits
	// after its departure time before it is cancelled.
	RequestCancelTimeSeconds int64 `json:"request_cancel_time_seconds"`
	// IdealFastchargeSOCLimit ends a charging session on a fast charger once
	// reached. Zero or one charges to full.
	IdealFastchargeSOCLimit float64 `json:"ideal_fastcharge_soc_limit"`
	// FastChargeMinKW is the charger rate from which IdealFastchargeSOCLimit applies.
	FastChargeMinKW float64 `json:"fast_charge_min_kw"`
	// OutOfServiceRecoverySeconds, when positive, restores stranded vehicles
	// after that long. Zero leaves them out of service.
	OutOfServiceRecoverySeconds int64 `json:"out_of_service_recovery_seconds"`
	// OutOfServiceRecoverySOC is the state of charge a recovered vehicle gets.
	OutOfServiceRecoverySOC float64 `json:"out_of_service_recovery_soc"`
}

// SetDefaults fills zero values.
func (p *Params) SetDefaults() {
	if p.RequestCancelTimeSeconds == 0 {
		p.RequestCancelTimeSeconds = DefaultRequestCancelTimeSeconds
	}
	if p.FastChargeMinKW == 0 {
		p.FastChargeMinKW = DefaultFastChargeMinKW
	}
	if p.OutOfServiceRecoverySeconds > 0 && p.OutOfServiceRecoverySOC == 0 {
		p.OutOfServiceRecoverySOC = DefaultRecoverySOC
	}
}

// Validate checks ranges.
func (p Params) Validate() error {
	if p.RequestCancelTimeSeconds < 0 {
		return fmt.Errorf("request cancel time must not be negative")
	}
	if p.OutOfServiceRecoverySeconds < 0 {
		return fmt.Errorf("out of service recovery time must not be negative")
	}
	if p.IdealFastchargeSOCLimit < 0 || p.IdealFastchargeSOCLimit > 1 {
		return fmt.Errorf("ideal fastcharge soc limit %v out of [0,1]", p.IdealFastchargeSOCLimit)
	}
	if p.OutOfServiceRecoverySOC < 0 || p.OutOfServiceRecoverySOC > 1 {
		return fmt.Errorf("out of service recovery soc %v out of [0,1]", p.OutOfServiceRecoverySOC)
	}
	return nil
}

// Environment is shared by every tick of a run and never modified by it.
type Environment struct {
	Mechatronics mechatronics.Registry
	Chargers     map[string]model.Charger
	Reporter     report.Sink
	Log          logger.Logger
	Params       Params
}

// New validates the catalogue and fills nil collaborators with no-ops.
func New(mechs mechatronics.Registry, chargers map[string]model.Charger, sink report.Sink, log logger.Logger, params Params) (*Environment, error) {
	if len(mechs) == 0 {
		return nil, fmt.Errorf("no mechatronics configured")
	}
	for id, c := range chargers {
		if id != c.ID {
			return nil, fmt.Errorf("charger keyed %s has id %s", id, c.ID)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	params.SetDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = report.NopSink{}
	}
	return &Environment{
		Mechatronics: mechs,
		Chargers:     chargers,
		Reporter:     sink,
		Log:          logger.OrNop(log),
		Params:       params,
	}, nil
}

// MechatronicsFor returns the energy model of a vehicle.
func (e *Environment) MechatronicsFor(v model.Vehicle) (mechatronics.Mechatronics, error) {
	m, ok := e.Mechatronics.Get(v.MechatronicsID)
	if !ok {
		return nil, fmt.Errorf("vehicle %s: unknown mechatronics id %q", v.ID, v.MechatronicsID)
	}
	return m, nil
}

// Charger looks up a charger in the catalogue.
func (e *Environment) Charger(id string) (model.Charger, error) {
	c, ok := e.Chargers[id]
	if !ok {
		return model.Charger{}, fmt.Errorf("%w: %s", model.ErrChargerNotFound, id)
	}
	return c, nil
}

// File forwards a report to the sink.
func (e *Environment) File(r report.Report) { e.Reporter.File(r) }
