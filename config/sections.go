package config

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/roadnetwork"
	"github.com/kilianp07/fleetsim/core/simstate"
)

// SimConfig is the clock and resolution of every run.
type SimConfig struct {
	Name string `json:"name"`
	// StartTime and EndTime are integer seconds or RFC 3339 timestamps.
	StartTime                   string  `json:"start_time"`
	EndTime                     string  `json:"end_time"`
	TimestepSeconds             int64   `json:"timestep_duration_seconds"`
	LocationResolution          int     `json:"sim_h3_resolution"`
	SearchResolution            int     `json:"sim_h3_search_resolution"`
	RequestCancelTimeSeconds    int64   `json:"request_cancel_time_seconds"`
	FastChargeMinKW             float64 `json:"fast_charge_min_kw"`
	OutOfServiceRecoverySeconds int64   `json:"out_of_service_recovery_seconds"`
	OutOfServiceRecoverySOC     float64 `json:"out_of_service_recovery_soc"`
}

// SetDefaults fills zero values.
func (c *SimConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "fleetsim"
	}
	if c.StartTime == "" {
		c.StartTime = "0"
	}
	if c.EndTime == "" {
		c.EndTime = "86400"
	}
	if c.TimestepSeconds == 0 {
		c.TimestepSeconds = simstate.DefaultTimestepSeconds
	}
	if c.LocationResolution == 0 {
		c.LocationResolution = simstate.DefaultLocationResolution
	}
	if c.SearchResolution == 0 {
		c.SearchResolution = simstate.DefaultSearchResolution
	}
	if c.RequestCancelTimeSeconds == 0 {
		c.RequestCancelTimeSeconds = environment.DefaultRequestCancelTimeSeconds
	}
}

// Validate checks the clock and delegates the rest to the state and
// environment configs.
func (c SimConfig) Validate() error {
	st, err := c.State()
	if err != nil {
		return err
	}
	if err := st.Validate(); err != nil {
		return err
	}
	end, err := c.End()
	if err != nil {
		return err
	}
	if end <= st.StartTime {
		return fmt.Errorf("end_time %s must be after start_time %s", c.EndTime, c.StartTime)
	}
	return c.Params(0).Validate()
}

// State returns the simulation state config.
func (c SimConfig) State() (simstate.Config, error) {
	start, err := model.ParseSimTime(c.StartTime)
	if err != nil {
		return simstate.Config{}, fmt.Errorf("start_time: %w", err)
	}
	return simstate.Config{
		StartTime:          start,
		TimestepSeconds:    c.TimestepSeconds,
		LocationResolution: c.LocationResolution,
		SearchResolution:   c.SearchResolution,
	}, nil
}

// End is the exclusive end of a run.
func (c SimConfig) End() (model.SimTime, error) {
	end, err := model.ParseSimTime(c.EndTime)
	if err != nil {
		return 0, fmt.Errorf("end_time: %w", err)
	}
	return end, nil
}

// Params returns the environment tunables. The fast charge SOC limit is
// owned by the dispatcher section.
func (c SimConfig) Params(idealFastchargeSOCLimit float64) environment.Params {
	return environment.Params{
		RequestCancelTimeSeconds:    c.RequestCancelTimeSeconds,
		IdealFastchargeSOCLimit:     idealFastchargeSOCLimit,
		FastChargeMinKW:             c.FastChargeMinKW,
		OutOfServiceRecoverySeconds: c.OutOfServiceRecoverySeconds,
		OutOfServiceRecoverySOC:     c.OutOfServiceRecoverySOC,
	}
}

// NetworkConfig selects the road network.
type NetworkConfig struct {
	// Type is "haversine", the only built-in network.
	Type      string   `json:"type"`
	SpeedKmph float64  `json:"default_speed_kmph"`
	Geofence  []string `json:"geofence"`
}

// SetDefaults fills zero values.
func (c *NetworkConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "haversine"
	}
	if c.SpeedKmph == 0 {
		c.SpeedKmph = roadnetwork.DefaultSpeedKmph
	}
}

// Validate checks the network type and speed.
func (c NetworkConfig) Validate() error {
	if c.Type != "haversine" {
		return fmt.Errorf("unknown network type %q", c.Type)
	}
	if c.SpeedKmph < 0 {
		return fmt.Errorf("speed must not be negative")
	}
	return nil
}

// Build constructs the configured road network.
func (c NetworkConfig) Build() (roadnetwork.RoadNetwork, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return roadnetwork.NewHaversine(roadnetwork.HaversineConfig{SpeedKmph: c.SpeedKmph, Geofence: c.Geofence})
}

// ScenarioConfig points at the scenario file of a single run.
type ScenarioConfig struct {
	Path string `json:"path"`
}

// RunSpec is one entry of a multi-run plan.
type RunSpec struct {
	Name     string `json:"name"`
	Scenario string `json:"scenario"`
}

// RunsConfig controls how many runs execute at once.
type RunsConfig struct {
	LocalParallelism int       `json:"local_parallelism"`
	Scenarios        []RunSpec `json:"scenarios"`
}

// SetDefaults fills zero values.
func (c *RunsConfig) SetDefaults() {
	if c.LocalParallelism == 0 {
		c.LocalParallelism = 1
	}
}

// Validate checks the parallelism and that every run names a scenario.
func (c RunsConfig) Validate() error {
	if c.LocalParallelism < 1 {
		return fmt.Errorf("local_parallelism must be at least 1")
	}
	for i, r := range c.Scenarios {
		if r.Scenario == "" {
			return fmt.Errorf("scenarios[%d]: scenario path is required", i)
		}
	}
	return nil
}
