// Package config loads the fleetsim configuration file. YAML and JSON are
// accepted; FLEETSIM_SECTION__KEY environment variables override file values.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/fleetsim/core/dispatch"
	"github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/infra/httpapi"
	"github.com/kilianp07/fleetsim/infra/logger"
)

// EnvPrefix marks environment overrides.
const EnvPrefix = "FLEETSIM_"

type Config struct {
	Sim        SimConfig       `json:"sim"`
	Network    NetworkConfig   `json:"network"`
	Dispatcher dispatch.Config `json:"dispatcher"`
	Scenario   ScenarioConfig  `json:"scenario"`
	Reporting  report.Config   `json:"reporting"`
	Metrics    metrics.Config  `json:"metrics"`
	HTTP       httpapi.Config  `json:"http"`
	Logging    logger.Config   `json:"logging"`
	Runs       RunsConfig      `json:"runs"`
}

// Load reads path, applies environment overrides, fills defaults and
// validates every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Sim.SetDefaults()
	c.Network.SetDefaults()
	c.Dispatcher.SetDefaults()
	c.HTTP.SetDefaults()
	c.Logging.SetDefaults()
	c.Runs.SetDefaults()
}

// Validate checks every section and joins the failures.
func (c Config) Validate() error {
	var errs []error
	wrap := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}
	wrap("sim", c.Sim.Validate())
	wrap("network", c.Network.Validate())
	wrap("dispatcher", c.Dispatcher.Validate())
	wrap("reporting", c.Reporting.Validate())
	wrap("logging", c.Logging.Validate())
	wrap("runs", c.Runs.Validate())
	if c.Scenario.Path == "" && len(c.Runs.Scenarios) == 0 {
		errs = append(errs, fmt.Errorf("scenario: a scenario path or runs.scenarios is required"))
	}
	return errors.Join(errs...)
}

// resolvePaths makes scenario paths relative to the config file.
func (c *Config) resolvePaths(dir string) {
	rel := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Scenario.Path = rel(c.Scenario.Path)
	for i := range c.Runs.Scenarios {
		c.Runs.Scenarios[i].Scenario = rel(c.Runs.Scenarios[i].Scenario)
	}
}

// Plan lists the runs to execute: runs.scenarios when set, otherwise a
// single run of the scenario section.
func (c Config) Plan() []RunSpec {
	if len(c.Runs.Scenarios) > 0 {
		return append([]RunSpec(nil), c.Runs.Scenarios...)
	}
	return []RunSpec{{Name: c.Sim.Name, Scenario: c.Scenario.Path}}
}
