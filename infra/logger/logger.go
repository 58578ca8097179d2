package logger

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/fleetsim/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// Config controls log output.
type Config struct {
	// Level is one of debug, info, warn or error.
	Level string `json:"level"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate rejects unknown levels.
func (c Config) Validate() error {
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	return nil
}

// Setup applies the configured level to every logger.
func Setup(cfg Config) error {
	cfg.SetDefaults()
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

func parseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "error":
		return zerolog.ParseLevel(strings.ToLower(s))
	}
	return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
}

// New returns a Logger for the given component. The environment is detected via
// the APP_ENV variable.
func New(component string) Logger {
	return NewZerologLogger(component)
}

// ForRun returns a component logger tagging every line with the run id.
func ForRun(component, runID string) Logger {
	return newZerolog(component, map[string]string{"run_id": runID})
}
