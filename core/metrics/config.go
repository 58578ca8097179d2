package metrics

import "github.com/kilianp07/fleetsim/core/factory"

// Config lists the sinks shared by every run of the process. No sinks means
// tick statistics are discarded.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
}
