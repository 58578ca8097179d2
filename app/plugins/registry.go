// Package plugins names the pluggable parts of a run. Dispatcher policies
// register here; report handlers and metrics sinks keep their own registries
// in core and are listed here for the CLI.
package plugins

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/fleetsim/core/dispatch"
	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	corereport "github.com/kilianp07/fleetsim/core/report"
)

// DispatcherFactory builds a dispatcher policy from the dispatcher section.
type DispatcherFactory func(cfg dispatch.Config) (dispatch.Dispatcher, error)

var (
	mu          sync.RWMutex
	dispatchers = map[string]DispatcherFactory{}
)

// RegisterDispatcher adds a policy. Registering a name twice panics.
func RegisterDispatcher(name string, f DispatcherFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := dispatchers[name]; ok {
		panic(fmt.Sprintf("plugins: dispatcher %q registered twice", name))
	}
	dispatchers[name] = f
}

// NewDispatcher builds the policy named by cfg.Policy.
func NewDispatcher(cfg dispatch.Config) (dispatch.Dispatcher, error) {
	cfg.SetDefaults()
	mu.RLock()
	f, ok := dispatchers[cfg.Policy]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown dispatcher policy %q", cfg.Policy)
	}
	return f(cfg)
}

// Dispatchers lists the registered policies.
func Dispatchers() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(dispatchers))
	for name := range dispatchers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Catalogue is every plugin name by kind.
type Catalogue struct {
	Dispatchers    []string `json:"dispatchers"`
	ReportHandlers []string `json:"report_handlers"`
	MetricsSinks   []string `json:"metrics_sinks"`
}

// List returns the catalogue.
func List() Catalogue {
	return Catalogue{
		Dispatchers:    Dispatchers(),
		ReportHandlers: corereport.HandlerTypes(),
		MetricsSinks:   coremetrics.SinkTypes(),
	}
}
