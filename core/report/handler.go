package report

import (
	"context"

	"github.com/kilianp07/fleetsim/core/factory"
	"github.com/kilianp07/fleetsim/core/simstate"
)

// Batch is everything reported during one tick of one run.
type Batch struct {
	RunID   string   `json:"run_id"`
	SimTime int64    `json:"sim_time"`
	Reports []Report `json:"reports"`
}

// Handler consumes report batches.
type Handler interface {
	Handle(ctx context.Context, b Batch) error
	Close() error
}

// StateHandler is implemented by handlers that also want the state reached
// at the end of each tick.
type StateHandler interface {
	HandleState(ctx context.Context, runID string, sim *simstate.SimulationState) error
}

var handlerRegistry = factory.NewRegistry[Handler]()

// RegisterHandler adds a handler factory identified by name.
func RegisterHandler(name string, f factory.Factory[Handler]) error {
	return handlerRegistry.Register(name, f)
}

// HandlerTypes lists the registered handler types.
func HandlerTypes() []string { return handlerRegistry.Names() }

// NewHandlers builds one handler per module config, closing the ones already
// built if a later one fails.
func NewHandlers(cfgs []factory.ModuleConfig) ([]Handler, error) {
	out := make([]Handler, 0, len(cfgs))
	for _, c := range cfgs {
		h, err := handlerRegistry.Create(c)
		if err != nil {
			for _, built := range out {
				_ = built.Close()
			}
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}
