package plugins

import (
	"github.com/kilianp07/fleetsim/core/dispatch"

	// Handlers and sinks register from init.
	_ "github.com/kilianp07/fleetsim/infra/metrics"
	_ "github.com/kilianp07/fleetsim/infra/report"
)

func init() {
	RegisterDispatcher("default", func(cfg dispatch.Config) (dispatch.Dispatcher, error) {
		return dispatch.New(cfg)
	})
	// Vehicles only follow their state machine; useful to replay a scenario
	// without fleet management.
	RegisterDispatcher("nop", func(dispatch.Config) (dispatch.Dispatcher, error) {
		return dispatch.Nop{}, nil
	})
}
