package metrics

import (
	"context"
	"sort"

	"github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

// ReportRecorder is implemented by sinks that count flushed reports.
type ReportRecorder interface {
	RecordReports(b report.Batch) error
}

// StartReportCollector subscribes to the report bus and hands every batch
// to rec. It stops when the context is canceled or the bus is closed.
func StartReportCollector(ctx context.Context, bus *eventbus.TypedBus[report.Batch], rec ReportRecorder) {
	if bus == nil || rec == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-sub:
				if !ok {
					return
				}
				_ = rec.RecordReports(b)
			}
		}
	}()
}

func sortedStates(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
