package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

func sampleTick() coremetrics.TickStats {
	return coremetrics.TickStats{
		RunID:              "r1",
		SimTime:            120,
		VehiclesByState:    map[string]int{"idle": 3, "charging_station": 1},
		OpenRequests:       4,
		DispatchedRequests: 2,
		ChargersInUse:      1,
		MeanSOC:            0.55,
		Instructions:       5,
		InstructionErrors:  1,
		UpdateErrors:       2,
		Elapsed:            3 * time.Millisecond,
	}
}

func TestPromSinkRecordTick(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s.RecordTick(sampleTick()))
	require.NoError(t, s.RecordTick(sampleTick()))

	assert.Equal(t, 3.0, testutil.ToFloat64(s.vehicles.WithLabelValues("r1", "idle")))
	assert.Equal(t, 4.0, testutil.ToFloat64(s.requests.WithLabelValues("r1", "open")))
	assert.Equal(t, 0.55, testutil.ToFloat64(s.meanSOC.WithLabelValues("r1")))
	assert.Equal(t, 120.0, testutil.ToFloat64(s.simTime.WithLabelValues("r1")))
	assert.Equal(t, 8.0, testutil.ToFloat64(s.instructions.WithLabelValues("r1", "applied")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.instructions.WithLabelValues("r1", "rejected")))
	assert.Equal(t, 4.0, testutil.ToFloat64(s.updateErrors.WithLabelValues("r1")))
	assert.Equal(t, 1, testutil.CollectAndCount(s.tickDuration))
}

func TestPromSinkSharesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	b, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, a.RecordRun(coremetrics.RunEvent{Status: coremetrics.RunStarted}))
	require.NoError(t, b.RecordRun(coremetrics.RunEvent{Status: coremetrics.RunStarted}))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.runs.WithLabelValues("started")))
}

func TestReportCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	bus := eventbus.NewTyped[report.Batch]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartReportCollector(ctx, bus, s)

	bus.Publish(report.Batch{RunID: "r1", Reports: []report.Report{
		report.New(report.AddRequestEvent, 0, nil),
		report.New(report.AddRequestEvent, 0, nil),
		report.New(report.Error, 0, nil),
	}})
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(s.reports.WithLabelValues("r1", "add_request_event")) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.reports.WithLabelValues("r1", "error")))
}
