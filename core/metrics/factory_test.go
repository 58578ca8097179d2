package metrics_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/fleetsim/core/factory"
	metrics "github.com/kilianp07/fleetsim/core/metrics"
)

type countingSink struct {
	ticks int
	runs  []metrics.RunStatus
}

func (c *countingSink) RecordTick(metrics.TickStats) error {
	c.ticks++
	return nil
}

func (c *countingSink) RecordRun(ev metrics.RunEvent) error {
	c.runs = append(c.runs, ev.Status)
	return nil
}

type tickOnlySink struct{ ticks int }

func (s *tickOnlySink) RecordTick(metrics.TickStats) error {
	s.ticks++
	return nil
}

func init() {
	_ = metrics.RegisterSink("counting", func(map[string]any) (metrics.Sink, error) {
		return &countingSink{}, nil
	})
	_ = metrics.RegisterSink("ticks_only", func(map[string]any) (metrics.Sink, error) {
		return &tickOnlySink{}, nil
	})
}

func TestNewSinkFromRegistry(t *testing.T) {
	s, err := metrics.NewSink([]factory.ModuleConfig{{Type: "counting"}})
	require.NoError(t, err)
	assert.IsType(t, &countingSink{}, s)

	_, err = metrics.NewSink([]factory.ModuleConfig{{Type: "statsd"}})
	assert.Error(t, err)
	assert.Contains(t, metrics.SinkTypes(), "counting")
}

func TestNewSinkDefaultsToNop(t *testing.T) {
	s, err := metrics.NewSink(nil)
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)
}

func TestMultiSinkFromYAML(t *testing.T) {
	var cfg metrics.Config
	require.NoError(t, yaml.Unmarshal([]byte("sinks:\n  - type: counting\n  - type: ticks_only\n"), &cfg))
	s, err := metrics.NewSink(cfg.Sinks)
	require.NoError(t, err)
	m, ok := s.(*metrics.MultiSink)
	require.True(t, ok, "expected MultiSink, got %T", s)
	require.Len(t, m.Sinks, 2)

	require.NoError(t, m.RecordTick(metrics.TickStats{RunID: "r1"}))
	require.NoError(t, m.RecordRun(metrics.RunEvent{RunID: "r1", Status: metrics.RunStarted}))
	assert.Equal(t, 1, m.Sinks[0].(*countingSink).ticks)
	assert.Equal(t, []metrics.RunStatus{metrics.RunStarted}, m.Sinks[0].(*countingSink).runs)
	assert.Equal(t, 1, m.Sinks[1].(*tickOnlySink).ticks)
}

func TestConfigFromJSONWithUnknownSink(t *testing.T) {
	var cfg metrics.Config
	require.NoError(t, json.Unmarshal([]byte(`{"sinks":[{"type":"counting"},{"type":"missing"}]}`), &cfg))
	_, err := metrics.NewSink(cfg.Sinks)
	assert.ErrorContains(t, err, "unknown module type missing")
}
