package metrics

import (
	"time"

	"github.com/kilianp07/fleetsim/core/mechatronics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/simstate"
)

// TickStats is what a run looks like at the end of one tick.
type TickStats struct {
	RunID   string
	SimTime model.SimTime
	// VehiclesByState counts vehicles per state name; every state is present.
	VehiclesByState    map[string]int
	OpenRequests       int
	DispatchedRequests int
	ChargersInUse      int
	ChargersQueued     int
	MeanSOC            float64
	Instructions       int
	InstructionErrors  int
	UpdateErrors       int
	// Elapsed is the wall time spent on the tick.
	Elapsed time.Duration
}

// Sink records tick statistics for observability purposes.
type Sink interface {
	RecordTick(st TickStats) error
}

// RunStatus is the lifecycle step of a run.
type RunStatus string

const (
	RunStarted  RunStatus = "started"
	RunFinished RunStatus = "finished"
	RunFailed   RunStatus = "failed"
)

// RunEvent marks a run starting or ending.
type RunEvent struct {
	RunID    string
	Scenario string
	Status   RunStatus
	Ticks    int
	Error    string
	Time     time.Time
}

// RunRecorder is implemented by sinks that also track run lifecycle.
type RunRecorder interface {
	RecordRun(ev RunEvent) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordTick(TickStats) error { return nil }
func (NopSink) RecordRun(RunEvent) error   { return nil }

// MultiSink fans records out to several sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordTick forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordTick(st TickStats) error {
	for _, s := range m.Sinks {
		if err := s.RecordTick(st); err != nil {
			return err
		}
	}
	return nil
}

// RecordRun forwards run events to the sinks that track them.
func (m *MultiSink) RecordRun(ev RunEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(RunRecorder); ok {
			if err := rec.RecordRun(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Collect derives the occupancy figures of a snapshot. Counters that only
// the runner knows (instructions, errors, elapsed time) are left zero.
func Collect(runID string, sim *simstate.SimulationState, mechs mechatronics.Registry) TickStats {
	st := TickStats{
		RunID:           runID,
		SimTime:         sim.SimTime(),
		VehiclesByState: make(map[string]int, len(model.AllStateKinds)),
	}
	for _, k := range model.AllStateKinds {
		st.VehiclesByState[k.String()] = 0
	}
	var socSum float64
	var socN int
	for _, v := range sim.Vehicles() {
		if v.State != nil {
			st.VehiclesByState[v.State.Kind().String()]++
		}
		if m, ok := mechs.Get(v.MechatronicsID); ok {
			socSum += m.SOC(v)
			socN++
		}
	}
	if socN > 0 {
		st.MeanSOC = socSum / float64(socN)
	}
	for _, r := range sim.Requests() {
		if r.IsDispatched() {
			st.DispatchedRequests++
		} else {
			st.OpenRequests++
		}
	}
	for _, s := range sim.Stations() {
		for _, cs := range s.Chargers {
			st.ChargersInUse += cs.InUse()
			st.ChargersQueued += cs.Enqueued
		}
	}
	return st
}
