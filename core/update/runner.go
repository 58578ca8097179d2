package update

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/fleetsim/core/dispatch"
	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/instruction"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/core/simstate"
	"github.com/kilianp07/fleetsim/core/vehiclestate"
)

// Flusher closes a tick of reporting. *report.Reporter implements it.
type Flusher interface {
	Flush(ctx context.Context, sim *simstate.SimulationState) error
}

// Runner owns the state chain of one simulation run. Each Step ingests
// updates, asks the dispatcher for instructions, applies them, advances
// every vehicle and moves the clock forward.
type Runner struct {
	runID      string
	scenario   string
	env        *environment.Environment
	dispatcher dispatch.Dispatcher
	end        model.SimTime
	updates    []Function
	reporter   Flusher
	sink       metrics.Sink
	log        logger.Logger
	onTick     func(*simstate.SimulationState)
	ticks      int
}

// Option customises a Runner.
type Option func(*Runner)

// WithUpdates sets the functions run at the start of every tick, in order.
func WithUpdates(fs ...Function) Option {
	return func(r *Runner) { r.updates = append(r.updates, fs...) }
}

// WithReporter flushes reports at the end of every tick.
func WithReporter(f Flusher) Option {
	return func(r *Runner) { r.reporter = f }
}

// WithMetrics records tick statistics on s.
func WithMetrics(s metrics.Sink) Option {
	return func(r *Runner) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithLogger sets the run logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) { r.log = logger.OrNop(l) }
}

// WithRunID labels metrics and logs.
func WithRunID(id, scenario string) Option {
	return func(r *Runner) {
		r.runID = id
		r.scenario = scenario
	}
}

// WithTickHook is called with the state reached after each tick.
func WithTickHook(fn func(*simstate.SimulationState)) Option {
	return func(r *Runner) { r.onTick = fn }
}

// NewRunner builds a runner that stops once the clock reaches end.
func NewRunner(env *environment.Environment, d dispatch.Dispatcher, end model.SimTime, opts ...Option) (*Runner, error) {
	if env == nil || d == nil {
		return nil, fmt.Errorf("update: nil parameter provided to NewRunner")
	}
	r := &Runner{
		env:        env,
		dispatcher: d,
		end:        end,
		sink:       metrics.NopSink{},
		log:        logger.OrNop(env.Log),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Ticks is the number of completed steps.
func (r *Runner) Ticks() int { return r.ticks }

// Run steps sim until its clock reaches the end time. The context is only
// checked between ticks. On failure the last completed state is returned
// with the error.
func (r *Runner) Run(ctx context.Context, sim *simstate.SimulationState) (*simstate.SimulationState, error) {
	r.recordRun(metrics.RunStarted, nil)
	r.log.Infof("run %s: %s to %s every %ds", r.runID, sim.SimTime(), r.end, sim.TimestepSeconds())
	for sim.SimTime() < r.end {
		if err := ctx.Err(); err != nil {
			r.recordRun(metrics.RunFailed, err)
			return sim, err
		}
		next, err := r.Step(ctx, sim)
		if err != nil {
			r.recordRun(metrics.RunFailed, err)
			return sim, err
		}
		sim = next
	}
	r.recordRun(metrics.RunFinished, nil)
	r.log.Infof("run %s: done after %d ticks", r.runID, r.ticks)
	return sim, nil
}

// Step runs one tick and returns the state at the next sim time. Update
// function and instruction failures are reported and skipped; dispatcher
// and vehicle update failures end the run.
func (r *Runner) Step(ctx context.Context, sim *simstate.SimulationState) (*simstate.SimulationState, error) {
	start := time.Now()
	now := sim.SimTime()
	sim = sim.ClearAppliedInstructions()

	var updateErrs int
	for _, f := range r.updates {
		next, err := f.Update(ctx, sim, r.env)
		if err != nil {
			updateErrs++
			r.log.Warnf("tick %d: update %s: %v", now, f.Name(), err)
			r.reportError(now, f.Name(), err)
		}
		if next != nil {
			sim = next
		}
	}

	ins, err := r.dispatcher.Generate(sim, r.env)
	if err != nil {
		return nil, fmt.Errorf("tick %d: dispatch: %w", now, err)
	}
	sim, insErrs := instruction.ApplyAll(sim, r.env, ins)
	for _, err := range insErrs {
		r.log.Warnf("tick %d: %v", now, err)
		r.reportError(now, "apply_instruction", err)
	}

	sim, err = r.advance(sim)
	if err != nil {
		return nil, fmt.Errorf("tick %d: %w", now, err)
	}

	stats := metrics.Collect(r.runID, sim, r.env.Mechatronics)
	stats.Instructions = len(ins)
	stats.InstructionErrors = len(insErrs)
	stats.UpdateErrors = updateErrs
	stats.Elapsed = time.Since(start)
	if err := r.sink.RecordTick(stats); err != nil {
		r.log.Warnf("tick %d: record metrics: %v", now, err)
	}
	if r.reporter != nil {
		if err := r.reporter.Flush(ctx, sim); err != nil {
			r.log.Errorf("tick %d: flush reports: %v", now, err)
		}
	}
	if r.onTick != nil {
		r.onTick(sim)
	}
	r.ticks++
	r.log.Debugf("tick %d: %d instructions, %d rejected, %d update errors", now, len(ins), len(insErrs), updateErrs)
	return sim.Tick(), nil
}

// advance updates every vehicle once. Queued vehicles go last, longest
// waiting first, so chargers freed this tick go to the head of the queue.
func (r *Runner) advance(sim *simstate.SimulationState) (*simstate.SimulationState, error) {
	var ids []string
	var queued []vehiclestate.ChargeQueueing
	for _, v := range sim.Vehicles() {
		if q, ok := v.State.(vehiclestate.ChargeQueueing); ok {
			queued = append(queued, q)
			continue
		}
		ids = append(ids, v.ID)
	}
	sort.SliceStable(queued, func(i, j int) bool {
		if queued[i].EnqueueTime != queued[j].EnqueueTime {
			return queued[i].EnqueueTime < queued[j].EnqueueTime
		}
		return queued[i].VehicleID() < queued[j].VehicleID()
	})
	for _, q := range queued {
		ids = append(ids, q.VehicleID())
	}

	for _, id := range ids {
		v, ok := sim.Vehicle(id)
		if !ok {
			continue
		}
		s, err := vehiclestate.Of(v)
		if err != nil {
			return nil, err
		}
		next, err := s.Update(sim, r.env)
		if err != nil {
			return nil, err
		}
		if next != nil {
			sim = next
		}
	}
	return sim, nil
}

func (r *Runner) reportError(at model.SimTime, op string, err error) {
	data := map[string]any{"op": op, "message": err.Error()}
	var opErr *simstate.OpError
	if errors.As(err, &opErr) {
		data["entity_id"] = opErr.EntityID
		data["op"] = opErr.Op
	}
	r.env.File(report.New(report.Error, at, data))
}

func (r *Runner) recordRun(status metrics.RunStatus, err error) {
	rec, ok := r.sink.(metrics.RunRecorder)
	if !ok {
		return
	}
	ev := metrics.RunEvent{RunID: r.runID, Scenario: r.scenario, Status: status, Ticks: r.ticks, Time: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	if rerr := rec.RecordRun(ev); rerr != nil {
		r.log.Warnf("run %s: record %s: %v", r.runID, status, rerr)
	}
}
