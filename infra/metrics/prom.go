package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/report"
)

// PromSink exposes tick statistics as Prometheus metrics labelled by run.
type PromSink struct {
	vehicles     *prometheus.GaugeVec
	requests     *prometheus.GaugeVec
	chargers     *prometheus.GaugeVec
	meanSOC      *prometheus.GaugeVec
	simTime      *prometheus.GaugeVec
	instructions *prometheus.CounterVec
	updateErrors *prometheus.CounterVec
	tickDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	reports      *prometheus.CounterVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Metrics
// already registered by an earlier sink are shared.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		vehicles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetsim_vehicles",
			Help: "Vehicles per state at the end of the last tick",
		}, []string{"run_id", "state"}),
		requests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetsim_requests",
			Help: "Requests waiting in the simulation",
		}, []string{"run_id", "status"}),
		chargers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetsim_chargers",
			Help: "Chargers in use and vehicles queued for one",
		}, []string{"run_id", "status"}),
		meanSOC: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetsim_mean_soc",
			Help: "Mean state of charge of the fleet",
		}, []string{"run_id"}),
		simTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetsim_sim_time_seconds",
			Help: "Simulation clock of the last completed tick",
		}, []string{"run_id"}),
		instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetsim_instructions_total",
			Help: "Dispatcher instructions by outcome",
		}, []string{"run_id", "result"}),
		updateErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetsim_update_errors_total",
			Help: "Update function failures",
		}, []string{"run_id"}),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleetsim_tick_duration_seconds",
			Help:    "Wall time spent per tick",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"run_id"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetsim_runs_total",
			Help: "Runs by lifecycle status",
		}, []string{"status"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetsim_reports_total",
			Help: "Reports flushed by type",
		}, []string{"run_id", "report_type"}),
	}
	var err error
	if s.vehicles, err = register(reg, s.vehicles); err != nil {
		return nil, err
	}
	if s.requests, err = register(reg, s.requests); err != nil {
		return nil, err
	}
	if s.chargers, err = register(reg, s.chargers); err != nil {
		return nil, err
	}
	if s.meanSOC, err = register(reg, s.meanSOC); err != nil {
		return nil, err
	}
	if s.simTime, err = register(reg, s.simTime); err != nil {
		return nil, err
	}
	if s.instructions, err = register(reg, s.instructions); err != nil {
		return nil, err
	}
	if s.updateErrors, err = register(reg, s.updateErrors); err != nil {
		return nil, err
	}
	if s.tickDuration, err = register(reg, s.tickDuration); err != nil {
		return nil, err
	}
	if s.runs, err = register(reg, s.runs); err != nil {
		return nil, err
	}
	if s.reports, err = register(reg, s.reports); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordTick updates the gauges and counters for one tick.
func (s *PromSink) RecordTick(st coremetrics.TickStats) error {
	for state, n := range st.VehiclesByState {
		s.vehicles.WithLabelValues(st.RunID, state).Set(float64(n))
	}
	s.requests.WithLabelValues(st.RunID, "open").Set(float64(st.OpenRequests))
	s.requests.WithLabelValues(st.RunID, "dispatched").Set(float64(st.DispatchedRequests))
	s.chargers.WithLabelValues(st.RunID, "in_use").Set(float64(st.ChargersInUse))
	s.chargers.WithLabelValues(st.RunID, "queued").Set(float64(st.ChargersQueued))
	s.meanSOC.WithLabelValues(st.RunID).Set(st.MeanSOC)
	s.simTime.WithLabelValues(st.RunID).Set(float64(st.SimTime))
	s.instructions.WithLabelValues(st.RunID, "applied").Add(float64(st.Instructions - st.InstructionErrors))
	s.instructions.WithLabelValues(st.RunID, "rejected").Add(float64(st.InstructionErrors))
	s.updateErrors.WithLabelValues(st.RunID).Add(float64(st.UpdateErrors))
	s.tickDuration.WithLabelValues(st.RunID).Observe(st.Elapsed.Seconds())
	return nil
}

// RecordRun counts run lifecycle events.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	s.runs.WithLabelValues(string(ev.Status)).Inc()
	return nil
}

// RecordReports counts the reports of a flushed batch.
func (s *PromSink) RecordReports(b report.Batch) error {
	for t, n := range report.Count(b.Reports) {
		s.reports.WithLabelValues(b.RunID, string(t)).Add(float64(n))
	}
	return nil
}

var _ coremetrics.RunRecorder = (*PromSink)(nil)
