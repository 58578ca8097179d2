// Package app wires configuration, scenarios and infrastructure into
// simulation runs.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kilianp07/fleetsim/app/plugins"
	"github.com/kilianp07/fleetsim/config"
	"github.com/kilianp07/fleetsim/core/environment"
	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	corereport "github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/core/simstate"
	"github.com/kilianp07/fleetsim/core/update"
	"github.com/kilianp07/fleetsim/infra/httpapi"
	"github.com/kilianp07/fleetsim/infra/logger"
	"github.com/kilianp07/fleetsim/infra/metrics"
	"github.com/kilianp07/fleetsim/internal/eventbus"
	"github.com/kilianp07/fleetsim/internal/scenario"
)

// Service executes the runs of a configuration. Report handlers, the metrics
// sink and the report bus are shared; every run owns its scenario state,
// environment, dispatcher and stats.
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	bus      *eventbus.TypedBus[corereport.Batch]
	sink     coremetrics.Sink
	handlers []corereport.Handler
	runs     *registry
	server   *httpapi.Server
}

// New builds the shared collaborators described by cfg.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	if err := logger.Setup(cfg.Logging); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	handlers, err := corereport.NewHandlers(cfg.Reporting.Handlers)
	if err != nil {
		return nil, fmt.Errorf("report handlers: %w", err)
	}
	s := &Service{
		cfg:      cfg,
		log:      logger.New("service"),
		bus:      eventbus.NewTyped[corereport.Batch](),
		sink:     sink,
		handlers: handlers,
		runs:     newRegistry(),
	}
	if cfg.HTTP.Enabled {
		opts := []httpapi.Option{httpapi.WithBus(s.bus), httpapi.WithLogger(logger.New("httpapi"))}
		if q := s.querier(); q != nil {
			opts = append(opts, httpapi.WithReports(q))
		}
		srv, err := httpapi.New(cfg.HTTP, s.runs, opts...)
		if err != nil {
			_ = s.closeHandlers()
			return nil, fmt.Errorf("status server: %w", err)
		}
		s.server = srv
	}
	return s, nil
}

// RunSource exposes run progress.
func (s *Service) RunSource() httpapi.RunSource { return s.runs }

// Run executes every planned run, at most runs.local_parallelism at a time,
// and returns once they have all ended. Run failures are joined.
func (s *Service) Run(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Start(ctx); err != nil {
			return fmt.Errorf("status server: %w", err)
		}
	}
	for _, rec := range recorders(s.sink) {
		metrics.StartReportCollector(ctx, s.bus, rec)
	}

	plan := s.cfg.Plan()
	s.log.Infof("starting %d run(s), %d at a time", len(plan), s.cfg.Runs.LocalParallelism)
	ids := make([]string, len(plan))
	for i, spec := range plan {
		ids[i] = uuid.NewString()
		s.runs.add(ids[i], spec.Scenario)
	}

	sem := make(chan struct{}, s.cfg.Runs.LocalParallelism)
	errs := make([]error, len(plan))
	var wg sync.WaitGroup
	for i, spec := range plan {
		wg.Add(1)
		go func(i int, spec config.RunSpec) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				s.runs.finish(ids[i], StatusCanceled, ctx.Err(), nil)
				errs[i] = fmt.Errorf("run %s: %w", spec.Scenario, ctx.Err())
				return
			}
			defer func() { <-sem }()
			if err := s.runOne(ctx, ids[i], spec); err != nil {
				errs[i] = fmt.Errorf("run %s: %w", spec.Scenario, err)
			}
		}(i, spec)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (s *Service) runOne(ctx context.Context, id string, spec config.RunSpec) (err error) {
	log := logger.ForRun("run", id)
	stats := corereport.NewStatsHandler(s.cfg.Sim.TimestepSeconds)
	s.runs.start(id)
	defer func() {
		status := StatusFinished
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = StatusCanceled
		case err != nil:
			status = StatusFailed
		}
		summary := stats.Summary()
		s.runs.finish(id, status, err, summary)
		log.Infof("%s: %d/%d requests served, %.1f km travelled, %.1f kWh charged",
			status, summary.RequestsDroppedOff, summary.RequestsAdded, summary.VKT, summary.ChargeKWh)
	}()

	file, err := scenario.Load(spec.Scenario)
	if err != nil {
		return err
	}
	if spec.Name != "" {
		file.Name = spec.Name
	}
	stateCfg, err := s.cfg.Sim.State()
	if err != nil {
		return err
	}
	end, err := s.cfg.Sim.End()
	if err != nil {
		return err
	}
	rn, err := s.cfg.Network.Build()
	if err != nil {
		return err
	}
	sc, err := scenario.Build(file, stateCfg, rn)
	if err != nil {
		return err
	}
	s.runs.update(id, func(i *httpapi.RunInfo) {
		i.Scenario = sc.Name
		i.SimTime = int64(sc.Sim.SimTime())
	})

	handlers := append(append([]corereport.Handler(nil), s.handlers...), stats)
	rep, err := corereport.NewReporter(id, s.cfg.Reporting.Types, handlers,
		corereport.WithBus(s.bus),
		corereport.WithMechatronics(sc.Mechatronics),
		corereport.WithLogger(log),
	)
	if err != nil {
		return err
	}
	env, err := environment.New(sc.Mechatronics, sc.Chargers, rep, log, s.cfg.Sim.Params(s.cfg.Dispatcher.IdealFastchargeSOCLimit))
	if err != nil {
		return err
	}
	d, err := plugins.NewDispatcher(s.cfg.Dispatcher)
	if err != nil {
		return err
	}
	updates, err := updatesFor(sc)
	if err != nil {
		return err
	}
	runner, err := update.NewRunner(env, d, end,
		update.WithUpdates(updates...),
		update.WithReporter(rep),
		update.WithMetrics(s.sink),
		update.WithLogger(log),
		update.WithRunID(id, sc.Name),
		update.WithTickHook(func(next *simstate.SimulationState) {
			s.runs.update(id, func(i *httpapi.RunInfo) {
				i.SimTime = int64(next.SimTime())
				i.Ticks++
			})
		}),
	)
	if err != nil {
		return err
	}
	log.Infof("scenario %s: %d vehicles, %d stations, %d bases, %d requests",
		sc.Name, len(sc.Sim.Vehicles()), len(sc.Sim.Stations()), len(sc.Sim.Bases()), len(sc.Requests))
	_, err = runner.Run(ctx, sc.Sim)
	return err
}

// updatesFor orders the per-tick updates: prices first so that charging in
// the tick sees them, then new requests, then cancellations.
func updatesFor(sc *scenario.Scenario) ([]update.Function, error) {
	var fs []update.Function
	if len(sc.ChargingPrices) > 0 {
		prices, err := update.NewChargingPriceUpdate(sc.ChargingPrices)
		if err != nil {
			return nil, err
		}
		fs = append(fs, prices)
	}
	return append(fs, update.NewRequestFeed(sc.Requests, sc.RateStructure), update.CancelRequests{}), nil
}

// querier is the first shared handler able to read reports back.
func (s *Service) querier() httpapi.ReportQuerier {
	for _, h := range s.handlers {
		if q, ok := h.(httpapi.ReportQuerier); ok {
			return q
		}
	}
	return nil
}

func recorders(sink coremetrics.Sink) []metrics.ReportRecorder {
	var out []metrics.ReportRecorder
	sinks := []coremetrics.Sink{sink}
	if m, ok := sink.(*coremetrics.MultiSink); ok {
		sinks = m.Sinks
	}
	for _, sk := range sinks {
		if rec, ok := sk.(metrics.ReportRecorder); ok {
			out = append(out, rec)
		}
	}
	return out
}

func (s *Service) closeHandlers() error {
	var errs []error
	for _, h := range s.handlers {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops the live feed and releases handlers and sinks.
func (s *Service) Close() error {
	s.bus.Close()
	err := s.closeHandlers()
	sinks := []coremetrics.Sink{s.sink}
	if m, ok := s.sink.(*coremetrics.MultiSink); ok {
		sinks = m.Sinks
	}
	for _, sk := range sinks {
		if c, ok := sk.(interface{ Close() }); ok {
			c.Close()
		}
	}
	return err
}
