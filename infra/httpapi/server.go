// Package httpapi serves the status surface of a fleetsim process: health,
// run progress, stored reports, Prometheus metrics and a websocket feed of
// live report batches.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

// Config configures the status server.
type Config struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	// Token, when set, is required as a bearer token on /runs/{id}/reports.
	Token string `json:"token"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// RunInfo describes the progress of one run.
type RunInfo struct {
	ID       string     `json:"id"`
	Scenario string     `json:"scenario"`
	Status   string     `json:"status"`
	SimTime  int64      `json:"sim_time"`
	Ticks    int        `json:"ticks"`
	Started  time.Time  `json:"started"`
	Finished *time.Time `json:"finished,omitempty"`
	Error    string     `json:"error,omitempty"`
	Summary  any        `json:"summary,omitempty"`
}

// RunSource lists the runs of the process.
type RunSource interface {
	Runs() []RunInfo
	Run(id string) (RunInfo, bool)
}

// Server wires the routes onto a chi router.
type Server struct {
	cfg      Config
	runs     RunSource
	reports  ReportQuerier
	bus      *eventbus.TypedBus[report.Batch]
	gatherer prometheus.Gatherer
	log      logger.Logger
	srv      *http.Server
}

// Option customises a Server.
type Option func(*Server)

// WithReports enables /runs/{id}/reports.
func WithReports(q ReportQuerier) Option { return func(s *Server) { s.reports = q } }

// WithBus enables the /ws live feed.
func WithBus(bus *eventbus.TypedBus[report.Batch]) Option { return func(s *Server) { s.bus = bus } }

// WithGatherer selects the registry behind /metrics. Defaults to the
// Prometheus default gatherer.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option { return func(s *Server) { s.log = logger.OrNop(l) } }

// New builds a server. runs is required.
func New(cfg Config, runs RunSource, opts ...Option) (*Server, error) {
	if runs == nil {
		return nil, fmt.Errorf("run source is nil")
	}
	cfg.SetDefaults()
	s := &Server{cfg: cfg, runs: runs, gatherer: prometheus.DefaultGatherer, log: logger.NopLogger{}}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/runs", s.handleRuns)
	r.Get("/runs/{id}", s.handleRun)
	if s.reports != nil {
		r.Method(http.MethodGet, "/runs/{id}/reports", NewReportHandler(s.reports, s.cfg.Token))
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	if s.bus != nil {
		r.Get("/ws", s.handleWS)
	}
	return r
}

// Start listens in the background until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{Addr: s.cfg.Addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		s.log.Infof("status server listening on %s", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("status server shutdown: %v", err)
		}
	}()
	select {
	case err := <-errc:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRuns(w http.ResponseWriter, _ *http.Request) {
	runs := s.runs.Runs()
	if runs == nil {
		runs = []RunInfo{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	info, ok := s.runs.Run(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
