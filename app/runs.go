package app

import (
	"sync"
	"time"

	"github.com/kilianp07/fleetsim/infra/httpapi"
)

// Run statuses shown by the status server.
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// registry tracks the runs of the process in submission order.
type registry struct {
	mu    sync.RWMutex
	order []string
	runs  map[string]*httpapi.RunInfo
}

func newRegistry() *registry {
	return &registry{runs: make(map[string]*httpapi.RunInfo)}
}

func (r *registry) add(id, scenario string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, id)
	r.runs[id] = &httpapi.RunInfo{ID: id, Scenario: scenario, Status: StatusPending}
}

func (r *registry) update(id string, fn func(*httpapi.RunInfo)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.runs[id]; ok {
		fn(info)
	}
}

func (r *registry) start(id string) {
	r.update(id, func(i *httpapi.RunInfo) {
		i.Status = StatusRunning
		i.Started = time.Now().UTC()
	})
}

func (r *registry) finish(id, status string, err error, summary any) {
	now := time.Now().UTC()
	r.update(id, func(i *httpapi.RunInfo) {
		i.Status = status
		i.Finished = &now
		i.Summary = summary
		if err != nil {
			i.Error = err.Error()
		}
	})
}

// Runs implements httpapi.RunSource.
func (r *registry) Runs() []httpapi.RunInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]httpapi.RunInfo, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.runs[id])
	}
	return out
}

// Run implements httpapi.RunSource.
func (r *registry) Run(id string) (httpapi.RunInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.runs[id]
	if !ok {
		return httpapi.RunInfo{}, false
	}
	return *info, true
}
