package update

import (
	"context"
	"errors"
	"sort"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/core/simstate"
)

// CancelRequests removes requests nobody was sent to once their cancel time
// has come. Requests with a dispatched vehicle are left to that vehicle.
type CancelRequests struct{}

func (CancelRequests) Name() string { return "cancel_requests" }

func (CancelRequests) Update(_ context.Context, sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	window := env.Params.RequestCancelTimeSeconds
	now := sim.SimTime()
	out := sim
	var errs []error
	for _, r := range sim.Requests() {
		if r.IsDispatched() || now < r.CancelTime(window) {
			continue
		}
		next, err := out.RemoveRequest(r.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = next
		env.File(report.New(report.CancelRequestEvent, now, map[string]any{
			"request_id":     r.ID,
			"departure_time": int64(r.DepartureTime),
			"cancel_time":    int64(r.CancelTime(window)),
			"fleet_id":       r.Membership.String(),
		}))
	}
	return out, errors.Join(errs...)
}

// RequestFeed releases scenario requests as their departure time arrives.
type RequestFeed struct {
	requests []model.Request
	next     int
	rates    *model.RateStructure
}

// NewRequestFeed orders reqs by departure time then id. When rates is set,
// requests without a value are priced by their route distance.
func NewRequestFeed(reqs []model.Request, rates *model.RateStructure) *RequestFeed {
	sorted := append([]model.Request(nil), reqs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DepartureTime != sorted[j].DepartureTime {
			return sorted[i].DepartureTime < sorted[j].DepartureTime
		}
		return sorted[i].ID < sorted[j].ID
	})
	return &RequestFeed{requests: sorted, rates: rates}
}

func (f *RequestFeed) Name() string { return "request_feed" }

// Remaining is the number of requests not yet released.
func (f *RequestFeed) Remaining() int { return len(f.requests) - f.next }

// Update adds every request departing at or before the current time.
// Requests that would already be cancelled on arrival are dropped with a
// warning.
func (f *RequestFeed) Update(_ context.Context, sim *simstate.SimulationState, env *environment.Environment) (*simstate.SimulationState, error) {
	now := sim.SimTime()
	window := env.Params.RequestCancelTimeSeconds
	out := sim
	var errs []error
	for f.next < len(f.requests) && f.requests[f.next].DepartureTime <= now {
		r := f.requests[f.next]
		f.next++
		if now >= r.CancelTime(window) {
			env.Log.Warnf("request %s departs at %d and expires at %d, before %d; skipping",
				r.ID, r.DepartureTime, r.CancelTime(window), now)
			continue
		}
		if r.Value == 0 && f.rates != nil {
			route := sim.RoadNetwork().Route(r.Origin, r.Destination)
			r = r.WithValue(f.rates.Price(route.DistanceKm()))
		}
		next, err := out.AddRequest(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = next
		env.File(report.New(report.AddRequestEvent, now, map[string]any{
			"request_id":     r.ID,
			"departure_time": int64(r.DepartureTime),
			"geoid":          r.GeoID().String(),
			"destination":    r.Destination.GeoID.String(),
			"passengers":     len(r.Passengers),
			"value":          r.Value,
			"fleet_id":       r.Membership.String(),
		}))
	}
	return out, errors.Join(errs...)
}
