package report

import (
	"context"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Summary aggregates a whole run.
type Summary struct {
	RequestsAdded      int                `json:"requests_added"`
	RequestsPickedUp   int                `json:"requests_picked_up"`
	RequestsDroppedOff int                `json:"requests_dropped_off"`
	RequestsCancelled  int                `json:"requests_cancelled"`
	ServedPercent      float64            `json:"served_percent"`
	MeanWaitSeconds    float64            `json:"mean_wait_seconds"`
	VKT                float64            `json:"vkt"`
	ChargeKWh          float64            `json:"charge_kwh"`
	StationRevenue     float64            `json:"station_revenue"`
	TripRevenue        float64            `json:"trip_revenue"`
	MeanFinalSOC       float64            `json:"mean_final_soc"`
	StateSeconds       map[string]int64   `json:"state_seconds"`
	StatePercent       map[string]float64 `json:"state_percent"`
	Ticks              int                `json:"ticks"`
	Errors             int                `json:"errors"`
}

// StatsHandler accumulates a Summary from the batches it sees. Time per
// vehicle state relies on vehicle_state reports being enabled.
type StatsHandler struct {
	timestep int64

	mu       sync.Mutex
	summary  Summary
	waits    []float64
	finalSOC map[string]float64
}

// NewStatsHandler builds a handler for a run advancing timestepS per tick.
func NewStatsHandler(timestepS int64) *StatsHandler {
	return &StatsHandler{
		timestep: timestepS,
		summary:  Summary{StateSeconds: map[string]int64{}},
		finalSOC: map[string]float64{},
	}
}

func (h *StatsHandler) Handle(_ context.Context, b Batch) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.summary.Ticks++
	for _, r := range b.Reports {
		switch r.Type {
		case AddRequestEvent:
			h.summary.RequestsAdded++
		case PickupRequestEvent:
			h.summary.RequestsPickedUp++
			if w, ok := r.Float("wait_time_seconds"); ok {
				h.waits = append(h.waits, w)
			}
			if p, ok := r.Float("price"); ok {
				h.summary.TripRevenue += p
			}
		case DropoffRequestEvent:
			h.summary.RequestsDroppedOff++
		case CancelRequestEvent:
			h.summary.RequestsCancelled++
		case VehicleMoveEvent:
			if d, ok := r.Float("distance_km"); ok {
				h.summary.VKT += d
			}
		case VehicleChargeEvent:
			if e, ok := r.Float("energy"); ok {
				h.summary.ChargeKWh += e
			}
			if p, ok := r.Float("price"); ok {
				h.summary.StationRevenue += p
			}
		case VehicleState:
			h.summary.StateSeconds[r.Str("vehicle_state")] += h.timestep
			if soc, ok := r.Float("soc"); ok {
				h.finalSOC[r.Str("vehicle_id")] = soc
			}
		case Error:
			h.summary.Errors++
		}
	}
	return nil
}

func (h *StatsHandler) Close() error { return nil }

// Summary computes the derived figures and returns a copy.
func (h *StatsHandler) Summary() Summary {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.summary
	s.StateSeconds = make(map[string]int64, len(h.summary.StateSeconds))
	var total int64
	for k, v := range h.summary.StateSeconds {
		s.StateSeconds[k] = v
		total += v
	}
	s.StatePercent = make(map[string]float64, len(s.StateSeconds))
	for k, v := range s.StateSeconds {
		s.StatePercent[k] = 100 * float64(v) / float64(total)
	}
	if s.RequestsAdded > 0 {
		s.ServedPercent = 100 * float64(s.RequestsDroppedOff) / float64(s.RequestsAdded)
	}
	if len(h.waits) > 0 {
		s.MeanWaitSeconds = stat.Mean(h.waits, nil)
	}
	if len(h.finalSOC) > 0 {
		socs := make([]float64, 0, len(h.finalSOC))
		for _, id := range sortedKeys(h.finalSOC) {
			socs = append(socs, h.finalSOC[id])
		}
		s.MeanFinalSOC = stat.Mean(socs, nil)
	}
	return s
}
