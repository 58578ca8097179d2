// Package report defines the structured records emitted while a simulation
// runs and the Reporter that batches them per tick for the configured
// handlers.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kilianp07/fleetsim/core/model"
)

// Type names a kind of report.
type Type string

const (
	VehicleState        Type = "vehicle_state"
	StationState        Type = "station_state"
	AddRequestEvent     Type = "add_request_event"
	PickupRequestEvent  Type = "pickup_request_event"
	DropoffRequestEvent Type = "dropoff_request_event"
	CancelRequestEvent  Type = "cancel_request_event"
	Instruction         Type = "instruction"
	VehicleChargeEvent  Type = "vehicle_charge_event"
	VehicleMoveEvent    Type = "vehicle_move_event"
	StationLoadEvent    Type = "station_load_event"
	RefuelSearchEvent   Type = "refuel_search_event"
	StateTransition     Type = "state_transition"
	Error               Type = "error"
)

// AllTypes lists every report type in a stable order.
var AllTypes = []Type{
	VehicleState, StationState, AddRequestEvent, PickupRequestEvent,
	DropoffRequestEvent, CancelRequestEvent, Instruction, VehicleChargeEvent,
	VehicleMoveEvent, StationLoadEvent, RefuelSearchEvent, StateTransition, Error,
}

// ParseType accepts any name from AllTypes, case-insensitively.
func ParseType(s string) (Type, error) {
	norm := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range AllTypes {
		if t == norm {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown report type %q", s)
}

// Report is one record. Data is flattened next to report_type and sim_time
// when encoded.
type Report struct {
	Type    Type
	SimTime model.SimTime
	Data    map[string]any
}

// New builds a report.
func New(t Type, at model.SimTime, data map[string]any) Report {
	if data == nil {
		data = map[string]any{}
	}
	return Report{Type: t, SimTime: at, Data: data}
}

// Str returns the value stored under key as a string, or "".
func (r Report) Str(key string) string {
	s, _ := r.Data[key].(string)
	return s
}

// Float returns a numeric value stored under key.
func (r Report) Float(key string) (float64, bool) {
	switch v := r.Data[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case model.SimTime:
		return float64(v), true
	}
	return 0, false
}

func (r Report) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Data)+2)
	for k, v := range r.Data {
		flat[k] = v
	}
	flat["report_type"] = r.Type
	flat["sim_time"] = int64(r.SimTime)
	return json.Marshal(flat)
}

func (r *Report) UnmarshalJSON(b []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	t, _ := flat["report_type"].(string)
	if t == "" {
		return fmt.Errorf("report without report_type")
	}
	at, _ := flat["sim_time"].(float64)
	delete(flat, "report_type")
	delete(flat, "sim_time")
	*r = Report{Type: Type(t), SimTime: model.SimTime(int64(at)), Data: flat}
	return nil
}

// Sink receives reports as they happen.
type Sink interface {
	File(r Report)
}

// NopSink drops every report.
type NopSink struct{}

func (NopSink) File(Report) {}

// MemorySink keeps every report in memory.
type MemorySink struct {
	mu      sync.Mutex
	reports []Report
}

func (m *MemorySink) File(r Report) {
	m.mu.Lock()
	m.reports = append(m.reports, r)
	m.mu.Unlock()
}

// Reports returns a copy of the filed reports, optionally limited to types.
func (m *MemorySink) Reports(types ...Type) []Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(types) == 0 {
		return append([]Report(nil), m.reports...)
	}
	want := make(map[Type]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []Report
	for _, r := range m.reports {
		if want[r.Type] {
			out = append(out, r)
		}
	}
	return out
}

// Count groups filed reports by type.
func Count(reports []Report) map[Type]int {
	out := make(map[Type]int)
	for _, r := range reports {
		out[r.Type]++
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
