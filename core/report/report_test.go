package report_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/mechatronics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/core/roadnetwork"
	"github.com/kilianp07/fleetsim/core/simstate"
	"github.com/kilianp07/fleetsim/core/vehiclestate"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

type recordingHandler struct {
	batches []report.Batch
	states  int
	err     error
	closed  bool
}

func (h *recordingHandler) Handle(_ context.Context, b report.Batch) error {
	h.batches = append(h.batches, b)
	return h.err
}

func (h *recordingHandler) Close() error {
	h.closed = true
	return nil
}

type stateRecorder struct {
	recordingHandler
}

func (h *stateRecorder) HandleState(context.Context, string, *simstate.SimulationState) error {
	h.states++
	return nil
}

func testSim(t *testing.T) (*simstate.SimulationState, mechatronics.Registry) {
	t.Helper()
	rn, err := roadnetwork.NewHaversine(roadnetwork.HaversineConfig{})
	require.NoError(t, err)
	sim, err := simstate.New(simstate.Config{StartTime: 600}, rn)
	require.NoError(t, err)

	bev, err := mechatronics.NewBEV(mechatronics.BEVConfig{ID: "leaf_50", BatteryCapacityKWh: 50, NominalWhPerMile: 225})
	require.NoError(t, err)
	vg := geo.MustFromLatLng(39.7392, -104.9903, 15)
	sim, err = sim.AddVehicle(model.Vehicle{
		ID:             "v1",
		MechatronicsID: "leaf_50",
		Energy:         model.Energy{model.EnergyElectric: 25},
		Position:       model.StationaryPosition(vg),
		State:          vehiclestate.NewIdle("v1"),
		TotalSeats:     4,
	})
	require.NoError(t, err)

	sg := geo.MustFromLatLng(39.7400, -104.9900, 15)
	st, err := model.NewStation("s1", model.StationaryPosition(sg), map[string]int{"DCFC": 2}, map[string]float64{"DCFC": 0.3}, model.Membership{})
	require.NoError(t, err)
	sim, err = sim.AddStation(st)
	require.NoError(t, err)
	return sim, mechatronics.Registry{"leaf_50": bev}
}

func TestParseType(t *testing.T) {
	got, err := report.ParseType(" Vehicle_Charge_Event ")
	require.NoError(t, err)
	assert.Equal(t, report.VehicleChargeEvent, got)
	_, err = report.ParseType("vehicle_teleport")
	assert.Error(t, err)
}

func TestReportJSONIsFlat(t *testing.T) {
	r := report.New(report.PickupRequestEvent, 660, map[string]any{"request_id": "r1", "vehicle_id": "v1"})
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"report_type":"pickup_request_event","sim_time":660,"request_id":"r1","vehicle_id":"v1"}`, string(data))

	var back report.Report
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, report.PickupRequestEvent, back.Type)
	assert.Equal(t, model.SimTime(660), back.SimTime)
	assert.Equal(t, "r1", back.Str("request_id"))

	assert.Error(t, json.Unmarshal([]byte(`{"sim_time":1}`), &back))
}

func TestReporterFiltersAndDerives(t *testing.T) {
	sim, mechs := testSim(t)
	h := &recordingHandler{}
	bus := eventbus.NewTyped[report.Batch]()
	feed := bus.Subscribe()

	rep, err := report.NewReporter("run-1", []string{"station_load_event", "vehicle_state", "error"}, []report.Handler{h},
		report.WithBus(bus), report.WithMechatronics(mechs))
	require.NoError(t, err)

	rep.File(report.New(report.VehicleChargeEvent, 600, map[string]any{"station_id": "s1", "energy": 1.5}))
	rep.File(report.New(report.VehicleChargeEvent, 600, map[string]any{"station_id": "s1", "energy": 2.0}))
	rep.File(report.New(report.Instruction, 600, map[string]any{"vehicle_id": "v1"}))
	rep.File(report.New(report.Error, 600, map[string]any{"message": "boom"}))
	require.NoError(t, rep.Flush(context.Background(), sim))

	require.Len(t, h.batches, 1)
	b := h.batches[0]
	assert.Equal(t, "run-1", b.RunID)
	assert.Equal(t, int64(600), b.SimTime)
	assert.Equal(t, map[report.Type]int{
		report.Error:            1,
		report.StationLoadEvent: 1,
		report.VehicleState:     1,
	}, report.Count(b.Reports))

	for _, r := range b.Reports {
		switch r.Type {
		case report.StationLoadEvent:
			kwh, _ := r.Float("energy")
			assert.InDelta(t, 3.5, kwh, 1e-9)
		case report.VehicleState:
			soc, ok := r.Float("soc")
			require.True(t, ok)
			assert.InDelta(t, 0.5, soc, 1e-9)
			assert.Equal(t, "idle", r.Str("vehicle_state"))
			v, _ := sim.Vehicle("v1")
			assert.Equal(t, v.State.InstanceID(), r.Str("instance_id"))
		}
	}
	assert.Equal(t, b, <-feed)

	require.NoError(t, rep.Flush(context.Background(), sim))
	assert.Empty(t, report.Count(h.batches[1].Reports)[report.Error], "pending reports are cleared by Flush")
}

func TestReporterRejectsUnknownType(t *testing.T) {
	_, err := report.NewReporter("run-1", []string{"teleport"}, nil)
	assert.Error(t, err)
}

func TestReporterKeepsGoingAfterHandlerError(t *testing.T) {
	sim, _ := testSim(t)
	failing := &recordingHandler{err: errors.New("disk full")}
	stateful := &stateRecorder{}
	rep, err := report.NewReporter("run-1", nil, []report.Handler{failing, stateful})
	require.NoError(t, err)

	rep.File(report.New(report.AddRequestEvent, 600, map[string]any{"request_id": "r1"}))
	err = rep.Flush(context.Background(), sim)
	assert.ErrorContains(t, err, "disk full")
	require.Len(t, stateful.batches, 1)
	assert.Equal(t, 1, stateful.states)
	assert.Equal(t, 1, report.Count(stateful.batches[0].Reports)[report.AddRequestEvent])
	assert.Equal(t, 1, report.Count(stateful.batches[0].Reports)[report.StationState])

	require.NoError(t, rep.Close())
	assert.True(t, failing.closed)
	assert.True(t, stateful.closed)
}

func TestStatsSummary(t *testing.T) {
	h := report.NewStatsHandler(60)
	ctx := context.Background()
	tick := func(reports ...report.Report) {
		require.NoError(t, h.Handle(ctx, report.Batch{RunID: "run-1", Reports: reports}))
	}
	tick(
		report.New(report.AddRequestEvent, 0, map[string]any{"request_id": "r1"}),
		report.New(report.AddRequestEvent, 0, map[string]any{"request_id": "r2"}),
		report.New(report.VehicleState, 0, map[string]any{"vehicle_id": "v1", "vehicle_state": "idle", "soc": 0.9}),
		report.New(report.VehicleState, 0, map[string]any{"vehicle_id": "v2", "vehicle_state": "idle", "soc": 0.5}),
	)
	tick(
		report.New(report.PickupRequestEvent, 60, map[string]any{"wait_time_seconds": int64(60), "price": 7.5}),
		report.New(report.VehicleMoveEvent, 60, map[string]any{"distance_km": 1.25}),
		report.New(report.VehicleChargeEvent, 60, map[string]any{"energy": 2.0, "price": 0.6}),
		report.New(report.VehicleState, 60, map[string]any{"vehicle_id": "v1", "vehicle_state": "servicing_trip", "soc": 0.8}),
		report.New(report.VehicleState, 60, map[string]any{"vehicle_id": "v2", "vehicle_state": "idle", "soc": 0.4}),
	)
	tick(
		report.New(report.DropoffRequestEvent, 120, nil),
		report.New(report.CancelRequestEvent, 120, nil),
		report.New(report.Error, 120, nil),
	)

	s := h.Summary()
	assert.Equal(t, 3, s.Ticks)
	assert.Equal(t, 2, s.RequestsAdded)
	assert.Equal(t, 1, s.RequestsPickedUp)
	assert.Equal(t, 1, s.RequestsDroppedOff)
	assert.Equal(t, 1, s.RequestsCancelled)
	assert.Equal(t, 1, s.Errors)
	assert.InDelta(t, 50, s.ServedPercent, 1e-9)
	assert.InDelta(t, 60, s.MeanWaitSeconds, 1e-9)
	assert.InDelta(t, 1.25, s.VKT, 1e-9)
	assert.InDelta(t, 2.0, s.ChargeKWh, 1e-9)
	assert.InDelta(t, 0.6, s.StationRevenue, 1e-9)
	assert.InDelta(t, 7.5, s.TripRevenue, 1e-9)
	assert.InDelta(t, 0.6, s.MeanFinalSOC, 1e-9)
	assert.Equal(t, map[string]int64{"idle": 180, "servicing_trip": 60}, s.StateSeconds)
	assert.InDelta(t, 75, s.StatePercent["idle"], 1e-9)
	require.NoError(t, h.Close())
}

func TestMemorySink(t *testing.T) {
	var m report.MemorySink
	m.File(report.New(report.Instruction, 0, nil))
	m.File(report.New(report.Error, 0, nil))
	m.File(report.New(report.Instruction, 60, nil))
	assert.Len(t, m.Reports(), 3)
	assert.Len(t, m.Reports(report.Instruction), 2)
	report.NopSink{}.File(report.New(report.Error, 0, nil))
}
