package vehiclestate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/mechatronics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/core/roadnetwork"
	"github.com/kilianp07/fleetsim/core/simstate"
)

const (
	lat0 = 39.7392
	lng0 = -104.9903
)

func cellAt(dLat float64) geo.ID {
	return geo.MustFromLatLng(lat0+dLat, lng0, 15)
}

type fixture struct {
	sim  *simstate.SimulationState
	env  *environment.Environment
	sink *report.MemorySink
	bev  *mechatronics.BEV
}

func newFixture(t *testing.T, params environment.Params) *fixture {
	t.Helper()
	rn, err := roadnetwork.NewHaversine(roadnetwork.HaversineConfig{})
	require.NoError(t, err)
	sim, err := simstate.New(simstate.Config{}, rn)
	require.NoError(t, err)
	bev, err := mechatronics.NewBEV(mechatronics.BEVConfig{
		ID:                 "leaf_50",
		BatteryCapacityKWh: 50,
		IdleKWhPerHour:     0.8,
		NominalWhPerMile:   225,
	})
	require.NoError(t, err)
	sink := &report.MemorySink{}
	chargers := map[string]model.Charger{
		"dcfc": {ID: "dcfc", EnergyType: model.EnergyElectric, RateKW: 50},
		"l2":   {ID: "l2", EnergyType: model.EnergyElectric, RateKW: 7.2},
	}
	env, err := environment.New(mechatronics.Registry{bev.ID(): bev}, chargers, sink, nil, params)
	require.NoError(t, err)
	return &fixture{sim: sim, env: env, sink: sink, bev: bev}
}

func (f *fixture) addVehicle(t *testing.T, id string, g geo.ID, soc float64) {
	t.Helper()
	v := model.Vehicle{
		ID:             id,
		MechatronicsID: f.bev.ID(),
		Energy:         f.bev.InitialEnergy(soc),
		Position:       model.StationaryPosition(g),
		State:          NewIdle(id),
		TotalSeats:     4,
	}
	sim, err := f.sim.AddVehicle(v)
	require.NoError(t, err)
	f.sim = sim
}

func (f *fixture) addStation(t *testing.T, id string, g geo.ID, counts map[string]int, price float64) {
	t.Helper()
	prices := map[string]float64{}
	for c := range counts {
		prices[c] = price
	}
	st, err := model.NewStation(id, model.StationaryPosition(g), counts, prices, model.Membership{})
	require.NoError(t, err)
	sim, err := f.sim.AddStation(st)
	require.NoError(t, err)
	f.sim = sim
}

func (f *fixture) vehicle(t *testing.T, id string) model.Vehicle {
	t.Helper()
	v, ok := f.sim.Vehicle(id)
	require.True(t, ok, "vehicle %s missing", id)
	return v
}

func (f *fixture) state(t *testing.T, id string) State {
	t.Helper()
	s, err := Of(f.vehicle(t, id))
	require.NoError(t, err)
	return s
}

func (f *fixture) transition(t *testing.T, id string, next State) {
	t.Helper()
	sim, err := Transition(f.sim, f.env, f.state(t, id), next)
	require.NoError(t, err)
	require.NotNil(t, sim, "transition to %s refused", next.Kind())
	f.sim = sim
}

// step updates one vehicle and advances the clock.
func (f *fixture) step(t *testing.T, id string) {
	t.Helper()
	sim, err := f.state(t, id).Update(f.sim, f.env)
	require.NoError(t, err)
	if sim != nil {
		f.sim = sim
	}
	f.sim = f.sim.Tick()
}

func (f *fixture) runUntil(t *testing.T, id string, kind model.StateKind, maxTicks int) []model.StateKind {
	t.Helper()
	var seen []model.StateKind
	for i := 0; i < maxTicks; i++ {
		k := f.state(t, id).Kind()
		if len(seen) == 0 || seen[len(seen)-1] != k {
			seen = append(seen, k)
		}
		if k == kind {
			return seen
		}
		f.step(t, id)
	}
	t.Fatalf("vehicle %s did not reach %s within %d ticks, path %v", id, kind, maxTicks, seen)
	return nil
}

func TestFastChargeSession(t *testing.T) {
	f := newFixture(t, environment.Params{IdealFastchargeSOCLimit: 0.8})
	here := cellAt(0)
	f.addStation(t, "s1", here, map[string]int{"dcfc": 1}, 0.5)
	f.addVehicle(t, "v1", here, 0.1)

	f.transition(t, "v1", NewChargingStation("v1", "s1", "dcfc"))
	st, _ := f.sim.Station("s1")
	assert.Equal(t, 0, st.AvailableChargers("dcfc"))

	f.runUntil(t, "v1", model.StateIdle, 500)

	v := f.vehicle(t, "v1")
	assert.GreaterOrEqual(t, f.bev.SOC(v), 0.79)
	st, _ = f.sim.Station("s1")
	assert.Equal(t, 1, st.AvailableChargers("dcfc"))
	assert.Less(t, v.Balance, 0.0)
	assert.InDelta(t, -v.Balance, st.Balance, 1e-9)
	assert.NotEmpty(t, f.sink.Reports(report.VehicleChargeEvent))
}

func TestSoftEnterLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, environment.Params{})
	f.addStation(t, "s1", cellAt(0), map[string]int{"dcfc": 1}, 0)
	f.addVehicle(t, "v1", cellAt(0.01), 0.5)
	before := f.sim

	sim, err := NewChargingStation("v1", "s1", "dcfc").Enter(f.sim, f.env)
	require.NoError(t, err)
	assert.Nil(t, sim)

	st, _ := before.Station("s1")
	assert.Equal(t, 1, st.AvailableChargers("dcfc"))
	assert.Equal(t, model.StateIdle, f.state(t, "v1").Kind())
}

func TestEnterMissingEntityFails(t *testing.T) {
	f := newFixture(t, environment.Params{})
	f.addVehicle(t, "v1", cellAt(0), 0.5)

	_, err := NewChargingStation("v1", "nope", "dcfc").Enter(f.sim, f.env)
	require.Error(t, err)
	assert.True(t, errors.Is(err, simstate.ErrNotFound))
	var opErr *simstate.OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "nope", opErr.EntityID)
}

func TestRejectsChargerWithWrongEnergy(t *testing.T) {
	f := newFixture(t, environment.Params{})
	f.env.Chargers["pump"] = model.Charger{ID: "pump", EnergyType: model.EnergyGasoline, RateKW: 100}
	f.addStation(t, "s1", cellAt(0), map[string]int{"pump": 1}, 0)
	f.addVehicle(t, "v1", cellAt(0), 0.5)

	_, err := NewChargingStation("v1", "s1", "pump").Enter(f.sim, f.env)
	assert.ErrorIs(t, err, ErrInvalidCharger)
}

func TestTripLifecycle(t *testing.T) {
	f := newFixture(t, environment.Params{})
	f.addVehicle(t, "v1", cellAt(0), 0.8)
	origin := model.StationaryPosition(cellAt(0.01))
	dest := model.StationaryPosition(cellAt(0.02))
	req, err := model.NewRequest("r1", origin, dest, 0, 2, 12.5, model.Membership{})
	require.NoError(t, err)
	f.sim, err = f.sim.AddRequest(req)
	require.NoError(t, err)

	v := f.vehicle(t, "v1")
	route := f.sim.RoadNetwork().Route(v.Position, origin)
	f.transition(t, "v1", NewDispatchTrip("v1", "r1", route))

	dispatched, ok := f.sim.Request("r1")
	require.True(t, ok)
	assert.Equal(t, "v1", dispatched.DispatchedVehicle)

	f.step(t, "v1")
	path := f.runUntil(t, "v1", model.StateIdle, 50)
	assert.Contains(t, path, model.StateServicingTrip)

	_, ok = f.sim.Request("r1")
	assert.False(t, ok, "boarded request must leave the request store")
	v = f.vehicle(t, "v1")
	assert.Equal(t, dest.GeoID, v.GeoID())
	assert.Empty(t, v.Passengers)
	assert.InDelta(t, 12.5, v.Balance, 1e-9)
	assert.Greater(t, v.DistanceTraveledKm, 2.0)
	assert.Len(t, f.sink.Reports(report.PickupRequestEvent), 1)
	assert.Len(t, f.sink.Reports(report.DropoffRequestEvent), 1)
}

func TestDispatchTripReleasesRequestOnExit(t *testing.T) {
	f := newFixture(t, environment.Params{})
	f.addVehicle(t, "v1", cellAt(0), 0.8)
	origin := model.StationaryPosition(cellAt(0.01))
	req, err := model.NewRequest("r1", origin, model.StationaryPosition(cellAt(0.02)), 0, 1, 5, model.Membership{})
	require.NoError(t, err)
	f.sim, err = f.sim.AddRequest(req)
	require.NoError(t, err)

	v := f.vehicle(t, "v1")
	f.transition(t, "v1", NewDispatchTrip("v1", "r1", f.sim.RoadNetwork().Route(v.Position, origin)))
	f.transition(t, "v1", NewIdle("v1"))

	r, ok := f.sim.Request("r1")
	require.True(t, ok)
	assert.False(t, r.IsDispatched())
}

func TestMembershipDenied(t *testing.T) {
	f := newFixture(t, environment.Params{})
	private, err := model.NewMembership("fleet_a")
	require.NoError(t, err)
	st, err := model.NewStation("s1", model.StationaryPosition(cellAt(0)), map[string]int{"dcfc": 1}, nil, private)
	require.NoError(t, err)
	f.sim, err = f.sim.AddStation(st)
	require.NoError(t, err)
	f.addVehicle(t, "v1", cellAt(0), 0.5)

	_, err = NewChargingStation("v1", "s1", "dcfc").Enter(f.sim, f.env)
	assert.ErrorIs(t, err, ErrMembership)
}

func TestQueueingHandsOverCharger(t *testing.T) {
	f := newFixture(t, environment.Params{})
	here := cellAt(0)
	f.addStation(t, "s1", here, map[string]int{"dcfc": 1}, 0)
	f.addVehicle(t, "v1", here, 0.2)
	f.addVehicle(t, "v2", here, 0.2)

	f.transition(t, "v1", NewChargingStation("v1", "s1", "dcfc"))
	f.transition(t, "v2", NewChargeQueueing("v2", "s1", "dcfc", f.sim.SimTime()))
	st, _ := f.sim.Station("s1")
	assert.Equal(t, 1, st.EnqueuedFor("dcfc"))

	f.transition(t, "v1", NewIdle("v1"))
	f.step(t, "v2")

	assert.Equal(t, model.StateChargingStation, f.state(t, "v2").Kind())
	st, _ = f.sim.Station("s1")
	assert.Equal(t, 0, st.EnqueuedFor("dcfc"))
	assert.Equal(t, 0, st.AvailableChargers("dcfc"))
}

func TestBaseChargingThenReserve(t *testing.T) {
	f := newFixture(t, environment.Params{})
	f.addStation(t, "s1", cellAt(0.01), map[string]int{"l2": 1}, 0)
	b, err := model.NewBase("b1", model.StationaryPosition(cellAt(0)), 2, "s1", model.Membership{})
	require.NoError(t, err)
	f.sim, err = f.sim.AddBase(b)
	require.NoError(t, err)
	f.addVehicle(t, "v1", cellAt(0), 0.7)

	f.transition(t, "v1", NewChargingBase("v1", "b1", "l2"))
	b, _ = f.sim.Base("b1")
	st, _ := f.sim.Station("s1")
	assert.Equal(t, 1, b.AvailableStalls)
	assert.Equal(t, 0, st.AvailableChargers("l2"))

	f.runUntil(t, "v1", model.StateReserveBase, 400)
	b, _ = f.sim.Base("b1")
	st, _ = f.sim.Station("s1")
	assert.Equal(t, 1, b.AvailableStalls)
	assert.Equal(t, 1, st.AvailableChargers("l2"))

	f.transition(t, "v1", NewIdle("v1"))
	b, _ = f.sim.Base("b1")
	assert.Equal(t, 2, b.AvailableStalls)
}

func TestOutOfServiceRecovery(t *testing.T) {
	f := newFixture(t, environment.Params{OutOfServiceRecoverySeconds: 120})
	f.addVehicle(t, "v1", cellAt(0), 0)

	f.step(t, "v1")
	assert.Equal(t, model.StateOutOfService, f.state(t, "v1").Kind())

	f.runUntil(t, "v1", model.StateIdle, 10)
	assert.InDelta(t, 0.2, f.bev.SOC(f.vehicle(t, "v1")), 0.01)

	recoveries := 0
	for _, r := range f.sink.Reports(report.VehicleChargeEvent) {
		if r.Str("charge_kind") == "roadside_recovery" {
			recoveries++
		}
	}
	assert.Equal(t, 1, recoveries)
}

func TestOutOfServiceStaysWithoutRecovery(t *testing.T) {
	f := newFixture(t, environment.Params{})
	f.addVehicle(t, "v1", cellAt(0), 0)
	for i := 0; i < 5; i++ {
		f.step(t, "v1")
	}
	assert.Equal(t, model.StateOutOfService, f.state(t, "v1").Kind())
}

func TestExactlyOneStatePerVehicle(t *testing.T) {
	f := newFixture(t, environment.Params{})
	f.addVehicle(t, "v1", cellAt(0), 0.5)
	v := f.vehicle(t, "v1")
	route := f.sim.RoadNetwork().Route(v.Position, model.StationaryPosition(cellAt(0.01)))
	idle := f.state(t, "v1")
	f.transition(t, "v1", NewRepositioning("v1", route))

	first := f.state(t, "v1")
	transitions := f.sink.Reports(report.StateTransition)
	require.Len(t, transitions, 1)
	assert.Equal(t, idle.InstanceID(), transitions[0].Str("from_instance_id"))
	assert.Equal(t, first.InstanceID(), transitions[0].Str("instance_id"))
	assert.NotEqual(t, idle.InstanceID(), first.InstanceID())
	f.step(t, "v1")
	second := f.state(t, "v1")
	assert.Equal(t, model.StateRepositioning, second.Kind())
	assert.Equal(t, first.InstanceID(), second.InstanceID(), "moving keeps the same state instance")
	assert.Len(t, f.sim.VehiclesWhere(func(model.Vehicle) bool { return true }), 1)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to model.StateKind
		want     bool
	}{
		{model.StateIdle, model.StateDispatchTrip, true},
		{model.StateIdle, model.StateChargeQueueing, false},
		{model.StateServicingTrip, model.StateIdle, false},
		{model.StateOutOfService, model.StateIdle, false},
		{model.StateChargeQueueing, model.StateChargingStation, true},
		{model.StateReserveBase, model.StateChargingBase, true},
		{model.StateChargingBase, model.StateChargingStation, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
	for _, k := range model.AllStateKinds {
		assert.False(t, CanTransition(model.StateServicingTrip, k))
	}
}

func TestRejectedMoveFilesNoReport(t *testing.T) {
	f := newFixture(t, environment.Params{})
	start := cellAt(0)
	fence, err := start.Parent(12)
	require.NoError(t, err)
	rn, err := roadnetwork.NewHaversine(roadnetwork.HaversineConfig{Geofence: []string{fence.String()}})
	require.NoError(t, err)
	f.sim, err = simstate.New(simstate.Config{}, rn)
	require.NoError(t, err)
	f.addVehicle(t, "v1", start, 0.8)

	v := f.vehicle(t, "v1")
	f.transition(t, "v1", NewRepositioning("v1", rn.Route(v.Position, model.StationaryPosition(cellAt(0.05)))))

	next, err := f.state(t, "v1").Update(f.sim, f.env)
	require.ErrorIs(t, err, simstate.ErrGeofenceViolation)
	assert.Nil(t, next)
	assert.Empty(t, f.sink.Reports(report.VehicleMoveEvent))
}
