package simstate

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/roadnetwork"
)

const (
	lat0 = 39.7392
	lng0 = -104.9903
)

type stubState struct {
	kind model.StateKind
	vid  string
}

func (s stubState) Kind() model.StateKind { return s.kind }
func (s stubState) VehicleID() string { return s.vid }
func (s stubState) InstanceID() string { return s.vid + "-" + s.kind.String() }

func cellAt(dLat, dLng float64) geo.ID {
	return geo.MustFromLatLng(lat0+dLat, lng0+dLng, 15)
}

func newState(t *testing.T) *SimulationState {
	t.Helper()
	rn, err := roadnetwork.NewHaversine(roadnetwork.HaversineConfig{})
	require.NoError(t, err)
	s, err := New(Config{}, rn)
	require.NoError(t, err)
	return s
}

func vehicle(id string, g geo.ID) model.Vehicle {
	return model.Vehicle{
		ID:             id,
		MechatronicsID: "bev",
		Energy:         model.Energy{model.EnergyElectric: 40},
		Position:       model.StationaryPosition(g),
		State:          stubState{kind: model.StateIdle, vid: id},
		TotalSeats:     4,
	}
}

func request(t *testing.T, id string, o geo.ID) model.Request {
	t.Helper()
	r, err := model.NewRequest(id, model.StationaryPosition(o), model.StationaryPosition(cellAt(0.05, 0)), 0, 2, 10, model.Membership{})
	require.NoError(t, err)
	return r
}

// checkIndexes asserts every vehicle sits in exactly one location bucket and
// one search bucket, both derived from its current geoid.
func checkIndexes(t *testing.T, s *SimulationState) {
	t.Helper()
	locCount, searchCount := 0, 0
	s.vehicles.loc.each(func(g geo.ID, id string) {
		locCount++
		v, ok := s.Vehicle(id)
		require.True(t, ok, "dangling location entry %s", id)
		assert.Equal(t, v.GeoID(), g)
	})
	s.vehicles.search.each(func(g geo.ID, id string) {
		searchCount++
		v, ok := s.Vehicle(id)
		require.True(t, ok, "dangling search entry %s", id)
		p, err := v.GeoID().Parent(s.SearchResolution())
		require.NoError(t, err)
		assert.Equal(t, p, g)
	})
	assert.Equal(t, s.vehicles.len(), locCount)
	assert.Equal(t, s.vehicles.len(), searchCount)
}

func TestNewValidatesConfig(t *testing.T) {
	rn, _ := roadnetwork.NewHaversine(roadnetwork.HaversineConfig{})
	_, err := New(Config{}, nil)
	assert.Error(t, err)
	_, err = New(Config{LocationResolution: 6, SearchResolution: 7}, rn)
	assert.Error(t, err)

	s, err := New(Config{StartTime: 100}, rn)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultTimestepSeconds), s.TimestepSeconds())
	assert.Equal(t, DefaultLocationResolution, s.LocationResolution())
	assert.Equal(t, DefaultSearchResolution, s.SearchResolution())
	assert.Equal(t, model.SimTime(160), s.Tick().SimTime())
	assert.Equal(t, model.SimTime(100), s.SimTime())
}

func TestAddVehicleLeavesReceiverUntouched(t *testing.T) {
	s0 := newState(t)
	s1, err := s0.AddVehicle(vehicle("v1", cellAt(0, 0)))
	require.NoError(t, err)

	assert.Empty(t, s0.VehicleIDs())
	assert.Equal(t, []string{"v1"}, s1.VehicleIDs())
	assert.Equal(t, []string{"v1"}, s1.VehiclesAt(cellAt(0, 0)))

	_, err = s1.AddVehicle(vehicle("v1", cellAt(0.01, 0)))
	assert.True(t, errors.Is(err, ErrDuplicateID))
	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "add_vehicle", opErr.Op)
	assert.Equal(t, "v1", opErr.EntityID)
}

func TestAddVehicleRejectsInvalid(t *testing.T) {
	s := newState(t)
	v := vehicle("v1", cellAt(0, 0))
	v.State = nil
	_, err := s.AddVehicle(v)
	assert.True(t, errors.Is(err, ErrInvalidEntity))

	coarse, err := cellAt(0, 0).Parent(5)
	require.NoError(t, err)
	_, err = s.AddVehicle(vehicle("v2", coarse))
	assert.True(t, errors.Is(err, ErrResolution))
}

func TestGeofenceViolation(t *testing.T) {
	fence, err := cellAt(0, 0).Parent(6)
	require.NoError(t, err)
	rn, err := roadnetwork.NewHaversine(roadnetwork.HaversineConfig{Geofence: []string{fence.String()}})
	require.NoError(t, err)
	s, err := New(Config{}, rn)
	require.NoError(t, err)

	_, err = s.AddVehicle(vehicle("in", cellAt(0, 0)))
	assert.NoError(t, err)
	_, err = s.AddVehicle(vehicle("out", cellAt(3, 3)))
	assert.True(t, errors.Is(err, ErrGeofenceViolation))
}

func TestModifyVehicleMovesIndexEntries(t *testing.T) {
	s := newState(t)
	a, b := cellAt(0, 0), cellAt(0.3, 0)
	s, err := s.AddVehicle(vehicle("v1", a))
	require.NoError(t, err)

	moved, err := s.ModifyVehicle(vehicle("v1", b))
	require.NoError(t, err)
	assert.Empty(t, moved.VehiclesAt(a))
	assert.Equal(t, []string{"v1"}, moved.VehiclesAt(b))
	checkIndexes(t, moved)

	// the original snapshot still has v1 at a
	assert.Equal(t, []string{"v1"}, s.VehiclesAt(a))
	checkIndexes(t, s)

	_, err = s.ModifyVehicle(vehicle("ghost", a))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestIndexesStayConsistentUnderRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := newState(t)
	ids := []string{"a", "b", "c", "d", "e", "f"}

	for step := 0; step < 300; step++ {
		id := ids[rng.Intn(len(ids))]
		g := cellAt(rng.Float64()*0.5, rng.Float64()*0.5)
		_, exists := s.Vehicle(id)
		var (
			next *SimulationState
			err  error
		)
		switch {
		case !exists:
			next, err = s.AddVehicle(vehicle(id, g))
		case rng.Intn(3) == 0:
			next, err = s.RemoveVehicle(id)
		default:
			next, err = s.ModifyVehicle(vehicle(id, g))
		}
		require.NoError(t, err, "step %d", step)
		s = next
		checkIndexes(t, s)
	}
}

func TestRemoveDropsEmptyBuckets(t *testing.T) {
	s := newState(t)
	s, err := s.AddVehicle(vehicle("v1", cellAt(0, 0)))
	require.NoError(t, err)
	s, err = s.RemoveVehicle("v1")
	require.NoError(t, err)
	assert.Equal(t, 0, s.vehicles.loc.m.Len())
	assert.Equal(t, 0, s.vehicles.search.m.Len())

	_, err = s.RemoveVehicle("v1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStationsCannotShareACell(t *testing.T) {
	s := newState(t)
	g := cellAt(0, 0)
	st1, err := model.NewStation("s1", model.StationaryPosition(g), map[string]int{"dcfc": 2}, nil, model.Membership{})
	require.NoError(t, err)
	st2, err := model.NewStation("s2", model.StationaryPosition(g), map[string]int{"dcfc": 1}, nil, model.Membership{})
	require.NoError(t, err)

	s, err = s.AddStation(st1)
	require.NoError(t, err)
	_, err = s.AddStation(st2)
	assert.True(t, errors.Is(err, ErrDuplicateLocation))

	updated, _, err := st1.CheckoutCharger("dcfc")
	require.NoError(t, err)
	s, err = s.ModifyStation(updated)
	require.NoError(t, err)
	got, ok := s.Station("s1")
	require.True(t, ok)
	assert.Equal(t, 1, got.AvailableChargers("dcfc"))
}

func TestBoardVehicle(t *testing.T) {
	s := newState(t)
	g := cellAt(0, 0)
	s, err := s.AddVehicle(vehicle("v1", g))
	require.NoError(t, err)
	s, err = s.AddRequest(request(t, "r1", g))
	require.NoError(t, err)
	assert.True(t, s.VehicleAtRequest("v1", "r1"))

	boarded, err := s.BoardVehicle("r1", "v1")
	require.NoError(t, err)
	_, ok := boarded.Request("r1")
	assert.False(t, ok)
	assert.Empty(t, boarded.RequestsAt(g))
	v, _ := boarded.Vehicle("v1")
	require.Len(t, v.Passengers, 2)
	assert.Equal(t, "v1", v.Passengers[0].VehicleID)
	assert.InDelta(t, 10, v.Balance, 1e-9)

	_, err = boarded.BoardVehicle("r1", "v1")
	assert.True(t, errors.Is(err, ErrNotFound))

	// not enough seats
	small := vehicle("v2", g)
	small.TotalSeats = 1
	s, err = s.AddVehicle(small)
	require.NoError(t, err)
	_, err = s.BoardVehicle("r1", "v2")
	assert.True(t, errors.Is(err, ErrInvalidEntity))
}

func TestNearestRequest(t *testing.T) {
	s := newState(t)
	origin := cellAt(0, 0)
	offsets := []float64{0.04, 0.01, 0.02, 0.03}
	var err error
	for i, d := range offsets {
		s, err = s.AddRequest(request(t, fmt.Sprintf("r%d", i), cellAt(d, 0)))
		require.NoError(t, err)
	}

	r, ok, err := s.NearestRequest(origin, geo.SearchConfig{MaxRadiusKm: 20}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r1", r.ID)

	r, ok, err = s.NearestRequest(origin, geo.SearchConfig{MaxRadiusKm: 20}, func(r model.Request) bool {
		return r.ID != "r1"
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r2", r.ID)

	_, ok, err = newState(t).NearestRequest(origin, geo.SearchConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppliedInstructions(t *testing.T) {
	s := newState(t)
	s1 := s.WithAppliedInstruction("v1", "dispatch_trip r1")
	assert.Empty(t, s.AppliedInstructions())
	assert.Equal(t, map[string]string{"v1": "dispatch_trip r1"}, s1.AppliedInstructions())
	assert.Empty(t, s1.ClearAppliedInstructions().AppliedInstructions())
}
