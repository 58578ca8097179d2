package simstate

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
)

func (s *SimulationState) checkPlacement(g geo.ID) error {
	if !g.Valid() {
		return geo.ErrInvalid
	}
	if g.Resolution() < s.searchRes {
		return fmt.Errorf("%w: %d is coarser than search resolution %d", ErrResolution, g.Resolution(), s.searchRes)
	}
	if !s.roadNetwork.WithinGeofence(g) {
		return ErrGeofenceViolation
	}
	return nil
}

// AddVehicle inserts a new vehicle.
func (s *SimulationState) AddVehicle(v model.Vehicle) (*SimulationState, error) {
	const op = "add_vehicle"
	if err := v.Validate(); err != nil {
		return nil, s.opErr(op, v.ID, fmt.Errorf("%w: %v", ErrInvalidEntity, err))
	}
	if _, exists := s.vehicles.get(v.ID); exists {
		return nil, s.opErr(op, v.ID, ErrDuplicateID)
	}
	if err := s.checkPlacement(v.GeoID()); err != nil {
		return nil, s.opErr(op, v.ID, err)
	}
	vs, err := s.vehicles.insert(v.ID, v, s.searchRes)
	if err != nil {
		return nil, s.opErr(op, v.ID, err)
	}
	c := s.clone()
	c.vehicles = vs
	return c, nil
}

// ModifyVehicle replaces a stored vehicle, re-indexing it if it moved.
func (s *SimulationState) ModifyVehicle(v model.Vehicle) (*SimulationState, error) {
	const op = "modify_vehicle"
	if err := v.Validate(); err != nil {
		return nil, s.opErr(op, v.ID, fmt.Errorf("%w: %v", ErrInvalidEntity, err))
	}
	if _, exists := s.vehicles.get(v.ID); !exists {
		return nil, s.opErr(op, v.ID, ErrNotFound)
	}
	if err := s.checkPlacement(v.GeoID()); err != nil {
		return nil, s.opErr(op, v.ID, err)
	}
	vs, err := s.vehicles.replace(v.ID, v, s.searchRes)
	if err != nil {
		return nil, s.opErr(op, v.ID, err)
	}
	c := s.clone()
	c.vehicles = vs
	return c, nil
}

// RemoveVehicle drops a vehicle and its index entries.
func (s *SimulationState) RemoveVehicle(id string) (*SimulationState, error) {
	vs, err := s.vehicles.remove(id, s.searchRes)
	if err != nil {
		return nil, s.opErr("remove_vehicle", id, err)
	}
	c := s.clone()
	c.vehicles = vs
	c.applied = s.applied.Delete(id)
	return c, nil
}

// AddRequest inserts a new request.
func (s *SimulationState) AddRequest(r model.Request) (*SimulationState, error) {
	const op = "add_request"
	if r.ID == "" {
		return nil, s.opErr(op, r.ID, ErrInvalidEntity)
	}
	if _, exists := s.requests.get(r.ID); exists {
		return nil, s.opErr(op, r.ID, ErrDuplicateID)
	}
	if err := s.checkPlacement(r.GeoID()); err != nil {
		return nil, s.opErr(op, r.ID, err)
	}
	if err := s.checkPlacement(r.Destination.GeoID); err != nil {
		return nil, s.opErr(op, r.ID, fmt.Errorf("destination: %w", err))
	}
	rs, err := s.requests.insert(r.ID, r, s.searchRes)
	if err != nil {
		return nil, s.opErr(op, r.ID, err)
	}
	c := s.clone()
	c.requests = rs
	return c, nil
}

func (s *SimulationState) ModifyRequest(r model.Request) (*SimulationState, error) {
	const op = "modify_request"
	if _, exists := s.requests.get(r.ID); !exists {
		return nil, s.opErr(op, r.ID, ErrNotFound)
	}
	if err := s.checkPlacement(r.GeoID()); err != nil {
		return nil, s.opErr(op, r.ID, err)
	}
	rs, err := s.requests.replace(r.ID, r, s.searchRes)
	if err != nil {
		return nil, s.opErr(op, r.ID, err)
	}
	c := s.clone()
	c.requests = rs
	return c, nil
}

func (s *SimulationState) RemoveRequest(id string) (*SimulationState, error) {
	rs, err := s.requests.remove(id, s.searchRes)
	if err != nil {
		return nil, s.opErr("remove_request", id, err)
	}
	c := s.clone()
	c.requests = rs
	return c, nil
}

// AddStation inserts a new station. Two stations may not share a cell.
func (s *SimulationState) AddStation(st model.Station) (*SimulationState, error) {
	const op = "add_station"
	if st.ID == "" {
		return nil, s.opErr(op, st.ID, ErrInvalidEntity)
	}
	if _, exists := s.stations.get(st.ID); exists {
		return nil, s.opErr(op, st.ID, ErrDuplicateID)
	}
	if err := s.checkPlacement(st.GeoID()); err != nil {
		return nil, s.opErr(op, st.ID, err)
	}
	if occupied(s.stations.loc.ids(st.GeoID()), st.ID) {
		return nil, s.opErr(op, st.ID, ErrDuplicateLocation)
	}
	ss, err := s.stations.insert(st.ID, st, s.searchRes)
	if err != nil {
		return nil, s.opErr(op, st.ID, err)
	}
	c := s.clone()
	c.stations = ss
	return c, nil
}

func (s *SimulationState) ModifyStation(st model.Station) (*SimulationState, error) {
	const op = "modify_station"
	if _, exists := s.stations.get(st.ID); !exists {
		return nil, s.opErr(op, st.ID, ErrNotFound)
	}
	if err := s.checkPlacement(st.GeoID()); err != nil {
		return nil, s.opErr(op, st.ID, err)
	}
	if occupied(s.stations.loc.ids(st.GeoID()), st.ID) {
		return nil, s.opErr(op, st.ID, ErrDuplicateLocation)
	}
	ss, err := s.stations.replace(st.ID, st, s.searchRes)
	if err != nil {
		return nil, s.opErr(op, st.ID, err)
	}
	c := s.clone()
	c.stations = ss
	return c, nil
}

func (s *SimulationState) RemoveStation(id string) (*SimulationState, error) {
	ss, err := s.stations.remove(id, s.searchRes)
	if err != nil {
		return nil, s.opErr("remove_station", id, err)
	}
	c := s.clone()
	c.stations = ss
	return c, nil
}

// AddBase inserts a new base. Two bases may not share a cell.
func (s *SimulationState) AddBase(b model.Base) (*SimulationState, error) {
	const op = "add_base"
	if b.ID == "" {
		return nil, s.opErr(op, b.ID, ErrInvalidEntity)
	}
	if _, exists := s.bases.get(b.ID); exists {
		return nil, s.opErr(op, b.ID, ErrDuplicateID)
	}
	if err := s.checkPlacement(b.GeoID()); err != nil {
		return nil, s.opErr(op, b.ID, err)
	}
	if occupied(s.bases.loc.ids(b.GeoID()), b.ID) {
		return nil, s.opErr(op, b.ID, ErrDuplicateLocation)
	}
	bs, err := s.bases.insert(b.ID, b, s.searchRes)
	if err != nil {
		return nil, s.opErr(op, b.ID, err)
	}
	c := s.clone()
	c.bases = bs
	return c, nil
}

func (s *SimulationState) ModifyBase(b model.Base) (*SimulationState, error) {
	const op = "modify_base"
	if _, exists := s.bases.get(b.ID); !exists {
		return nil, s.opErr(op, b.ID, ErrNotFound)
	}
	if err := s.checkPlacement(b.GeoID()); err != nil {
		return nil, s.opErr(op, b.ID, err)
	}
	if occupied(s.bases.loc.ids(b.GeoID()), b.ID) {
		return nil, s.opErr(op, b.ID, ErrDuplicateLocation)
	}
	bs, err := s.bases.replace(b.ID, b, s.searchRes)
	if err != nil {
		return nil, s.opErr(op, b.ID, err)
	}
	c := s.clone()
	c.bases = bs
	return c, nil
}

func (s *SimulationState) RemoveBase(id string) (*SimulationState, error) {
	bs, err := s.bases.remove(id, s.searchRes)
	if err != nil {
		return nil, s.opErr("remove_base", id, err)
	}
	c := s.clone()
	c.bases = bs
	return c, nil
}

// BoardVehicle moves the request's passengers into the vehicle, credits the
// vehicle with the request's value and removes the request, in one step.
func (s *SimulationState) BoardVehicle(requestID, vehicleID string) (*SimulationState, error) {
	const op = "board_vehicle"
	r, ok := s.requests.get(requestID)
	if !ok {
		return nil, s.opErr(op, requestID, ErrNotFound)
	}
	v, ok := s.vehicles.get(vehicleID)
	if !ok {
		return nil, s.opErr(op, vehicleID, ErrNotFound)
	}
	if v.AvailableSeats() < len(r.Passengers) {
		return nil, s.opErr(op, vehicleID, fmt.Errorf("%w: %d seats for %d passengers",
			ErrInvalidEntity, v.AvailableSeats(), len(r.Passengers)))
	}
	vs, err := s.vehicles.replace(vehicleID, v.Board(r.Passengers).ReceivePayment(r.Value), s.searchRes)
	if err != nil {
		return nil, s.opErr(op, vehicleID, err)
	}
	rs, err := s.requests.remove(requestID, s.searchRes)
	if err != nil {
		return nil, s.opErr(op, requestID, err)
	}
	c := s.clone()
	c.vehicles = vs
	c.requests = rs
	return c, nil
}

func occupied(ids []string, self string) bool {
	for _, id := range ids {
		if id != self {
			return true
		}
	}
	return false
}
