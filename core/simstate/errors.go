package simstate

import (
	"errors"
	"fmt"

	"github.com/kilianp07/fleetsim/core/model"
)

var (
	ErrNotFound          = errors.New("entity not found")
	ErrDuplicateID       = errors.New("duplicate entity id")
	ErrDuplicateLocation = errors.New("location already occupied")
	ErrGeofenceViolation = errors.New("outside of geofence")
	ErrResolution        = errors.New("geoid resolution")
	ErrInvalidEntity     = errors.New("invalid entity")
)

// OpError records which operation failed on which entity and at which tick.
type OpError struct {
	Op       string
	EntityID string
	SimTime  model.SimTime
	Err      error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s at sim time %d: %v", e.Op, e.EntityID, int64(e.SimTime), e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func (s *SimulationState) opErr(op, id string, err error) error {
	return &OpError{Op: op, EntityID: id, SimTime: s.simTime, Err: err}
}
