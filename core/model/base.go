package model

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/geo"
)

// Base is a depot where vehicles park in stalls, optionally next to a station.
type Base struct {
	ID              string     `json:"id"`
	Position        Position   `json:"position"`
	TotalStalls     int        `json:"total_stalls"`
	AvailableStalls int        `json:"available_stalls"`
	StationID       string     `json:"station_id,omitempty"`
	Membership      Membership `json:"membership"`
}

// NewBase builds a base with every stall free.
func NewBase(id string, p Position, stalls int, stationID string, m Membership) (Base, error) {
	if id == "" {
		return Base{}, fmt.Errorf("base id is required")
	}
	if !p.GeoID.Valid() {
		return Base{}, fmt.Errorf("base %s: %w", id, geo.ErrInvalid)
	}
	if stalls < 0 {
		return Base{}, fmt.Errorf("base %s: negative stall count", id)
	}
	return Base{ID: id, Position: p, TotalStalls: stalls, AvailableStalls: stalls, StationID: stationID, Membership: m}, nil
}

// GeoID is the base's cell.
func (b Base) GeoID() geo.ID { return b.Position.GeoID }

// HasAvailableStall reports whether a stall is free.
func (b Base) HasAvailableStall() bool { return b.AvailableStalls > 0 }

// CheckoutStall claims a stall; ok is false when none is free.
func (b Base) CheckoutStall() (Base, bool) {
	if b.AvailableStalls == 0 {
		return b, false
	}
	b.AvailableStalls--
	return b, true
}

// ReturnStall frees a stall.
func (b Base) ReturnStall() (Base, error) {
	if b.AvailableStalls >= b.TotalStalls {
		return b, fmt.Errorf("base %s: returning stall would exceed total %d", b.ID, b.TotalStalls)
	}
	b.AvailableStalls++
	return b, nil
}
