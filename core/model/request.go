package model

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/geo"
)

const kmToMiles = 0.621371

// Request is a trip a customer wants served.
type Request struct {
	ID                    string      `json:"id"`
	Origin                Position    `json:"origin"`
	Destination           Position    `json:"destination"`
	DepartureTime         SimTime     `json:"departure_time"`
	Passengers            []Passenger `json:"passengers"`
	Value                 float64     `json:"value"`
	Membership            Membership  `json:"membership"`
	DispatchedVehicle     string      `json:"dispatched_vehicle,omitempty"`
	DispatchedVehicleTime SimTime     `json:"dispatched_vehicle_time,omitempty"`
}

// NewRequest builds a request with passengers derived from the count.
func NewRequest(id string, origin, destination Position, departure SimTime, passengers int, value float64, m Membership) (Request, error) {
	if id == "" {
		return Request{}, fmt.Errorf("request id is required")
	}
	if passengers < 1 {
		return Request{}, fmt.Errorf("request %s: passenger count must be at least 1", id)
	}
	if !origin.GeoID.Valid() || !destination.GeoID.Valid() {
		return Request{}, fmt.Errorf("request %s: %w", id, geo.ErrInvalid)
	}
	return Request{
		ID:            id,
		Origin:        origin,
		Destination:   destination,
		DepartureTime: departure,
		Passengers:    CreatePassengers(id, passengers, origin, destination, departure, m),
		Value:         value,
		Membership:    m,
	}, nil
}

// GeoID is the pickup location.
func (r Request) GeoID() geo.ID { return r.Origin.GeoID }

// IsDispatched reports whether a vehicle has been assigned.
func (r Request) IsDispatched() bool { return r.DispatchedVehicle != "" }

// AssignDispatchedVehicle records the vehicle sent to serve the request.
func (r Request) AssignDispatchedVehicle(vehicleID string, t SimTime) Request {
	r.DispatchedVehicle = vehicleID
	r.DispatchedVehicleTime = t
	return r
}

// UnassignDispatchedVehicle clears the assignment.
func (r Request) UnassignDispatchedVehicle() Request {
	r.DispatchedVehicle = ""
	r.DispatchedVehicleTime = 0
	return r
}

// WithValue sets the monetary value of the trip.
func (r Request) WithValue(v float64) Request {
	r.Value = v
	return r
}

// CancelTime is when an unserved request expires.
func (r Request) CancelTime(cancelWindowS int64) SimTime {
	return r.DepartureTime.Add(cancelWindowS)
}

// RateStructure prices a trip by distance.
type RateStructure struct {
	BasePrice    float64 `json:"base_price" yaml:"base_price"`
	PricePerMile float64 `json:"price_per_mile" yaml:"price_per_mile"`
	MinimumPrice float64 `json:"minimum_price" yaml:"minimum_price"`
}

// Price returns the fare for a trip of distanceKm.
func (rs RateStructure) Price(distanceKm float64) float64 {
	p := rs.BasePrice + rs.PricePerMile*distanceKm*kmToMiles
	if p < rs.MinimumPrice {
		return rs.MinimumPrice
	}
	return p
}
