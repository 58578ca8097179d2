package model

import "fmt"

// Passenger is one traveller of a request.
type Passenger struct {
	ID            string     `json:"id"`
	Origin        Position   `json:"origin"`
	Destination   Position   `json:"destination"`
	DepartureTime SimTime    `json:"departure_time"`
	VehicleID     string     `json:"vehicle_id,omitempty"`
	Membership    Membership `json:"membership"`
}

// CreatePassengers derives n passengers for a request.
func CreatePassengers(requestID string, n int, origin, destination Position, departure SimTime, m Membership) []Passenger {
	out := make([]Passenger, n)
	for i := 0; i < n; i++ {
		out[i] = Passenger{
			ID:            fmt.Sprintf("%s-%d", requestID, i),
			Origin:        origin,
			Destination:   destination,
			DepartureTime: departure,
			Membership:    m,
		}
	}
	return out
}
