package model

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/geo"
)

// Vehicle is a fleet member. Its behaviour is governed by State.
type Vehicle struct {
	ID                  string       `json:"id"`
	MechatronicsID      string       `json:"mechatronics_id"`
	Energy              Energy       `json:"energy"`
	Position            Position     `json:"position"`
	State               VehicleState `json:"-"`
	Membership          Membership   `json:"membership"`
	TotalSeats          int          `json:"total_seats"`
	Passengers          []Passenger  `json:"passengers,omitempty"`
	Balance             float64      `json:"balance"`
	DistanceTraveledKm  float64      `json:"distance_traveled_km"`
	IdleDurationSeconds int64        `json:"idle_duration_s"`
}

// Validate checks the static fields of a vehicle.
func (v Vehicle) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("vehicle id is required")
	}
	if v.MechatronicsID == "" {
		return fmt.Errorf("vehicle %s: mechatronics id is required", v.ID)
	}
	if !v.Position.GeoID.Valid() {
		return fmt.Errorf("vehicle %s: %w", v.ID, geo.ErrInvalid)
	}
	if v.State == nil {
		return fmt.Errorf("vehicle %s: no vehicle state", v.ID)
	}
	return nil
}

// GeoID is the vehicle's current cell.
func (v Vehicle) GeoID() geo.ID { return v.Position.GeoID }

// WithState installs a new state.
func (v Vehicle) WithState(s VehicleState) Vehicle {
	v.State = s
	return v
}

// WithPosition moves the vehicle.
func (v Vehicle) WithPosition(p Position) Vehicle {
	v.Position = p
	return v
}

// WithEnergy replaces the energy map.
func (v Vehicle) WithEnergy(e Energy) Vehicle {
	v.Energy = e
	return v
}

// AddDistance accumulates travelled distance.
func (v Vehicle) AddDistance(km float64) Vehicle {
	v.DistanceTraveledKm += km
	return v
}

// AddIdleTime accumulates time spent idle.
func (v Vehicle) AddIdleTime(seconds int64) Vehicle {
	v.IdleDurationSeconds += seconds
	return v
}

// ResetIdleTime clears the idle accumulator.
func (v Vehicle) ResetIdleTime() Vehicle {
	v.IdleDurationSeconds = 0
	return v
}

// ReceivePayment credits the vehicle's balance.
func (v Vehicle) ReceivePayment(amount float64) Vehicle {
	v.Balance += amount
	return v
}

// SendPayment debits the vehicle's balance.
func (v Vehicle) SendPayment(amount float64) Vehicle {
	v.Balance -= amount
	return v
}

// Board adds passengers to the vehicle.
func (v Vehicle) Board(ps []Passenger) Vehicle {
	out := make([]Passenger, 0, len(v.Passengers)+len(ps))
	out = append(out, v.Passengers...)
	for _, p := range ps {
		p.VehicleID = v.ID
		out = append(out, p)
	}
	v.Passengers = out
	return v
}

// DropOff removes all passengers.
func (v Vehicle) DropOff() Vehicle {
	v.Passengers = nil
	return v
}

// AvailableSeats is TotalSeats minus boarded passengers.
func (v Vehicle) AvailableSeats() int { return v.TotalSeats - len(v.Passengers) }
