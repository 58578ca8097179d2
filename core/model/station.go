package model

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kilianp07/fleetsim/core/geo"
)

// ErrChargerNotFound is returned when a station has no chargers of a type.
var ErrChargerNotFound = errors.New("charger not found")

// ChargerState counts the chargers of one type at a station.
type ChargerState struct {
	ChargerID   string  `json:"charger_id"`
	Total       int     `json:"total"`
	Available   int     `json:"available"`
	Enqueued    int     `json:"enqueued"`
	PricePerKWh float64 `json:"price_per_kwh"`
}

// InUse is the number of checked out chargers.
func (c ChargerState) InUse() int { return c.Total - c.Available }

// Station offers chargers to vehicles.
type Station struct {
	ID         string                  `json:"id"`
	Position   Position                `json:"position"`
	Chargers   map[string]ChargerState `json:"chargers"`
	Balance    float64                 `json:"balance"`
	Membership Membership              `json:"membership"`
}

// NewStation builds a station where every charger starts available.
func NewStation(id string, p Position, counts map[string]int, prices map[string]float64, m Membership) (Station, error) {
	if id == "" {
		return Station{}, fmt.Errorf("station id is required")
	}
	if !p.GeoID.Valid() {
		return Station{}, fmt.Errorf("station %s: %w", id, geo.ErrInvalid)
	}
	chargers := make(map[string]ChargerState, len(counts))
	for cid, n := range counts {
		if n < 0 {
			return Station{}, fmt.Errorf("station %s: negative charger count for %s", id, cid)
		}
		chargers[cid] = ChargerState{ChargerID: cid, Total: n, Available: n, PricePerKWh: prices[cid]}
	}
	return Station{ID: id, Position: p, Chargers: chargers, Membership: m}, nil
}

// GeoID is the station's cell.
func (s Station) GeoID() geo.ID { return s.Position.GeoID }

// ChargerIDs lists charger types in ascending order.
func (s Station) ChargerIDs() []string {
	ids := make([]string, 0, len(s.Chargers))
	for id := range s.Chargers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasAvailableCharger reports whether a charger of the type is free.
func (s Station) HasAvailableCharger(chargerID string) bool {
	cs, ok := s.Chargers[chargerID]
	return ok && cs.Available > 0
}

// AvailableChargers returns the free count for a type, 0 when absent.
func (s Station) AvailableChargers(chargerID string) int { return s.Chargers[chargerID].Available }

// Price returns the per-kWh price for a charger type.
func (s Station) Price(chargerID string) (float64, bool) {
	cs, ok := s.Chargers[chargerID]
	return cs.PricePerKWh, ok
}

func (s Station) withCharger(cs ChargerState) Station {
	out := make(map[string]ChargerState, len(s.Chargers))
	for k, v := range s.Chargers {
		out[k] = v
	}
	out[cs.ChargerID] = cs
	s.Chargers = out
	return s
}

// CheckoutCharger claims one charger. ok is false when none is free; that is
// not an error.
func (s Station) CheckoutCharger(chargerID string) (Station, bool, error) {
	cs, found := s.Chargers[chargerID]
	if !found {
		return s, false, fmt.Errorf("station %s: %w: %s", s.ID, ErrChargerNotFound, chargerID)
	}
	if cs.Available == 0 {
		return s, false, nil
	}
	cs.Available--
	return s.withCharger(cs), true, nil
}

// ReturnCharger releases one charger.
func (s Station) ReturnCharger(chargerID string) (Station, error) {
	cs, found := s.Chargers[chargerID]
	if !found {
		return s, fmt.Errorf("station %s: %w: %s", s.ID, ErrChargerNotFound, chargerID)
	}
	if cs.Available >= cs.Total {
		return s, fmt.Errorf("station %s: returning charger %s would exceed total %d", s.ID, chargerID, cs.Total)
	}
	cs.Available++
	return s.withCharger(cs), nil
}

// EnqueueForCharger records a vehicle waiting for a charger type.
func (s Station) EnqueueForCharger(chargerID string) (Station, error) {
	cs, found := s.Chargers[chargerID]
	if !found {
		return s, fmt.Errorf("station %s: %w: %s", s.ID, ErrChargerNotFound, chargerID)
	}
	cs.Enqueued++
	return s.withCharger(cs), nil
}

// DequeueForCharger removes a waiting vehicle.
func (s Station) DequeueForCharger(chargerID string) (Station, error) {
	cs, found := s.Chargers[chargerID]
	if !found {
		return s, fmt.Errorf("station %s: %w: %s", s.ID, ErrChargerNotFound, chargerID)
	}
	if cs.Enqueued == 0 {
		return s, fmt.Errorf("station %s: no vehicles enqueued for charger %s", s.ID, chargerID)
	}
	cs.Enqueued--
	return s.withCharger(cs), nil
}

// EnqueuedFor returns the queue length for a charger type.
func (s Station) EnqueuedFor(chargerID string) int { return s.Chargers[chargerID].Enqueued }

// ReceivePayment credits the station.
func (s Station) ReceivePayment(amount float64) Station {
	s.Balance += amount
	return s
}

// UpdatePrices sets per-kWh prices for existing charger types.
func (s Station) UpdatePrices(prices map[string]float64) (Station, error) {
	for cid, p := range prices {
		cs, found := s.Chargers[cid]
		if !found {
			return s, fmt.Errorf("station %s: %w: %s", s.ID, ErrChargerNotFound, cid)
		}
		cs.PricePerKWh = p
		s = s.withCharger(cs)
	}
	return s, nil
}
