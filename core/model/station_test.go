package model

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/kilianp07/fleetsim/core/geo"
)

func testStation(t *testing.T, dcfc int) Station {
	t.Helper()
	g := geo.MustFromLatLng(39.7392, -104.9903, 15)
	s, err := NewStation("s1", StationaryPosition(g), map[string]int{"DCFC": dcfc}, map[string]float64{"DCFC": 0.5}, Membership{})
	if err != nil {
		t.Fatalf("new station: %v", err)
	}
	return s
}

func TestChargerConservation(t *testing.T) {
	s := testStation(t, 3)
	rng := rand.New(rand.NewSource(7))
	held := 0
	for i := 0; i < 500; i++ {
		if rng.Intn(2) == 0 {
			next, ok, err := s.CheckoutCharger("DCFC")
			if err != nil {
				t.Fatalf("checkout: %v", err)
			}
			if ok {
				held++
			} else if held != 3 {
				t.Fatalf("checkout refused with %d held", held)
			}
			s = next
		} else {
			next, err := s.ReturnCharger("DCFC")
			if held == 0 {
				if err == nil {
					t.Fatalf("expected error returning unheld charger")
				}
				continue
			}
			if err != nil {
				t.Fatalf("return: %v", err)
			}
			held--
			s = next
		}
		cs := s.Chargers["DCFC"]
		if cs.Available+cs.InUse() != cs.Total || cs.InUse() != held {
			t.Fatalf("conservation broken: %+v held=%d", cs, held)
		}
		if cs.Available < 0 || cs.Available > cs.Total {
			t.Fatalf("available out of range: %+v", cs)
		}
	}
}

func TestCheckoutDoesNotMutateOriginal(t *testing.T) {
	s := testStation(t, 1)
	next, ok, err := s.CheckoutCharger("DCFC")
	if err != nil || !ok {
		t.Fatalf("checkout: ok=%v err=%v", ok, err)
	}
	if s.AvailableChargers("DCFC") != 1 {
		t.Fatalf("original station mutated")
	}
	if next.AvailableChargers("DCFC") != 0 {
		t.Fatalf("expected 0 available got %d", next.AvailableChargers("DCFC"))
	}
	if _, _, err := s.CheckoutCharger("L2"); !errors.Is(err, ErrChargerNotFound) {
		t.Fatalf("expected ErrChargerNotFound got %v", err)
	}
}

func TestQueueCounters(t *testing.T) {
	s := testStation(t, 1)
	if _, err := s.DequeueForCharger("DCFC"); err == nil {
		t.Fatalf("expected error on empty queue")
	}
	s, err := s.EnqueueForCharger("DCFC")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if s.EnqueuedFor("DCFC") != 1 {
		t.Fatalf("expected 1 enqueued")
	}
	s, err = s.DequeueForCharger("DCFC")
	if err != nil || s.EnqueuedFor("DCFC") != 0 {
		t.Fatalf("dequeue: %v", err)
	}
}

func TestBaseStalls(t *testing.T) {
	g := geo.MustFromLatLng(39.7392, -104.9903, 15)
	b, err := NewBase("b1", StationaryPosition(g), 1, "", Membership{})
	if err != nil {
		t.Fatalf("new base: %v", err)
	}
	b, ok := b.CheckoutStall()
	if !ok {
		t.Fatalf("expected stall")
	}
	if _, ok := b.CheckoutStall(); ok {
		t.Fatalf("expected no stall left")
	}
	b, err = b.ReturnStall()
	if err != nil {
		t.Fatalf("return stall: %v", err)
	}
	if _, err := b.ReturnStall(); err == nil {
		t.Fatalf("expected error exceeding total")
	}
}
