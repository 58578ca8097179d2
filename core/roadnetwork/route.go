package roadnetwork

import (
	"github.com/kilianp07/fleetsim/core/geo"
)

// Route is an ordered sequence of links.
type Route []Link

// Empty reports whether there is nothing left to drive.
func (r Route) Empty() bool { return len(r) == 0 }

// DistanceKm sums link distances.
func (r Route) DistanceKm() float64 {
	var d float64
	for _, l := range r {
		d += l.DistanceKm
	}
	return d
}

// TravelTimeSeconds sums link travel times.
func (r Route) TravelTimeSeconds() float64 {
	var t float64
	for _, l := range r {
		t += l.TravelTimeSeconds()
	}
	return t
}

// Origin is the start of the first link.
func (r Route) Origin() (geo.ID, bool) {
	if len(r) == 0 {
		return geo.Nil, false
	}
	return r[0].Start, true
}

// Destination is the end of the last link.
func (r Route) Destination() (geo.ID, bool) {
	if len(r) == 0 {
		return geo.Nil, false
	}
	return r[len(r)-1].End, true
}

// CorrespondsWith checks that r leads from src to dst. A nil dst only checks
// the origin. An empty route is valid when there is no dst or src is dst.
func (r Route) CorrespondsWith(src geo.ID, dst *geo.ID) bool {
	if len(r) == 0 {
		return dst == nil || *dst == src
	}
	if r[0].Start != src {
		return false
	}
	if dst != nil && r[len(r)-1].End != *dst {
		return false
	}
	return true
}

// Traversal is the result of driving a route for some time.
type Traversal struct {
	RemainingTimeSeconds float64
	DistanceKm           float64
	Experienced          Route
	Remaining            Route
}

// Traverse drives along r for durationS seconds.
func Traverse(r Route, durationS float64) Traversal {
	if len(r) == 0 || r[0].Start == r[len(r)-1].End {
		return Traversal{}
	}
	acc := Traversal{RemainingTimeSeconds: durationS}
	for _, l := range r {
		if acc.RemainingTimeSeconds <= 0 {
			acc.Remaining = append(acc.Remaining, l)
			continue
		}
		res := traverseUpTo(l, acc.RemainingTimeSeconds)
		if res.traversed != nil {
			acc.Experienced = append(acc.Experienced, *res.traversed)
			acc.DistanceKm += res.traversed.DistanceKm
		}
		if res.remaining != nil {
			acc.Remaining = append(acc.Remaining, *res.remaining)
		}
		acc.RemainingTimeSeconds = res.remainingTime
	}
	return acc
}
