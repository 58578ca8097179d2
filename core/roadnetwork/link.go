// Package roadnetwork describes how vehicles move between cells: links,
// routes, route traversal and the RoadNetwork capability.
package roadnetwork

import "github.com/kilianp07/fleetsim/core/geo"

// Link is a directed traversal over (part of) a road segment.
type Link struct {
	LinkID     string  `json:"link_id"`
	Start      geo.ID  `json:"start"`
	End        geo.ID  `json:"end"`
	DistanceKm float64 `json:"distance_km"`
	SpeedKmph  float64 `json:"speed_kmph"`
}

// NewLink builds a link, measuring the great-circle distance when distanceKm
// is not positive.
func NewLink(id string, start, end geo.ID, speedKmph, distanceKm float64) Link {
	if distanceKm <= 0 {
		distanceKm = geo.DistanceKm(start, end)
	}
	return Link{LinkID: id, Start: start, End: end, DistanceKm: distanceKm, SpeedKmph: speedKmph}
}

// TravelTimeSeconds at the link's speed.
func (l Link) TravelTimeSeconds() float64 {
	if l.SpeedKmph <= 0 {
		return 0
	}
	return l.DistanceKm / l.SpeedKmph * 3600
}

// linkTraversal is the outcome of moving along one link.
type linkTraversal struct {
	traversed     *Link
	remaining     *Link
	remainingTime float64
}

// traverseUpTo moves along l for at most availableS seconds, splitting the
// link when it cannot be finished.
func traverseUpTo(l Link, availableS float64) linkTraversal {
	if l.Start == l.End {
		return linkTraversal{remainingTime: availableS}
	}
	tt := l.TravelTimeSeconds()
	if tt <= availableS {
		done := l
		return linkTraversal{traversed: &done, remainingTime: availableS - tt}
	}
	mid := geo.Interpolate(l.Start, l.End, availableS/tt)
	traversed := NewLink(l.LinkID, l.Start, mid, l.SpeedKmph, 0)
	if mid == l.Start {
		traversed.DistanceKm = 0
	}
	remaining := NewLink(l.LinkID, mid, l.End, l.SpeedKmph, 0)
	return linkTraversal{traversed: &traversed, remaining: &remaining}
}
