package geo

import (
	"fmt"
	"math"
)

const (
	// DefaultMaxSearchRadiusKm bounds a ring search when no limit is configured.
	DefaultMaxSearchRadiusKm = 10.0

	// MaxDerivedRing caps the ring radius derived from MaxRadiusKm. Fine
	// search resolutions would otherwise expand into millions of cells.
	MaxDerivedRing = 64
)

// SearchConfig bounds an expanding ring search over search-resolution cells.
type SearchConfig struct {
	// SearchResolution is the resolution of the buckets being scanned.
	SearchResolution int `json:"search_resolution"`
	// MaxRadiusKm limits the search when MaxRing is zero.
	MaxRadiusKm float64 `json:"max_search_radius_km"`
	// MaxRing, when positive, is the last ring radius examined. It is not
	// capped by MaxDerivedRing.
	MaxRing int `json:"max_ring"`
}

// MaxK returns the largest ring radius the search will examine.
func (c SearchConfig) MaxK() int {
	if c.MaxRing > 0 {
		return c.MaxRing
	}
	radius := c.MaxRadiusKm
	if radius <= 0 {
		radius = DefaultMaxSearchRadiusKm
	}
	step := EdgeLengthKm(c.SearchResolution) * 2
	k := math.Ceil(radius / step)
	if k > MaxDerivedRing {
		return MaxDerivedRing
	}
	return int(k)
}

// Index exposes a keyed entity collection and its search-resolution buckets.
type Index[T any] struct {
	// Len is the number of entities in the collection.
	Len int
	// Bucket lists ids stored under a search cell, in ascending order.
	Bucket func(cell ID) []string
	// Get resolves an id.
	Get func(id string) (T, bool)
	// Locate returns the full-resolution cell of an entity.
	Locate func(T) ID
}

// Nearest runs an expanding ring search around query and returns the closest
// entity accepted by valid (nil accepts all). The search stops at the first
// ring holding a valid candidate; within it the smallest great-circle
// distance wins and ties keep the first candidate seen. Running out of rings
// is not an error: ok is false.
func Nearest[T any](query ID, idx Index[T], cfg SearchConfig, valid func(T) bool) (best T, ok bool, err error) {
	if idx.Len == 0 {
		return best, false, nil
	}
	if !query.Valid() {
		return best, false, fmt.Errorf("%w: nearest query %d", ErrInvalid, uint64(query))
	}
	if query.Resolution() < cfg.SearchResolution {
		return best, false, fmt.Errorf("%w: query at %d is coarser than search resolution %d",
			ErrResolution, query.Resolution(), cfg.SearchResolution)
	}
	origin, err := query.Parent(cfg.SearchResolution)
	if err != nil {
		return best, false, err
	}

	maxK := cfg.MaxK()
	seen := make(map[ID]struct{})
	for k := 0; k <= maxK; k++ {
		bestDist := math.Inf(1)
		for _, cell := range Disk(origin, k) {
			if _, done := seen[cell]; done {
				continue
			}
			seen[cell] = struct{}{}
			for _, id := range idx.Bucket(cell) {
				e, found := idx.Get(id)
				if !found {
					continue
				}
				if valid != nil && !valid(e) {
					continue
				}
				d := DistanceKm(query, idx.Locate(e))
				if d < bestDist {
					bestDist = d
					best = e
					ok = true
				}
			}
		}
		if ok {
			return best, true, nil
		}
	}
	return best, false, nil
}
