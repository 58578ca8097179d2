// Package geo wraps the H3 hierarchical hex grid used to place every entity
// of a simulation.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/uber/h3-go/v4"
)

// ID is a discretized location: one H3 cell at some resolution.
type ID h3.Cell

// Nil is the zero ID. It is never a valid cell.
const Nil ID = 0

// ErrInvalid is returned when a string or coordinate does not map to a cell.
var ErrInvalid = errors.New("invalid geoid")

// ErrResolution is returned when a coarser resolution is asked of a finer one.
var ErrResolution = errors.New("invalid resolution")

// FromLatLng returns the cell containing the coordinate at the given resolution.
func FromLatLng(lat, lng float64, res int) (ID, error) {
	if res < 0 || res > 15 {
		return Nil, fmt.Errorf("%w: %d", ErrResolution, res)
	}
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Nil, fmt.Errorf("%w: (%f, %f)", ErrInvalid, lat, lng)
	}
	c := h3.LatLngToCell(h3.NewLatLng(lat, lng), res)
	if !c.IsValid() {
		return Nil, fmt.Errorf("%w: (%f, %f)", ErrInvalid, lat, lng)
	}
	return ID(c), nil
}

// MustFromLatLng is FromLatLng for fixtures and tests.
func MustFromLatLng(lat, lng float64, res int) ID {
	id, err := FromLatLng(lat, lng, res)
	if err != nil {
		panic(err)
	}
	return id
}

// Parse reads the hexadecimal form of a cell.
func Parse(s string) (ID, error) {
	c := h3.Cell(h3.IndexFromString(s))
	if !c.IsValid() {
		return Nil, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return ID(c), nil
}

func (g ID) cell() h3.Cell { return h3.Cell(g) }

// Valid reports whether g is a real H3 cell.
func (g ID) Valid() bool { return g != Nil && g.cell().IsValid() }

// Resolution of the cell, 0 (coarsest) to 15 (finest).
func (g ID) Resolution() int { return g.cell().Resolution() }

// String returns the canonical hexadecimal form.
func (g ID) String() string {
	if g == Nil {
		return ""
	}
	return g.cell().String()
}

// Parent returns the ancestor of g at a coarser (or equal) resolution.
func (g ID) Parent(res int) (ID, error) {
	if !g.Valid() {
		return Nil, fmt.Errorf("%w: %d", ErrInvalid, uint64(g))
	}
	own := g.Resolution()
	if res > own || res < 0 {
		return Nil, fmt.Errorf("%w: parent resolution %d of cell at %d", ErrResolution, res, own)
	}
	if res == own {
		return g, nil
	}
	return ID(g.cell().Parent(res)), nil
}

// LatLng returns the centre of the cell.
func (g ID) LatLng() (lat, lng float64) {
	ll := g.cell().LatLng()
	return ll.Lat, ll.Lng
}

// MarshalText implements encoding.TextMarshaler.
func (g ID) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *ID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*g = Nil
		return nil
	}
	id, err := Parse(string(b))
	if err != nil {
		return err
	}
	*g = id
	return nil
}

// DistanceKm is the great-circle distance between the centres of two cells.
func DistanceKm(a, b ID) float64 {
	if a == b {
		return 0
	}
	return h3.GreatCircleDistanceKm(a.cell().LatLng(), b.cell().LatLng())
}

// Interpolate returns the cell at fraction f of the straight line from a to
// b, at a's resolution. f is clamped to [0, 1].
func Interpolate(a, b ID, f float64) ID {
	switch {
	case f <= 0:
		return a
	case f >= 1:
		return b
	}
	aLat, aLng := a.LatLng()
	bLat, bLng := b.LatLng()
	ll := h3.NewLatLng(aLat+(bLat-aLat)*f, aLng+(bLng-aLng)*f)
	return ID(h3.LatLngToCell(ll, a.Resolution()))
}

// Disk returns every cell within k grid steps of g, g included.
func Disk(g ID, k int) []ID {
	cells := h3.GridDisk(g.cell(), k)
	out := make([]ID, 0, len(cells))
	for _, c := range cells {
		if c == 0 {
			continue
		}
		out = append(out, ID(c))
	}
	return out
}

// EdgeLengthKm is the average hexagon edge length at a resolution.
func EdgeLengthKm(res int) float64 { return h3.HexagonEdgeLengthAvgKm(res) }

// Comparer orders IDs numerically for sorted persistent maps.
type Comparer struct{}

// Compare returns -1, 0 or 1.
func (Comparer) Compare(a, b ID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
