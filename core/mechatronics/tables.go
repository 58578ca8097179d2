package mechatronics

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// SpeedPoint is one row of a powertrain table: energy per distance at a
// speed, normalized so that the nominal consumption scales it.
type SpeedPoint struct {
	SpeedMph          float64 `json:"speed" yaml:"speed"`
	EnergyPerDistance float64 `json:"energy_per_distance" yaml:"energy_per_distance"`
}

// PowerPoint is one row of a powercurve table: charge power (as a fraction of
// the nominal maximum) at a state of charge.
type PowerPoint struct {
	SOC   float64 `json:"energy_kwh" yaml:"energy_kwh"`
	Power float64 `json:"power_kw" yaml:"power_kw"`
}

// DefaultPowertrain is a normalized consumption curve for a compact BEV.
var DefaultPowertrain = []SpeedPoint{
	{1, 1.90}, {10, 1.25}, {20, 1.04}, {30, 0.96}, {40, 0.95},
	{50, 0.99}, {60, 1.07}, {70, 1.18}, {80, 1.32},
}

// DefaultPowercurve tapers charging power above 80% state of charge.
var DefaultPowercurve = []PowerPoint{
	{0, 1}, {0.5, 1}, {0.8, 0.85}, {0.9, 0.45}, {0.95, 0.25}, {1, 0.1},
}

// table is a piecewise-linear lookup with constant extrapolation.
type table struct {
	pl interp.PiecewiseLinear
}

func newTable(xs, ys []float64) (*table, error) {
	if len(xs) < 2 || len(xs) != len(ys) {
		return nil, fmt.Errorf("lookup table needs at least two rows, got %d", len(xs))
	}
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	sx := make([]float64, len(xs))
	sy := make([]float64, len(ys))
	for i, j := range idx {
		sx[i], sy[i] = xs[j], ys[j]
		if i > 0 && sx[i] == sx[i-1] {
			return nil, fmt.Errorf("lookup table has duplicate key %v", sx[i])
		}
	}
	t := &table{}
	if err := t.pl.Fit(sx, sy); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *table) at(x float64) float64 { return t.pl.Predict(x) }

func powertrainTable(points []SpeedPoint, scale float64) (*table, error) {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.SpeedMph
		ys[i] = p.EnergyPerDistance * scale
	}
	return newTable(xs, ys)
}

func powercurveTable(points []PowerPoint, capacityKWh, maxKW float64) (*table, error) {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.SOC * capacityKWh
		ys[i] = p.Power * maxKW
	}
	return newTable(xs, ys)
}
