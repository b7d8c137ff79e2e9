// SPDX-License-Identifier: BSD-3-Clause

// Package curve evaluates fan-curve definitions: piecewise-linear graphs,
// min/avg/max mixes of other curves, and two-level Schmitt-trigger
// hysteresis curves. Evaluation is pure and allocation-light so it can run
// once per control on every engine tick.
package curve

import (
	"fmt"
	"math"
	"sort"
)

// Kind identifies how a FanCurve turns temperature into duty percent.
type Kind string

const (
	KindGraph   Kind = "graph"
	KindMix     Kind = "mix"
	KindTrigger Kind = "trigger"
)

// MixFunction aggregates the outputs of the curves a mix curve references.
type MixFunction string

const (
	MixMin MixFunction = "min"
	MixAvg MixFunction = "avg"
	MixMax MixFunction = "max"
)

// Point is a single (temperature, duty) sample of a graph curve.
type Point struct {
	TempC   float64
	Percent int
}

// Curve is a named fan-curve definition. Which fields are meaningful
// depends on Kind:
//   - graph: Points is required, non-empty, sorted by TempC.
//   - mix: Refs names other curves in the same set; Points is empty.
//   - trigger: Points holds exactly two samples, Points[0] is the idle
//     (off) duty and Points[1] is the load (on) duty; OnC/OffC are the
//     Schmitt thresholds.
type Curve struct {
	Name string
	Kind Kind
	Mix  MixFunction
	Refs []string
	// TempSensors lists the hwmon temp input paths a graph curve reads;
	// for a trigger curve it is the single sensor the thresholds compare
	// against. Mix curves leave it empty.
	TempSensors []string
	Points      []Point
	OnC         float64
	OffC        float64
}

// Normalize sorts Points by TempC ascending and removes duplicate X values,
// keeping the highest Y at each X (a deterministic tie-break). It mutates
// and returns the curve's own Points slice.
func (c *Curve) Normalize() []Point {
	if len(c.Points) < 2 {
		return c.Points
	}
	sorted := make([]Point, len(c.Points))
	copy(sorted, c.Points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TempC < sorted[j].TempC })

	out := sorted[:1]
	for _, p := range sorted[1:] {
		last := &out[len(out)-1]
		if p.TempC == last.TempC {
			if p.Percent > last.Percent {
				last.Percent = p.Percent
			}
			continue
		}
		out = append(out, p)
	}
	c.Points = out
	return c.Points
}

// EvalGraph performs clamp-then-linear-interpolation evaluation of a
// piecewise-linear graph curve: temperatures below the first point clamp
// to the first point's percent, temperatures above the last point clamp to
// the last point's percent, and temperatures between two points are
// linearly interpolated. The result is always in [0,100].
func EvalGraph(points []Point, tempC float64) (int, error) {
	if len(points) == 0 {
		return 0, ErrEmptyGraph
	}
	if len(points) == 1 {
		return clampPercent(points[0].Percent), nil
	}

	if tempC <= points[0].TempC {
		return clampPercent(points[0].Percent), nil
	}
	last := points[len(points)-1]
	if tempC >= last.TempC {
		return clampPercent(last.Percent), nil
	}

	for i := 0; i < len(points)-1; i++ {
		a, b := points[i], points[i+1]
		if tempC >= a.TempC && tempC <= b.TempC {
			if b.TempC == a.TempC {
				return clampPercent(b.Percent), nil
			}
			frac := (tempC - a.TempC) / (b.TempC - a.TempC)
			pct := float64(a.Percent) + frac*float64(b.Percent-a.Percent)
			return clampPercent(int(math.Round(pct))), nil
		}
	}
	return clampPercent(last.Percent), nil
}

// EvalMix aggregates a list of input percentages with min, avg, or max.
func EvalMix(fn MixFunction, inputs []int) int {
	if len(inputs) == 0 {
		return 0
	}
	switch fn {
	case MixMin:
		m := inputs[0]
		for _, v := range inputs[1:] {
			if v < m {
				m = v
			}
		}
		return clampPercent(m)
	case MixMax:
		m := inputs[0]
		for _, v := range inputs[1:] {
			if v > m {
				m = v
			}
		}
		return clampPercent(m)
	default: // MixAvg
		sum := 0
		for _, v := range inputs {
			sum += v
		}
		return clampPercent(int(math.Round(float64(sum) / float64(len(inputs)))))
	}
}

// EvalTrigger evaluates a two-level Schmitt-trigger curve. prevOn carries
// the trigger's state from the previous evaluation; isOn is the
// (possibly unchanged) new state, to be threaded into the next call.
func EvalTrigger(c *Curve, tempC float64, prevOn bool) (pct int, isOn bool, err error) {
	if len(c.Points) < 2 {
		return 0, false, fmt.Errorf("%w: trigger curve %q needs idle and load points", ErrEmptyGraph, c.Name)
	}
	if c.OffC > c.OnC {
		return 0, false, fmt.Errorf("%w: curve %q", ErrInvalidTrigger, c.Name)
	}

	isOn = prevOn
	switch {
	case tempC >= c.OnC:
		isOn = true
	case tempC <= c.OffC:
		isOn = false
	}

	if isOn {
		return clampPercent(c.Points[1].Percent), true, nil
	}
	return clampPercent(c.Points[0].Percent), false, nil
}

// ValidateReferences checks that every mix curve's Refs resolve to a known
// curve name and that no cycle exists among mix references. curves is
// keyed by curve name.
func ValidateReferences(curves map[string]*Curve) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(curves))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("%w: %v -> %s", ErrCycle, path, name)
		}
		c, ok := curves[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnresolvedReference, name)
		}
		color[name] = gray
		if c.Kind == KindMix {
			for _, ref := range c.Refs {
				if err := visit(ref, append(path, name)); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}

	for name, c := range curves {
		if c.Kind != KindMix {
			continue
		}
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

func clampPercent(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
