// SPDX-License-Identifier: BSD-3-Clause

package curve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGraph() []Point {
	return []Point{
		{TempC: 20, Percent: 0},
		{TempC: 40, Percent: 40},
		{TempC: 60, Percent: 80},
		{TempC: 80, Percent: 100},
	}
}

func TestEvalGraph_SpecScenario(t *testing.T) {
	pts := sampleGraph()
	tests := []struct {
		temp float64
		want int
	}{
		{10, 0},
		{30, 20},
		{50, 60},
		{70, 90},
		{90, 100},
	}
	for _, tt := range tests {
		got, err := EvalGraph(pts, tt.temp)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "temp=%v", tt.temp)
	}
}

func TestEvalGraph_EndpointExtension(t *testing.T) {
	pts := sampleGraph()
	lo, err := EvalGraph(pts, -1000)
	require.NoError(t, err)
	assert.Equal(t, 0, lo)

	hi, err := EvalGraph(pts, 1000)
	require.NoError(t, err)
	assert.Equal(t, 100, hi)
}

func TestEvalGraph_EmptyIsError(t *testing.T) {
	_, err := EvalGraph(nil, 50)
	assert.ErrorIs(t, err, ErrEmptyGraph)
}

func TestEvalGraph_AlwaysClamped(t *testing.T) {
	pts := []Point{{TempC: 0, Percent: 200}, {TempC: 10, Percent: -50}}
	for temp := -50.0; temp <= 60; temp += 5 {
		got, err := EvalGraph(pts, temp)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, 0)
		assert.LessOrEqual(t, got, 100)
	}
}

func TestNormalize_DedupesKeepingHighestY(t *testing.T) {
	c := &Curve{Points: []Point{
		{TempC: 40, Percent: 10},
		{TempC: 20, Percent: 0},
		{TempC: 40, Percent: 55},
	}}
	got := c.Normalize()
	require.Len(t, got, 2)
	assert.Equal(t, Point{TempC: 20, Percent: 0}, got[0])
	assert.Equal(t, Point{TempC: 40, Percent: 55}, got[1])
}

func TestEvalMix(t *testing.T) {
	tests := []struct {
		fn     MixFunction
		inputs []int
		want   int
	}{
		{MixMin, []int{10, 50, 30}, 10},
		{MixMax, []int{10, 50, 30}, 50},
		{MixAvg, []int{10, 50, 30}, 30},
		{MixAvg, []int{1, 2}, 2}, // rounds .5 up
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EvalMix(tt.fn, tt.inputs))
	}
}

func TestEvalTrigger_Hysteresis(t *testing.T) {
	c := &Curve{Name: "trig", OnC: 60, OffC: 50, Points: []Point{{Percent: 20}, {Percent: 90}}}

	pct, on, err := EvalTrigger(c, 40, false)
	require.NoError(t, err)
	assert.False(t, on)
	assert.Equal(t, 20, pct)

	pct, on, err = EvalTrigger(c, 65, on)
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, 90, pct)

	// Between thresholds: retains previous state.
	pct, on, err = EvalTrigger(c, 55, on)
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, 90, pct)

	pct, on, err = EvalTrigger(c, 45, on)
	require.NoError(t, err)
	assert.False(t, on)
	assert.Equal(t, 20, pct)
}

func TestEvalTrigger_InvalidThresholds(t *testing.T) {
	c := &Curve{Name: "bad", OnC: 40, OffC: 50, Points: []Point{{Percent: 0}, {Percent: 100}}}
	_, _, err := EvalTrigger(c, 45, false)
	assert.ErrorIs(t, err, ErrInvalidTrigger)
}

func TestValidateReferences_DetectsCycle(t *testing.T) {
	curves := map[string]*Curve{
		"a": {Name: "a", Kind: KindMix, Refs: []string{"b"}},
		"b": {Name: "b", Kind: KindMix, Refs: []string{"a"}},
	}
	err := ValidateReferences(curves)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestValidateReferences_UnresolvedReference(t *testing.T) {
	curves := map[string]*Curve{
		"a": {Name: "a", Kind: KindMix, Refs: []string{"missing"}},
	}
	err := ValidateReferences(curves)
	assert.ErrorIs(t, err, ErrUnresolvedReference)
}

func TestValidateReferences_AcyclicOK(t *testing.T) {
	curves := map[string]*Curve{
		"cpu": {Name: "cpu", Kind: KindGraph, Points: sampleGraph()},
		"mix": {Name: "mix", Kind: KindMix, Refs: []string{"cpu"}},
	}
	assert.NoError(t, ValidateReferences(curves))
}
