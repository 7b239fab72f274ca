// Package testutil holds shared fixtures for tests: problem descriptors,
// a deterministic clock and identifier generators.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rtigen/internal/problem"
)

// Identity returns an n x n identity block.
func Identity(n int) *problem.Matrix {
	return Diag(n, 1)
}

// Diag returns an n x n block with v on the diagonal.
func Diag(n int, v float64) *problem.Matrix {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		rows[i][i] = v
	}
	return &problem.Matrix{Rows: rows}
}

// Rows returns a literal block.
func Rows(rows ...[]float64) *problem.Matrix {
	return &problem.Matrix{Rows: rows}
}

// Runtime returns a block supplied at runtime.
func Runtime() *problem.Matrix {
	return &problem.Matrix{Variable: true}
}

// CartDescriptor is a double integrator with position tracking: N=2,
// NX=2, NU=1, NY=NYN=2, every block given, lambda=0.5 and unit boxes.
func CartDescriptor() *problem.Descriptor {
	return &problem.Descriptor{
		Name:               "cart",
		Horizon:            2,
		NX:                 2,
		NU:                 1,
		NY:                 2,
		NYN:                2,
		LevenbergMarquardt: 0.5,
		Weight:             Identity(2),
		WeightN:            Diag(2, 10),
		Jx:                 Rows([]float64{1, 0}, []float64{0, 0}),
		Ju:                 Rows([]float64{0}, []float64{1}),
		JxN:                Identity(2),
		Cross:              Rows([]float64{0}, []float64{0}),
		Bounds: problem.BoundsSpec{
			State:   &problem.BoxSpec{Lower: []float64{-1, -1}, Upper: []float64{1, 1}},
			Control: &problem.BoxSpec{Lower: []float64{-1}, Upper: []float64{1}},
		},
	}
}

// TrackingDescriptor has per-stage runtime weights, a runtime state
// Jacobian and one online data channel.
func TrackingDescriptor() *problem.Descriptor {
	return &problem.Descriptor{
		Name:              "tracking",
		Horizon:           3,
		NX:                2,
		NU:                1,
		NY:                3,
		NYN:               2,
		NOD:               1,
		VariableWeighting: true,
		Weight:            Runtime(),
		WeightN:           Identity(2),
		Jx:                Runtime(),
		Ju:                Rows([]float64{0}, []float64{0}, []float64{1}),
		JxN:               Identity(2),
	}
}

// WithHorizon returns the cart problem with horizon n.
func WithHorizon(n int) *problem.Descriptor {
	d := CartDescriptor()
	d.Horizon = n
	return d
}

// Compile compiles d and fails the test on validation errors.
func Compile(t testing.TB, d *problem.Descriptor) *problem.Shape {
	t.Helper()
	s, err := problem.Compile(d)
	require.NoError(t, err)
	return s
}

// CartShape returns the compiled cart problem.
func CartShape(t testing.TB) *problem.Shape {
	t.Helper()
	return Compile(t, CartDescriptor())
}
