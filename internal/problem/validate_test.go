package problem

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(n int) *Matrix {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		rows[i][i] = 1
	}
	return &Matrix{Rows: rows}
}

func zeros(r, c int) *Matrix {
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = make([]float64, c)
	}
	return &Matrix{Rows: rows}
}

func validDescriptor() *Descriptor {
	return &Descriptor{
		Name: "p", Horizon: 2, NX: 2, NU: 1, NY: 2, NYN: 2,
		Weight: identity(2), WeightN: identity(2),
		Jx: identity(2), Ju: zeros(2, 1), JxN: identity(2),
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Descriptor)
		want   []string
	}{
		{"valid", func(d *Descriptor) {}, nil},
		{"zero_horizon", func(d *Descriptor) { d.Horizon = 0 }, []string{ErrDimension}},
		{"negative_nod", func(d *Descriptor) { d.NOD = -1 }, []string{ErrNegativeNOD}},
		{"negative_lm", func(d *Descriptor) { d.LevenbergMarquardt = -0.1 }, []string{ErrNegativeLM}},
		{"missing_weight", func(d *Descriptor) { d.Weight = nil }, []string{ErrMissingBlock}},
		{"wrong_jx_shape", func(d *Descriptor) { d.Jx = identity(3) }, []string{ErrBlockShape}},
		{"ragged", func(d *Descriptor) { d.Ju = &Matrix{Rows: [][]float64{{1}, {1, 2}}} }, []string{ErrBlockShape}},
		{"nan", func(d *Descriptor) { d.Weight = &Matrix{Rows: [][]float64{{math.NaN(), 0}, {0, 1}}} }, []string{ErrNonFinite}},
		{"variable_weighting_needs_runtime_weight", func(d *Descriptor) { d.VariableWeighting = true }, []string{ErrVariableWeights}},
		{"variable_blocks_ok", func(d *Descriptor) {
			d.Weight = &Matrix{Variable: true}
			d.Jx = &Matrix{Variable: true}
			d.Cross = &Matrix{Variable: true}
			d.VariableWeighting = true
		}, nil},
		{"bound_length", func(d *Descriptor) {
			d.Bounds.State = &BoxSpec{Lower: []float64{-1}}
		}, []string{ErrBoundLength}},
		{"bound_order", func(d *Descriptor) {
			d.Bounds.Control = &BoxSpec{Lower: []float64{2}, Upper: []float64{1}}
		}, []string{ErrBoundOrder}},
		{"stage_count", func(d *Descriptor) {
			d.Bounds.Control = &BoxSpec{Stages: []StageBox{{Lower: []float64{0}, Upper: []float64{1}}}}
		}, []string{ErrBoundLength}},
		{"collects_all", func(d *Descriptor) {
			d.NOD = -1
			d.Weight = nil
			d.LevenbergMarquardt = -1
		}, []string{ErrNegativeNOD, ErrNegativeLM, ErrMissingBlock}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDescriptor()
			tt.mutate(d)
			errs := Validate(d)
			if tt.want == nil {
				assert.Empty(t, errs)
				return
			}
			assert.Equal(t, tt.want, codes(errs))
		})
	}
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "nx", Code: ErrDimension, Message: "must be positive, got 0"}
	assert.Equal(t, "[E101] nx: must be positive, got 0", e.Error())

	_, err := Compile(&Descriptor{})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.NotEmpty(t, verrs)
}
