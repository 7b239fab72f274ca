package problem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileDefaults(t *testing.T) {
	s, err := Compile(validDescriptor())
	require.NoError(t, err)

	require.True(t, s.Cross.IsGiven())
	assert.True(t, s.Cross.IsZero())
	r, c := s.Cross.Given.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 1, c)

	require.Len(t, s.StateBounds.Lower, 3)
	require.Len(t, s.ControlBounds.Upper, 2)
	assert.Equal(t, []float64{-Unbounded, -Unbounded}, s.StateBounds.Lower[2])
	assert.Equal(t, []float64{Unbounded}, s.ControlBounds.Upper[0])
}

func TestCompileBlocks(t *testing.T) {
	d := validDescriptor()
	d.Jx = &Matrix{Variable: true}
	d.Weight = &Matrix{Rows: [][]float64{{2, 1}, {1, 3}}}
	s, err := Compile(d)
	require.NoError(t, err)

	assert.False(t, s.Jx.IsGiven())
	require.True(t, s.Weight.IsGiven())
	assert.Equal(t, 1.0, s.Weight.Given.At(0, 1))
	assert.Equal(t, 3.0, s.Weight.Given.At(1, 1))
	assert.False(t, s.Weight.IsZero())
	assert.False(t, s.Jx.IsZero())
}

func TestCompilePerStageBounds(t *testing.T) {
	d := validDescriptor()
	d.Bounds.Control = &BoxSpec{
		Lower: []float64{-9}, Upper: []float64{9},
		Stages: []StageBox{
			{Lower: []float64{-2}, Upper: []float64{2}},
			{Lower: []float64{-1}, Upper: []float64{1}},
		},
	}
	s, err := Compile(d)
	require.NoError(t, err)
	assert.Equal(t, []float64{-2}, s.ControlBounds.Lower[0])
	assert.Equal(t, []float64{1}, s.ControlBounds.Upper[1])
}

func TestCompileBoundsAreCopied(t *testing.T) {
	d := validDescriptor()
	lower := []float64{-1, -1}
	d.Bounds.State = &BoxSpec{Lower: lower}
	s, err := Compile(d)
	require.NoError(t, err)

	lower[0] = 5
	assert.Equal(t, -1.0, s.StateBounds.Lower[0][0])
	assert.Equal(t, Unbounded, s.StateBounds.Upper[1][0])
}

func TestShapeHash(t *testing.T) {
	a, err := Compile(validDescriptor())
	require.NoError(t, err)
	b, err := Compile(validDescriptor())
	require.NoError(t, err)

	d := validDescriptor()
	d.LevenbergMarquardt = 0.5
	c, err := Compile(d)
	require.NoError(t, err)

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	hc, err := c.Hash()
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.NotEqual(t, ha, hc)
}

func TestOmittedCrossEqualsExplicitZero(t *testing.T) {
	a, err := Compile(validDescriptor())
	require.NoError(t, err)
	d := validDescriptor()
	d.Cross = zeros(2, 1)
	b, err := Compile(d)
	require.NoError(t, err)

	ha, _ := a.Hash()
	hb, _ := b.Hash()
	assert.Equal(t, ha, hb)
}
