package problem

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileFormatsAgree(t *testing.T) {
	fromCUE, err := LoadFile(filepath.Join("testdata", "cart.cue"))
	require.NoError(t, err)
	fromYAML, err := LoadFile(filepath.Join("testdata", "cart.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "cart", fromCUE.Name)
	assert.Equal(t, 2, fromCUE.Horizon)
	assert.Equal(t, 0.5, fromCUE.LevenbergMarquardt)
	assert.Equal(t, [][]float64{{10, 0}, {0, 10}}, fromCUE.WeightN.Rows)

	a, err := Compile(fromCUE)
	require.NoError(t, err)
	b, err := Compile(fromYAML)
	require.NoError(t, err)

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestLoadCUEAppliesSchemaDefaults(t *testing.T) {
	src := []byte(`problem: {
	horizon: 1
	nx: 1
	nu: 1
	ny: 1
	nyn: 1
	weight: [[1]]
	weight_n: [[1]]
	jx: [[1]]
	ju: [[0]]
	jx_n: [[1]]
}`)
	d, err := LoadCUE(src, "inline.cue")
	require.NoError(t, err)
	assert.Equal(t, "rti", d.Name)
	assert.Equal(t, 0, d.NOD)
	assert.False(t, d.VariableWeighting)
	assert.Nil(t, d.Cross)
}

func TestLoadCUERejectsSchemaViolation(t *testing.T) {
	_, err := LoadFile(filepath.Join("testdata", "invalid.cue"))
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Error(), "invalid.cue")
}

func TestLoadCUEMissingProblem(t *testing.T) {
	_, err := LoadCUE([]byte(`other: 1`), "x.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"problem"`)
}

func TestLoadYAMLRejectsUnknownFields(t *testing.T) {
	_, err := LoadFile(filepath.Join("testdata", "typo.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wieght")
}

func TestLoadYAMLVariableBlocks(t *testing.T) {
	d, err := LoadFile(filepath.Join("testdata", "variable.yaml"))
	require.NoError(t, err)
	require.NotNil(t, d.Weight)
	assert.True(t, d.Weight.Variable)
	assert.True(t, d.Jx.Variable)
	assert.False(t, d.Ju.Variable)
	require.NotNil(t, d.Bounds.Control)
	assert.Len(t, d.Bounds.Control.Stages, 3)
}

func TestMatrixRejectsUnknownKeyword(t *testing.T) {
	_, err := LoadYAML([]byte("horizon: 1\nweight: dynamic\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dynamic")

	var m Matrix
	assert.Error(t, m.UnmarshalJSON([]byte(`"dynamic"`)))
	require.NoError(t, m.UnmarshalJSON([]byte(`"variable"`)))
	assert.True(t, m.Variable)
}

func TestLoadFileUnsupportedExtension(t *testing.T) {
	_, err := LoadFile(filepath.Join("testdata", "cart.json"))
	require.Error(t, err)
}
