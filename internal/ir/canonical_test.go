package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{"nx": 4, "name": "cart", "lambda": 0.5})
	require.NoError(t, err)
	assert.Equal(t, `{"lambda":0.5,"name":"cart","nx":4}`, string(out))
}

func TestMarshalCanonicalFloats(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want string
	}{
		{"integral", 2, "2"},
		{"fraction", 0.1, "0.1"},
		{"large", 1e12, "1e+12"},
		{"negative_zero", math.Copysign(0, -1), "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestMarshalCanonicalRejects(t *testing.T) {
	for _, v := range []any{nil, math.NaN(), math.Inf(1), struct{}{}} {
		_, err := MarshalCanonical(v)
		assert.Error(t, err, "%v", v)
	}
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	out, err := MarshalCanonical("a<b&c")
	require.NoError(t, err)
	assert.Equal(t, `"a<b&c"`, string(out))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	decomposed, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	composed, err := MarshalCanonical("\u00e9")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestDescriptorHash(t *testing.T) {
	a, err := DescriptorHash(map[string]any{"n": 10, "w": []float64{1, 2}})
	require.NoError(t, err)
	b, err := DescriptorHash(map[string]any{"w": []float64{1, 2}, "n": 10})
	require.NoError(t, err)
	c, err := DescriptorHash(map[string]any{"n": 11, "w": []float64{1, 2}})
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSourceHashSeparatesParts(t *testing.T) {
	assert.NotEqual(t, SourceHash([]byte("ab"), []byte("c")), SourceHash([]byte("a"), []byte("bc")))
	assert.Equal(t, SourceHash([]byte("x")), SourceHash([]byte("x")))
}
