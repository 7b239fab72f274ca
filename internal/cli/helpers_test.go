package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const cartYAML = `name: cart
horizon: 2
nx: 2
nu: 1
ny: 2
nyn: 2
levenberg_marquardt: 0.5
weight: [[1, 0], [0, 1]]
weight_n: [[10, 0], [0, 10]]
jx: [[1, 0], [0, 0]]
ju: [[0], [1]]
jx_n: [[1, 0], [0, 1]]
bounds:
  state:
    lower: [-1, -1]
    upper: [1, 1]
  control:
    lower: [-1]
    upper: [1]
`

const badBoundsYAML = `name: cart
horizon: 2
nx: 2
nu: 1
ny: 2
nyn: 2
weight: [[1, 0], [0, 1]]
weight_n: [[1, 0], [0, 1]]
jx: [[1, 0], [0, 1]]
ju: [[0], [1]]
jx_n: [[1, 0], [0, 1]]
bounds:
  state:
    lower: [-1]
`

const crossYAML = `name: coupled
horizon: 2
nx: 2
nu: 1
ny: 2
nyn: 2
weight: [[1, 0], [0, 1]]
weight_n: [[1, 0], [0, 1]]
jx: [[1, 0], [0, 1]]
ju: [[0], [1]]
jx_n: [[1, 0], [0, 1]]
cross: [[0.5], [0]]
`

func writeDescriptor(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns stdout, stderr and
// the command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
