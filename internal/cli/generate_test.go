package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rtigen/internal/problem"
	"github.com/roach88/rtigen/internal/store"
	"github.com/roach88/rtigen/internal/testutil"
)

type generateResponse struct {
	Status   string         `json:"status"`
	Data     GenerateResult `json:"data"`
	Problems []Problem      `json:"problems"`
}

func TestGenerate_WritesSolver(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "cart.yaml", cartYAML)
	out := filepath.Join(dir, "gen")

	stdout, _, err := execute(t, "generate", path, "--out", out)
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ Generated cart solver in "+out)
	for _, name := range []string{"rti_solver.h", "rti_solver.c", "rti_hpmpc_interface.c"} {
		assert.FileExists(t, filepath.Join(out, name))
		assert.Contains(t, stdout, name)
	}
	assert.NotContains(t, stdout, "Recorded run")
}

func TestGenerate_JSON(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "cart.yaml", cartYAML)

	stdout, _, err := execute(t, "generate", path, "--out", dir, "--prefix", "cart", "--format", "json")
	require.NoError(t, err)

	var resp generateResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "cart", resp.Data.Problem)
	assert.Len(t, resp.Data.DescriptorHash, 64)
	assert.Len(t, resp.Data.ProgramHash, 64)
	require.Len(t, resp.Data.Files, 3)
	assert.Equal(t, "cart_solver.h", resp.Data.Files[0].Path)
	assert.Equal(t, "cart_hpmpc_interface.c", resp.Data.Files[2].Path)

	src, err := os.ReadFile(filepath.Join(dir, "cart_solver.c"))
	require.NoError(t, err)
	assert.Contains(t, string(src), "int cart_feedbackStep( void )")
}

func TestGenerate_LedgerRecordsRuns(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "cart.yaml", cartYAML)
	ledger := filepath.Join(dir, "rtigen.db")

	var results []GenerateResult
	for i := 0; i < 2; i++ {
		stdout, _, err := execute(t, "generate", path, "--out", dir, "--ledger", ledger, "--format", "json")
		require.NoError(t, err)
		var resp generateResponse
		require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
		results = append(results, resp.Data)
	}

	assert.Equal(t, int64(1), results[0].Seq)
	assert.Equal(t, int64(2), results[1].Seq)
	assert.NotEqual(t, results[0].RunID, results[1].RunID)
	assert.Equal(t, results[0].ProgramHash, results[1].ProgramHash, "generation is reproducible")
	assert.False(t, results[1].Drift)

	st, err := store.Open(ledger)
	require.NoError(t, err)
	defer st.Close()
	run, err := st.GetRun(context.Background(), results[1].RunID)
	require.NoError(t, err)
	assert.Equal(t, "hpmpc", run.Backend)
	assert.Len(t, run.Artifacts, 3)
}

func TestGenerate_DetectsDrift(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "cart.yaml", cartYAML)
	opts := &GenerateOptions{
		RootOptions: &RootOptions{Format: "text"},
		Out:         dir,
		Ledger:      filepath.Join(dir, "rtigen.db"),
		Prefix:      "rti",
		Backend:     "hpmpc",
		IDs:         testutil.NewSequentialIDGenerator("run"),
		Clock:       testutil.NewDeterministicClock().Now,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	first, err := generateOnce(ctx, opts, path, logger)
	require.NoError(t, err)
	assert.Equal(t, "run-0001", first.RunID)

	// An earlier tool version produced different text for the same inputs.
	st, err := store.Open(opts.Ledger)
	require.NoError(t, err)
	_, err = st.RecordRun(ctx, store.Run{
		ID:             "stale",
		Problem:        "cart",
		DescriptorHash: first.DescriptorHash,
		ProgramHash:    "0000",
		Backend:        "hpmpc",
		Prefix:         "rti",
		OutDir:         dir,
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	second, err := generateOnce(ctx, opts, path, logger)
	require.NoError(t, err)
	assert.True(t, second.Drift)
	assert.Equal(t, int64(3), second.Seq)
}

func TestGenerate_InvalidDescriptor(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "bad.yaml", badBoundsYAML)

	stdout, _, err := execute(t, "generate", path, "--out", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "✗ Generation failed")
	assert.Contains(t, stdout, "E105: bounds.state.lower")
	assert.NoFileExists(t, filepath.Join(dir, "rti_solver.c"))
}

func TestGenerate_CrossTermRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "coupled.yaml", crossYAML)

	stdout, _, err := execute(t, "generate", path, "--out", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp generateResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Problems, 1)
	assert.Equal(t, "E201", resp.Problems[0].Code)
	assert.Contains(t, resp.Problems[0].Message, "mixed control-state terms")
}

func TestGenerate_MissingDescriptor(t *testing.T) {
	stdout, _, err := execute(t, "generate", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "E005")
}

func TestGenerate_UnknownBackend(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "cart.yaml", cartYAML)

	stdout, _, err := execute(t, "generate", path, "--out", dir, "--backend", "qpoases")
	require.Error(t, err)
	assert.Contains(t, stdout, "E201")
	assert.Contains(t, stdout, "unknown QP solver backend")
}

func TestInputHash_CoversOptions(t *testing.T) {
	shape := testutil.CartShape(t)
	base := &GenerateOptions{Prefix: "rti", Backend: "hpmpc"}

	h, err := inputHash(shape, base)
	require.NoError(t, err)
	again, err := inputHash(shape, &GenerateOptions{Prefix: "rti", Backend: "hpmpc"})
	require.NoError(t, err)
	assert.Equal(t, h, again)

	for _, opts := range []*GenerateOptions{
		{Prefix: "cart", Backend: "hpmpc"},
		{Prefix: "rti", Backend: "hpmpc", OpenMP: true},
		{Prefix: "rti", Backend: "hpmpc", Unroll: true},
	} {
		other, err := inputHash(shape, opts)
		require.NoError(t, err)
		assert.NotEqual(t, h, other)
	}

	longer, err := problem.Compile(testutil.WithHorizon(3))
	require.NoError(t, err)
	other, err := inputHash(longer, base)
	require.NoError(t, err)
	assert.NotEqual(t, h, other)
}
