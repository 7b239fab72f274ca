package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rtigen/internal/store"
)

func TestHistory_ListsRunsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "cart.yaml", cartYAML)
	ledger := filepath.Join(dir, "rtigen.db")

	_, _, err := execute(t, "generate", path, "--out", dir, "--ledger", ledger)
	require.NoError(t, err)
	_, _, err = execute(t, "generate", path, "--out", dir, "--ledger", ledger, "--prefix", "cart")
	require.NoError(t, err)

	stdout, _, err := execute(t, "history", "--ledger", ledger)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "   2  "), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "   1  "), lines[1])
	assert.Contains(t, lines[0], "cart")
	assert.Contains(t, lines[0], "hpmpc")

	stdout, _, err = execute(t, "history", "--ledger", ledger, "--limit", "1", "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Status string      `json:"status"`
		Data   []store.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, int64(2), resp.Data[0].Seq)
	assert.Equal(t, "cart", resp.Data[0].Prefix)
}

func TestHistory_EmptyLedger(t *testing.T) {
	ledger := filepath.Join(t.TempDir(), "rtigen.db")
	st, err := store.Open(ledger)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	stdout, _, err := execute(t, "history", "--ledger", ledger)
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded.\n", stdout)
}

func TestHistory_MissingLedger(t *testing.T) {
	ledger := filepath.Join(t.TempDir(), "missing.db")

	stdout, _, err := execute(t, "history", "--ledger", ledger)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "E005")
	assert.NoFileExists(t, ledger, "history must not create a ledger")
}

func TestHistory_RequiresLedgerFlag(t *testing.T) {
	_, _, err := execute(t, "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "ledger" not set`)
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortHash("0123456789abcdef"))
	assert.Equal(t, "abc", shortHash("abc"))
}
