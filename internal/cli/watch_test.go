package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchLoop_RegeneratesOnTargetChanges(t *testing.T) {
	events := make(chan fsnotify.Event)
	errs := make(chan error)
	target := "/work/cart.yaml"
	calls := 0
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	done := make(chan error, 1)
	go func() {
		done <- watchLoop(context.Background(), events, errs, target, func() { calls++ }, logger)
	}()

	events <- fsnotify.Event{Name: "/work/other.yaml", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: target, Op: fsnotify.Chmod}
	events <- fsnotify.Event{Name: target, Op: fsnotify.Write}
	errs <- errors.New("queue overflow")
	events <- fsnotify.Event{Name: "/work/./cart.yaml", Op: fsnotify.Create}
	close(events)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not stop after the watcher closed")
	}
	assert.Equal(t, 2, calls)
}

func TestWatchLoop_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, make(chan fsnotify.Event), make(chan error), "/x", func() {
			t.Error("unexpected regeneration")
		}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop ignored cancellation")
	}
}

func TestWatchCommand_MissingDescriptor(t *testing.T) {
	_, _, err := execute(t, "watch", "/does/not/exist.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "descriptor not found")
}

func TestWatchCommand_SharesGenerateFlags(t *testing.T) {
	cmd := NewRootCommand()
	watchCmd, _, err := cmd.Find([]string{"watch"})
	require.NoError(t, err)

	for _, name := range []string{"out", "ledger", "prefix", "backend", "openmp", "unroll"} {
		assert.NotNil(t, watchCmd.Flags().Lookup(name), "flag %s", name)
	}
}
