package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <descriptor>",
		Short: "Regenerate the solver whenever the descriptor changes",
		Long: `Generate once, then watch the descriptor and regenerate on every change.

Accepts the same flags as generate. Generation failures are reported and
the watch continues; press Ctrl-C to stop.

Example:
  rtigen watch cart.cue --out ./gen --ledger rtigen.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	addGenerateFlags(cmd, opts)
	return cmd
}

func runWatch(opts *GenerateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	target, err := filepath.Abs(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "resolving descriptor path", err)
	}
	if _, err := os.Stat(target); err != nil {
		return WrapExitError(ExitCommandError, "descriptor not found", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapExitError(ExitCommandError, "starting file watcher", err)
	}
	defer w.Close()

	// Editors often replace the file instead of writing it, so watch the
	// directory and filter on the descriptor's name.
	if err := w.Add(filepath.Dir(target)); err != nil {
		return WrapExitError(ExitCommandError, "watching descriptor directory", err)
	}

	regenerate := func() {
		result, err := generateOnce(ctx, opts, target, logger)
		if err != nil {
			outputGenerateError(formatter, err)
			return
		}
		outputGenerateSuccess(formatter, result)
	}

	regenerate()
	logger.Info("watching descriptor", "path", target)
	if !formatter.JSON() {
		fmt.Fprintf(formatter.Diagnostics(), "Watching %s. Press Ctrl-C to stop.\n", path)
	}

	return watchLoop(ctx, w.Events, w.Errors, target, regenerate, logger)
}

// watchLoop calls regenerate for every write or create of target until
// ctx is done or the watcher closes its channels.
func watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error,
	target string, regenerate func(), logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Debug("descriptor changed", "op", ev.Op.String())
			regenerate()
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "error", err)
		}
	}
}
