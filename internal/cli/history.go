package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rtigen/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Ledger string
	Limit  int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded generation runs",
		Long: `List the runs recorded in a generation ledger, newest first.

Example:
  rtigen history --ledger rtigen.db --limit 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "path to the SQLite generation ledger (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs (0 for all)")
	_ = cmd.MarkFlagRequired("ledger")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	// Opening would create an empty ledger.
	if _, err := os.Stat(opts.Ledger); os.IsNotExist(err) {
		formatter.Report(Problem{Code: ErrCodeNotFound, Message: fmt.Sprintf("ledger not found: %s", opts.Ledger)})
		return NewExitError(ExitCommandError, fmt.Sprintf("ledger not found: %s", opts.Ledger))
	}

	st, err := store.Open(opts.Ledger)
	if err != nil {
		formatter.Report(Problem{Code: ErrCodeLedger, Message: err.Error()})
		return WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		formatter.Report(Problem{Code: ErrCodeLedger, Message: err.Error()})
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if formatter.JSON() {
		return formatter.Success(runs)
	}

	w := formatter.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%4d  %s  %-12s %-8s %s  %s\n",
			r.Seq, r.CreatedAt.Format(time.RFC3339), r.Problem, r.Backend, shortHash(r.ProgramHash), r.OutDir)
	}
	return nil
}

// shortHash keeps the first 12 hex digits of a content hash.
func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}
