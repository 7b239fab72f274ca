package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rtigen/internal/emitter"
	"github.com/roach88/rtigen/internal/export"
	"github.com/roach88/rtigen/internal/ir"
	"github.com/roach88/rtigen/internal/problem"
	"github.com/roach88/rtigen/internal/specializer"
	"github.com/roach88/rtigen/internal/store"
)

// GenerateOptions holds flags for the generate and watch commands.
type GenerateOptions struct {
	*RootOptions
	Out     string // output directory
	Ledger  string // SQLite ledger path, empty to skip recording
	Prefix  string
	Backend string
	OpenMP  bool
	Unroll  bool

	// Ledger identity overrides for tests.
	IDs   store.IDGenerator
	Clock func() time.Time
}

// GenerateResult describes one generation.
type GenerateResult struct {
	Problem        string        `json:"problem"`
	DescriptorHash string        `json:"descriptor_hash"`
	ProgramHash    string        `json:"program_hash"`
	Dir            string        `json:"dir"`
	Files          []export.File `json:"files"`
	RunID          string        `json:"run_id,omitempty"`
	Seq            int64         `json:"seq,omitempty"`

	// Drift is set when the ledger holds an earlier run with identical
	// inputs but a different program.
	Drift bool `json:"drift,omitempty"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate <descriptor>",
		Short: "Generate the C solver for a problem descriptor",
		Long: `Generate the RTI solver for a CUE or YAML problem descriptor.

Writes <prefix>_solver.h, <prefix>_solver.c and the QP solver interface
shim into the output directory. With --ledger, the run is recorded and
compared against the previous run with identical inputs.

Example:
  rtigen generate cart.yaml --out ./gen
  rtigen generate cart.cue --out ./gen --prefix cart --openmp --ledger rtigen.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, args[0], cmd)
		},
	}

	addGenerateFlags(cmd, opts)
	return cmd
}

func addGenerateFlags(cmd *cobra.Command, opts *GenerateOptions) {
	cmd.Flags().StringVarP(&opts.Out, "out", "o", ".", "output directory")
	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "path to the SQLite generation ledger")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", specializer.DefaultPrefix, "symbol and file name prefix")
	cmd.Flags().StringVar(&opts.Backend, "backend", specializer.DefaultBackend, "QP solver backend")
	cmd.Flags().BoolVar(&opts.OpenMP, "openmp", false, "annotate the stage loop for OpenMP")
	cmd.Flags().BoolVar(&opts.Unroll, "unroll", false, "unroll every loop")
}

func runGenerate(opts *GenerateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := generateOnce(ctx, opts, path, logger)
	if err != nil {
		return outputGenerateError(formatter, err)
	}
	return outputGenerateSuccess(formatter, result)
}

// generateOnce runs the whole pipeline: load, compile, specialize, emit,
// write and record.
func generateOnce(ctx context.Context, opts *GenerateOptions, path string, logger *slog.Logger) (*GenerateResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &stageError{code: ErrCodeNotFound, message: "descriptor not found", err: err}
	}
	d, err := problem.LoadFile(path)
	if err != nil {
		return nil, &stageError{code: ErrCodeLoadFailed, message: "loading descriptor", err: err}
	}
	shape, err := problem.Compile(d)
	if err != nil {
		return nil, err
	}
	key, err := inputHash(shape, opts)
	if err != nil {
		return nil, &stageError{code: ErrCodeGeneric, message: "hashing descriptor", err: err}
	}
	logger.Debug("descriptor compiled", "problem", shape.Name, "hash", key)

	prog, err := specializer.New(
		specializer.WithPrefix(opts.Prefix),
		specializer.WithBackend(opts.Backend),
		specializer.WithOpenMP(opts.OpenMP),
		specializer.WithLogger(logger),
	).Generate(shape)
	if err != nil {
		return nil, err
	}

	out, err := emitter.Emit(prog, emitter.WithPrefix(opts.Prefix), emitter.WithUnroll(opts.Unroll))
	if err != nil {
		return nil, &stageError{code: ErrCodeGeneric, message: "emitting program", err: err}
	}

	manifest, err := export.New(opts.Out, export.WithPrefix(opts.Prefix), export.WithLogger(logger)).
		Write(ctx, out, prog.Assets)
	if err != nil {
		return nil, &stageError{code: ErrCodeWriteFailed, message: "writing output", err: err}
	}

	result := &GenerateResult{
		Problem:        shape.Name,
		DescriptorHash: key,
		ProgramHash:    manifest.ProgramHash,
		Dir:            manifest.Dir,
		Files:          manifest.Files,
	}
	if opts.Ledger == "" {
		return result, nil
	}
	if err := record(ctx, opts, result, logger); err != nil {
		return nil, &stageError{code: ErrCodeLedger, message: "recording run", err: err}
	}
	return result, nil
}

// inputHash identifies everything that determines the generated text:
// the compiled problem and the generation options.
func inputHash(shape *problem.Shape, opts *GenerateOptions) (string, error) {
	shapeHash, err := shape.Hash()
	if err != nil {
		return "", err
	}
	return ir.DescriptorHash(map[string]any{
		"shape":   shapeHash,
		"prefix":  opts.Prefix,
		"backend": opts.Backend,
		"openmp":  opts.OpenMP,
		"unroll":  opts.Unroll,
	})
}

func record(ctx context.Context, opts *GenerateOptions, result *GenerateResult, logger *slog.Logger) error {
	var storeOpts []store.Option
	if opts.IDs != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(opts.IDs))
	}
	if opts.Clock != nil {
		storeOpts = append(storeOpts, store.WithClock(opts.Clock))
	}
	st, err := store.Open(opts.Ledger, storeOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing ledger", "error", closeErr)
		}
	}()

	prev, ok, err := st.LatestByDescriptor(ctx, result.DescriptorHash)
	if err != nil {
		return err
	}
	if ok && prev.ProgramHash != result.ProgramHash {
		result.Drift = true
		logger.Warn("generated program differs from an earlier run with identical inputs",
			"previous_run", prev.ID, "previous_hash", prev.ProgramHash, "hash", result.ProgramHash)
	}

	artifacts := make([]store.Artifact, len(result.Files))
	for i, f := range result.Files {
		artifacts[i] = store.Artifact{Path: f.Path, Hash: f.Hash, Size: f.Size}
	}
	run, err := st.RecordRun(ctx, store.Run{
		Problem:        result.Problem,
		DescriptorHash: result.DescriptorHash,
		ProgramHash:    result.ProgramHash,
		Backend:        opts.Backend,
		Prefix:         opts.Prefix,
		OutDir:         result.Dir,
		Artifacts:      artifacts,
	})
	if err != nil {
		return err
	}
	result.RunID = run.ID
	result.Seq = run.Seq
	logger.Debug("run recorded", "id", run.ID, "seq", run.Seq)
	return nil
}

func outputGenerateError(formatter *OutputFormatter, err error) error {
	problems := problemsOf(err)
	if formatter.JSON() {
		if ferr := formatter.Report(problems...); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "generation failed", err)
	}

	fmt.Fprintln(formatter.Writer, "✗ Generation failed")
	fmt.Fprintln(formatter.Writer)
	for _, p := range problems {
		fmt.Fprintf(formatter.Writer, "  %s\n", p)
	}
	return WrapExitError(ExitCommandError, "generation failed", err)
}

func outputGenerateSuccess(formatter *OutputFormatter, result *GenerateResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Generated %s solver in %s\n\n", result.Problem, result.Dir)
	for _, f := range result.Files {
		fmt.Fprintf(w, "  %-28s %8d bytes  %s\n", f.Path, f.Size, f.Hash)
	}
	if result.RunID != "" {
		fmt.Fprintf(w, "\nRecorded run %s (seq %d)\n", result.RunID, result.Seq)
	}
	if result.Drift {
		fmt.Fprintln(w, "⚠ Output differs from an earlier run with identical inputs")
	}
	return nil
}
