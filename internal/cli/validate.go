package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/rtigen/internal/ir"
	"github.com/roach88/rtigen/internal/problem"
	"github.com/roach88/rtigen/internal/specializer"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Backend string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                      `json:"valid"`
	Problem string                    `json:"problem,omitempty"`
	Hash    string                    `json:"hash,omitempty"`
	Errors  []problem.ValidationError `json:"errors,omitempty"`

	// Backend is set when the descriptor is well-formed but the backend
	// cannot specialize it.
	Backend *Problem `json:"backend,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <descriptor>",
		Short: "Validate a problem descriptor without writing files",
		Long: `Validate a CUE or YAML problem descriptor.

Checks dimensions, block shapes and bounds, then runs the selected
backend's specialization in memory so that unsupported structure (for
example a nonzero cross weighting) is reported before generation.

Exit codes:
  0 - Descriptor is valid
  1 - Descriptor is invalid or unsupported by the backend
  2 - Descriptor could not be read`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Backend, "backend", specializer.DefaultBackend, "QP solver backend")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(path); err != nil {
		formatter.Report(Problem{Code: ErrCodeNotFound, Message: fmt.Sprintf("descriptor not found: %s", path)})
		return WrapExitError(ExitCommandError, "descriptor not found", err)
	}
	d, err := problem.LoadFile(path)
	if err != nil {
		formatter.Report(Problem{Code: ErrCodeLoadFailed, Message: err.Error()})
		return WrapExitError(ExitCommandError, "loading descriptor", err)
	}
	formatter.Note("Loaded descriptor %s", path)

	result := ValidationResult{Problem: d.Name}
	if errs := problem.Validate(d); len(errs) > 0 {
		result.Errors = errs
		return outputValidationResult(formatter, result)
	}

	shape, err := problem.Compile(d)
	if err != nil {
		return WrapExitError(ExitCommandError, "compiling descriptor", err)
	}
	if result.Hash, err = shape.Hash(); err != nil {
		return WrapExitError(ExitCommandError, "hashing descriptor", err)
	}

	formatter.Note("Specializing for backend %s", opts.Backend)
	_, err = specializer.New(
		specializer.WithBackend(opts.Backend),
		specializer.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())),
	).Generate(shape)
	if err != nil {
		var coded ir.Coded
		if !errors.As(err, &coded) {
			return WrapExitError(ExitCommandError, "specializing descriptor", err)
		}
		result.Backend = &Problem{Code: coded.Code(), Message: coded.Error()}
		return outputValidationResult(formatter, result)
	}

	result.Valid = true
	return outputValidationResult(formatter, result)
}

func outputValidationResult(formatter *OutputFormatter, result ValidationResult) error {
	var exit error
	if !result.Valid {
		exit = NewExitError(ExitFailure, "descriptor is invalid")
	}

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
		return exit
	}

	w := formatter.Writer
	if result.Valid {
		fmt.Fprintf(w, "✓ %s is valid\n", result.Problem)
		fmt.Fprintf(w, "  hash: %s\n", result.Hash)
		return nil
	}

	fmt.Fprintf(w, "✗ %s is invalid\n\n", result.Problem)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s: %s: %s\n", e.Code, e.Field, e.Message)
	}
	if result.Backend != nil {
		fmt.Fprintf(w, "  %s\n", result.Backend.Message)
	}
	return exit
}
