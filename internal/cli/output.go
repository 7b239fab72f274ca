package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rtigen/internal/ir"
	"github.com/roach88/rtigen/internal/problem"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Validation or scenario failure
	ExitCommandError = 2 // Command error (unreadable descriptor, rejected problem, write failure, etc.)
)

// CLI-level error codes. Descriptor and generation errors keep their own
// codes (E1xx from the problem package, E2xx from generation).
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeLoadFailed  = "E004" // Descriptor could not be read or decoded
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeWriteFailed = "E007" // Output directory write error
	ErrCodeLedger      = "E008" // Generation ledger error
)

// ExitError ends a command with a specific process exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err. Errors without one
// exit with ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	default:
		return ExitFailure
	}
}

// Problem is one reported failure. Field is the descriptor path of a
// validation problem.
type Problem struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (p Problem) String() string { return p.Code + ": " + p.text() }

// text is the message qualified by the field, if any.
func (p Problem) text() string {
	if p.Field == "" {
		return p.Message
	}
	return p.Field + ": " + p.Message
}

// stageError carries the error code of the pipeline stage that failed.
type stageError struct {
	code    string
	message string
	err     error
}

func (e *stageError) Error() string { return fmt.Sprintf("%s: %v", e.message, e.err) }
func (e *stageError) Unwrap() error { return e.err }

// problemsOf flattens a pipeline error into reported problems. A
// descriptor validation failure reports every offending field.
func problemsOf(err error) []Problem {
	var verrs problem.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		out := make([]Problem, len(verrs))
		for i, v := range verrs {
			out[i] = Problem{Code: v.Code, Field: v.Field, Message: v.Message}
		}
		return out
	}
	var coded ir.Coded
	if errors.As(err, &coded) {
		return []Problem{{Code: coded.Code(), Message: coded.Error()}}
	}
	var se *stageError
	if errors.As(err, &se) {
		return []Problem{{Code: se.code, Message: se.Error()}}
	}
	return []Problem{{Code: ErrCodeGeneric, Message: err.Error()}}
}

// Response is the envelope written by every command under --format json.
type Response struct {
	Status   string    `json:"status"` // "ok" or "error"
	Data     any       `json:"data,omitempty"`
	Problems []Problem `json:"problems,omitempty"`
}

// OutputFormatter writes command results as text or as a JSON Response.
// Diagnostics go to ErrWriter so that stdout stays machine-readable.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// JSON reports whether results are written as a JSON Response.
func (f *OutputFormatter) JSON() bool { return f.Format == "json" }

// Success writes data. Text output prints it with its default format.
func (f *OutputFormatter) Success(data any) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Report writes problems, one line each in text output.
func (f *OutputFormatter) Report(problems ...Problem) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "error", Problems: problems})
	}
	for _, p := range problems {
		if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", p.Code, p.text()); err != nil {
			return err
		}
	}
	return nil
}

// Note writes a diagnostic line when verbose output is on.
func (f *OutputFormatter) Note(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.Diagnostics(), format+"\n", args...)
	}
}

// Diagnostics returns the writer for progress and diagnostic text.
func (f *OutputFormatter) Diagnostics() io.Writer {
	if f.ErrWriter == nil {
		return f.Writer
	}
	return f.ErrWriter
}
