package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/rtigen/internal/ir"
	"github.com/roach88/rtigen/internal/problem"
	"github.com/roach88/rtigen/internal/specializer"
)

// Run executes a scenario and returns the result.
//
// The returned error covers infrastructure problems only (an unreadable
// descriptor file). Generation failures and assertion mismatches are
// reported through Result.
func Run(scenario *Scenario) (*Result, error) {
	d := scenario.Problem
	if d == nil {
		var err error
		d, err = problem.LoadFile(scenario.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("load descriptor: %w", err)
		}
	}

	result := NewResult()
	prog, err := generate(d, scenario.Options)
	if err != nil {
		result.Failures = classify(err)
		if len(result.Failures) == 0 {
			return nil, fmt.Errorf("generation failed without an error code: %w", err)
		}
	}
	result.Program = prog

	if scenario.Expect != nil {
		checkExpectedFailure(scenario.Expect, result)
		return result, nil
	}
	if prog == nil {
		for _, f := range result.Failures {
			result.AddError(fmt.Sprintf("unexpected generation failure: [%s] %s", f.Code, f.Message))
		}
		return result, nil
	}

	for _, msg := range EvaluateAssertions(prog, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func generate(d *problem.Descriptor, opts Options) (*ir.Program, error) {
	shape, err := problem.Compile(d)
	if err != nil {
		return nil, err
	}
	genOpts := []specializer.Option{
		specializer.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		specializer.WithOpenMP(opts.OpenMP),
	}
	if opts.Prefix != "" {
		genOpts = append(genOpts, specializer.WithPrefix(opts.Prefix))
	}
	if opts.Backend != "" {
		genOpts = append(genOpts, specializer.WithBackend(opts.Backend))
	}
	return specializer.New(genOpts...).Generate(shape)
}

// classify extracts the coded failures from a generation error.
func classify(err error) []Failure {
	var verrs problem.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]Failure, len(verrs))
		for i, v := range verrs {
			out[i] = Failure{Code: v.Code, Component: v.Field, Message: v.Message}
		}
		return out
	}
	var cfg *ir.ConfigurationError
	if errors.As(err, &cfg) {
		return []Failure{{Code: cfg.Code(), Component: cfg.Component, Message: cfg.Message}}
	}
	var coded ir.Coded
	if errors.As(err, &coded) {
		return []Failure{{Code: coded.Code(), Message: coded.Error()}}
	}
	return nil
}

func checkExpectedFailure(want *ExpectClause, result *Result) {
	if result.Program != nil {
		result.AddError(fmt.Sprintf("expected error %s, generation succeeded", want.Error))
		return
	}
	for _, f := range result.Failures {
		if f.Code == want.Error && (want.Component == "" || f.Component == want.Component) {
			return
		}
	}
	got := make([]string, len(result.Failures))
	for i, f := range result.Failures {
		got[i] = fmt.Sprintf("%s(%s)", f.Code, f.Component)
	}
	if want.Component != "" {
		result.AddError(fmt.Sprintf("expected error %s(%s), got %v", want.Error, want.Component, got))
		return
	}
	result.AddError(fmt.Sprintf("expected error %s, got %v", want.Error, got))
}
