package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rtigen/internal/ir"
)

// Snapshot renders the structural outline of a result as canonical JSON:
// the export order, extern arities and assets of a generated program, or
// the failures of a rejected one.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snap := map[string]any{"scenario": scenarioName}

	if result.Program == nil {
		failures := make([]any, len(result.Failures))
		for i, f := range result.Failures {
			entry := map[string]any{"code": f.Code}
			if f.Component != "" {
				entry["component"] = f.Component
			}
			failures[i] = entry
		}
		snap["failures"] = failures
		return ir.MarshalCanonical(snap)
	}

	prog := result.Program
	exports := make([]any, len(prog.Exported))
	for i, f := range prog.Exported {
		exports[i] = f.Name()
	}
	externs := make([]any, len(prog.Externs))
	for i, e := range prog.Externs {
		externs[i] = map[string]any{"name": e.Name, "arity": len(e.Params)}
	}
	assets := make([]any, len(prog.Assets))
	for i, a := range prog.Assets {
		assets[i] = a.Path
	}
	snap["exports"] = exports
	snap["externs"] = externs
	snap["assets"] = assets
	return ir.MarshalCanonical(snap)
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	snap, err := Snapshot(scenario.Name, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snap)

	return result, nil
}
