// Package harness runs conformance scenarios against the generator.
//
// A scenario is a YAML file holding a problem descriptor, generation
// options and the outcome the generator must produce: either a coded
// failure, or a program whose structure satisfies a list of assertions
// (export order, call counts, loop trip counts, extern arity, operand
// sizes).
//
// Scenarios run in-process with a discarded logger. Each run is
// independent and deterministic, so a program summary can be compared
// against a golden file:
//
//	go test ./internal/harness -update
//
// regenerates testdata/golden/*.golden.
package harness
