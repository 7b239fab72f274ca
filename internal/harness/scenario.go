package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rtigen/internal/problem"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Problem is an inline descriptor. Exactly one of Problem and
	// Descriptor is set.
	Problem *problem.Descriptor `yaml:"problem,omitempty"`

	// Descriptor is a path to a .yaml or .cue descriptor, relative to the
	// scenario file.
	Descriptor string `yaml:"descriptor,omitempty"`

	// Options are the generator options for this run.
	Options Options `yaml:"options,omitempty"`

	// Expect, when set, requires generation to fail with the given error.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Assertions validate the generated program. Required unless Expect
	// is set.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Options mirrors the generator options a scenario may set.
type Options struct {
	Prefix  string `yaml:"prefix,omitempty"`
	Backend string `yaml:"backend,omitempty"`
	OpenMP  bool   `yaml:"openmp,omitempty"`
}

// ExpectClause specifies an expected generation failure.
type ExpectClause struct {
	// Error is the expected error code, e.g. "E201" or "E105".
	Error string `yaml:"error"`

	// Component is matched against the failing component (generation
	// errors) or field (descriptor validation errors). Optional.
	Component string `yaml:"component,omitempty"`
}

// Assertion validates one property of the generated program.
type Assertion struct {
	// Type specifies the assertion type:
	// - "exports": exported functions appear exactly in this order
	// - "call_count": Function calls Callee exactly Count times
	// - "loop_trips": the loop over Index in Function runs Trips times
	// - "extern_arity": the extern named Extern takes Count arguments
	// - "operand_size": the operand named Operand is Rows x Cols
	Type string `yaml:"type"`

	Functions []string `yaml:"functions,omitempty"`
	Function  string   `yaml:"function,omitempty"`
	Callee    string   `yaml:"callee,omitempty"`
	Index     string   `yaml:"index,omitempty"`
	Extern    string   `yaml:"extern,omitempty"`
	Operand   string   `yaml:"operand,omitempty"`

	Count int `yaml:"count,omitempty"`
	Trips int `yaml:"trips,omitempty"`
	Rows  int `yaml:"rows,omitempty"`
	Cols  int `yaml:"cols,omitempty"`
}

// Assertion type constants.
const (
	AssertExports     = "exports"
	AssertCallCount   = "call_count"
	AssertLoopTrips   = "loop_trips"
	AssertExternArity = "extern_arity"
	AssertOperandSize = "operand_size"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative Descriptor path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Descriptor != "" && !filepath.IsAbs(scenario.Descriptor) {
		scenario.Descriptor = filepath.Join(filepath.Dir(path), scenario.Descriptor)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Problem == nil && s.Descriptor == "":
		return fmt.Errorf("one of problem or descriptor is required")
	case s.Problem != nil && s.Descriptor != "":
		return fmt.Errorf("problem and descriptor are mutually exclusive")
	}

	if s.Descriptor != "" {
		if _, err := os.Stat(s.Descriptor); os.IsNotExist(err) {
			return fmt.Errorf("descriptor file not found: %s", s.Descriptor)
		}
	}

	if s.Expect != nil {
		if s.Expect.Error == "" {
			return fmt.Errorf("expect: error is required")
		}
		if len(s.Assertions) > 0 {
			return fmt.Errorf("assertions cannot be combined with an expected error")
		}
		return nil
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertExports:
		if len(a.Functions) == 0 {
			return fmt.Errorf("assertions[%d]: functions list is required for exports", index)
		}
	case AssertCallCount:
		if a.Function == "" || a.Callee == "" {
			return fmt.Errorf("assertions[%d]: function and callee are required for call_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for call_count", index)
		}
	case AssertLoopTrips:
		if a.Function == "" || a.Index == "" {
			return fmt.Errorf("assertions[%d]: function and index are required for loop_trips", index)
		}
		if a.Trips < 0 {
			return fmt.Errorf("assertions[%d]: trips must be non-negative for loop_trips", index)
		}
	case AssertExternArity:
		if a.Extern == "" {
			return fmt.Errorf("assertions[%d]: extern is required for extern_arity", index)
		}
	case AssertOperandSize:
		if a.Operand == "" {
			return fmt.Errorf("assertions[%d]: operand is required for operand_size", index)
		}
		if a.Rows <= 0 || a.Cols <= 0 {
			return fmt.Errorf("assertions[%d]: rows and cols must be positive for operand_size", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
