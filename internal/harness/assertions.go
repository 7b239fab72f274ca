package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rtigen/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions runs every assertion against prog and returns the
// failure messages, in assertion order.
func EvaluateAssertions(prog *ir.Program, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertExports:
			err = assertExports(prog, a)
		case AssertCallCount:
			err = assertCallCount(prog, a)
		case AssertLoopTrips:
			err = assertLoopTrips(prog, a)
		case AssertExternArity:
			err = assertExternArity(prog, a)
		case AssertOperandSize:
			err = assertOperandSize(prog, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertExports(prog *ir.Program, a Assertion) error {
	got := make([]string, len(prog.Exported))
	for i, f := range prog.Exported {
		got[i] = f.Name()
	}
	if !slices.Equal(got, a.Functions) {
		return &AssertionError{
			Type:     AssertExports,
			Expected: fmt.Sprintf("%v", a.Functions),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// assertCallCount counts calls of generated functions and externs alike.
func assertCallCount(prog *ir.Program, a Assertion) error {
	f, ok := prog.Function(a.Function)
	if !ok {
		return missingFunction(AssertCallCount, a.Function)
	}
	n := 0
	ir.Walk(f.Body(), func(node ir.Node, _ int) bool {
		switch c := node.(type) {
		case *ir.Call:
			if c.Func.Name() == a.Callee {
				n++
			}
		case *ir.ExternCall:
			if c.Extern.Name == a.Callee {
				n++
			}
		}
		return true
	})
	if n != a.Count {
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%s calls %s %d time(s)", a.Function, a.Callee, a.Count),
			Actual:   fmt.Sprintf("%d call(s)", n),
		}
	}
	return nil
}

// assertLoopTrips checks the first loop over the named index.
func assertLoopTrips(prog *ir.Program, a Assertion) error {
	f, ok := prog.Function(a.Function)
	if !ok {
		return missingFunction(AssertLoopTrips, a.Function)
	}
	var loop *ir.ForLoop
	ir.Walk(f.Body(), func(node ir.Node, _ int) bool {
		if l, ok := node.(*ir.ForLoop); ok && loop == nil && l.Index.Name() == a.Index {
			loop = l
		}
		return loop == nil
	})
	if loop == nil {
		return &AssertionError{
			Type:     AssertLoopTrips,
			Expected: fmt.Sprintf("loop over %s in %s", a.Index, a.Function),
			Actual:   fmt.Sprintf("loop indices %v", ir.LoopIndices(f)),
		}
	}
	if loop.Trips() != a.Trips {
		return &AssertionError{
			Type:     AssertLoopTrips,
			Expected: fmt.Sprintf("%s runs %d trip(s)", a.Index, a.Trips),
			Actual:   fmt.Sprintf("%d trip(s)", loop.Trips()),
		}
	}
	return nil
}

func assertExternArity(prog *ir.Program, a Assertion) error {
	for _, e := range prog.Externs {
		if e.Name != a.Extern {
			continue
		}
		if len(e.Params) != a.Count {
			return &AssertionError{
				Type:     AssertExternArity,
				Expected: fmt.Sprintf("%s takes %d argument(s)", a.Extern, a.Count),
				Actual:   fmt.Sprintf("%d argument(s)", len(e.Params)),
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertExternArity,
		Expected: fmt.Sprintf("extern %s", a.Extern),
		Actual:   "not declared",
	}
}

func assertOperandSize(prog *ir.Program, a Assertion) error {
	for _, op := range prog.Globals {
		if op.Name() != a.Operand {
			continue
		}
		shape := op.Shape()
		if shape.Rows != a.Rows || shape.Cols != a.Cols {
			return &AssertionError{
				Type:     AssertOperandSize,
				Expected: fmt.Sprintf("%s is (%dx%d)", a.Operand, a.Rows, a.Cols),
				Actual:   shape.String(),
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertOperandSize,
		Expected: fmt.Sprintf("operand %s", a.Operand),
		Actual:   "not declared",
	}
}

func missingFunction(typ, name string) error {
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("function %s", name),
		Actual:   "not defined",
	}
}
