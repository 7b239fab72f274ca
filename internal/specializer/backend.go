package specializer

import (
	"fmt"
	"sort"

	"github.com/roach88/rtigen/internal/ir"
)

// Backend builds the solver-specific parts of an RTI program. The
// Generator calls the steps in declaration order on one Generation.
//
// BuildObjectiveEvaluation must set g.EvaluateObjective,
// BuildConstraintEvaluation must set g.EvaluateConstraints and
// BuildQPAssembly must set g.Initialize. BuildFeedbackCall fills the body
// of the feedback function, which already exists.
type Backend interface {
	Name() string
	BuildObjectiveEvaluation(g *Generation) error
	BuildConstraintEvaluation(g *Generation) error
	BuildQPAssembly(g *Generation) error
	BuildFeedbackCall(g *Generation, feedback *ir.Function) error
}

var backends = map[string]Backend{
	"hpmpc": HPMPC{},
}

// Lookup returns the backend registered under name.
func Lookup(name string) (Backend, error) {
	b, ok := backends[name]
	if !ok {
		return nil, &ir.ConfigurationError{
			Component: "backend",
			Message:   fmt.Sprintf("unknown QP solver backend %q (available: %v)", name, Backends()),
		}
	}
	return b, nil
}

// Backends lists the registered backend names, sorted.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
