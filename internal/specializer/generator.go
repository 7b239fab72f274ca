package specializer

import (
	"fmt"
	"log/slog"

	"github.com/roach88/rtigen/internal/ir"
	"github.com/roach88/rtigen/internal/problem"
)

// Generator runs the RTI scheme generation for one backend.
type Generator struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Generator. Options override the defaults: prefix "rti",
// backend "hpmpc", OpenMP off, slog.Default() logger.
func New(opts ...Option) *Generator {
	g := &Generator{
		opts:   Options{Prefix: DefaultPrefix, Backend: DefaultBackend},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Options returns the effective options.
func (gen *Generator) Options() Options { return gen.opts }

// Generate builds the program for shape. Every step either completes or
// fails the whole run; on failure no program is returned.
func (gen *Generator) Generate(shape *problem.Shape) (*ir.Program, error) {
	if shape == nil {
		return nil, &ir.ConfigurationError{Component: "generator", Message: "nil problem shape"}
	}
	if gen.opts.Prefix == "" {
		return nil, &ir.ConfigurationError{Component: "generator", Message: "empty symbol prefix"}
	}
	backend, err := Lookup(gen.opts.Backend)
	if err != nil {
		return nil, err
	}

	log := gen.logger.With("backend", backend.Name(), "problem", shape.Name)
	log.Debug("solver setup initialization", "N", shape.N, "NX", shape.NX, "NU", shape.NU, "NY", shape.NY)

	g := newGeneration(shape, gen.opts)
	steps := []struct {
		name string
		run  func() error
	}{
		{"variables", g.setupVariables},
		{"simulation", g.setupSimulation},
		{"objective", func() error { return backend.BuildObjectiveEvaluation(g) }},
		{"constraints", func() error { return backend.BuildConstraintEvaluation(g) }},
		{"qp assembly", func() error { return backend.BuildQPAssembly(g) }},
		{"evaluation", func() error { return g.setupEvaluation(backend) }},
		{"auxiliary", g.setupAuxiliaryFunctions},
	}
	for _, step := range steps {
		log.Debug("setup step", "step", step.name)
		if err := step.run(); err != nil {
			log.Debug("setup step failed", "step", step.name, "error", err)
			return nil, err
		}
		if err := g.B.Err(); err != nil {
			log.Debug("setup step failed", "step", step.name, "error", err)
			return nil, err
		}
	}
	if err := g.complete(backend); err != nil {
		return nil, err
	}

	g.define()
	prog, err := g.B.Program()
	if err != nil {
		return nil, err
	}
	log.Info("generation complete",
		"functions", len(prog.Functions),
		"operands", len(prog.Globals),
		"assets", len(prog.Assets),
	)
	return prog, nil
}

// complete checks that the backend set every function it owns.
func (g *Generation) complete(backend Backend) error {
	missing := func(name string) error {
		return &ir.ConfigurationError{
			Component: "backend " + backend.Name(),
			Message:   fmt.Sprintf("did not build %s", name),
		}
	}
	switch {
	case g.EvaluateObjective == nil:
		return missing("evaluateObjective")
	case g.EvaluateConstraints == nil:
		return missing("evaluateConstraints")
	case g.Initialize == nil:
		return missing("initialize")
	}
	return nil
}
