package specializer

import "log/slog"

// DefaultPrefix is the default symbol prefix of generated code.
const DefaultPrefix = "rti"

// DefaultBackend is the QP solver backend used when none is named.
const DefaultBackend = "hpmpc"

// Options configures one generation run.
type Options struct {
	// Prefix is prepended to external symbol names and asset file names.
	Prefix string
	// OpenMP marks the stage objective loop as parallel.
	OpenMP bool
	// Backend names the QP solver backend.
	Backend string
}

// Option configures a Generator.
type Option func(*Generator)

// WithPrefix sets the symbol prefix.
func WithPrefix(prefix string) Option {
	return func(g *Generator) {
		g.opts.Prefix = prefix
	}
}

// WithOpenMP enables the parallel-loop hint on the stage objective loop.
func WithOpenMP(enabled bool) Option {
	return func(g *Generator) {
		g.opts.OpenMP = enabled
	}
}

// WithBackend selects the QP solver backend by name.
func WithBackend(name string) Option {
	return func(g *Generator) {
		g.opts.Backend = name
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}
