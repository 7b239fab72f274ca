package emitter

// DefaultPrefix matches the specializer's default symbol prefix.
const DefaultPrefix = "rti"

// Options configures emission.
type Options struct {
	// Prefix is prepended to function symbols, struct types and file names.
	Prefix string
	// Unroll expands every loop into straight-line code.
	Unroll bool
}

// Option configures Emit.
type Option func(*Options)

// WithPrefix sets the symbol prefix.
func WithPrefix(prefix string) Option {
	return func(o *Options) {
		o.Prefix = prefix
	}
}

// WithUnroll enables loop unrolling.
func WithUnroll(on bool) Option {
	return func(o *Options) {
		o.Unroll = on
	}
}
