package harness

import "github.com/roach88/rtigen/internal/ir"

// Failure is a coded generation failure.
type Failure struct {
	Code      string `json:"code"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Failures holds the coded errors generation stopped with. A
	// descriptor can fail validation several ways at once.
	Failures []Failure `json:"failures,omitempty"`

	// Program is the generated program, nil when generation failed.
	Program *ir.Program `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
