package ir

import "fmt"

// Generation error codes (E200-E299)
const (
	ErrCodeConfiguration = "E201" // unsupported problem structure or misuse of the builder
	ErrCodeShape         = "E202" // incompatible operand dimensions
	ErrCodeMutation      = "E203" // write to interface-input or constant storage
	ErrCodeArity         = "E204" // call site does not match the callee signature
	ErrCodeNameConflict  = "E205" // operand or function name declared twice in one scope
)

// ConfigurationError reports a problem structure the generator cannot
// specialize, e.g. a nonzero control/state cross weighting.
type ConfigurationError struct {
	Component string
	Message   string
}

func (e *ConfigurationError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("[%s] %s: %s", ErrCodeConfiguration, e.Component, e.Message)
	}
	return fmt.Sprintf("[%s] %s", ErrCodeConfiguration, e.Message)
}

// Code returns the stable error code.
func (e *ConfigurationError) Code() string { return ErrCodeConfiguration }

// ShapeError reports an operation over incompatible shapes.
type ShapeError struct {
	Op    string
	Left  Shape
	Right Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("[%s] %s: incompatible shapes %s and %s", ErrCodeShape, e.Op, e.Left, e.Right)
}

// Code returns the stable error code.
func (e *ShapeError) Code() string { return ErrCodeShape }

// MutationError reports a write to storage the generated program may not
// modify: an assignment target, a call result, or an argument bound to a
// parameter the callee writes through.
type MutationError struct {
	Operand string
	Class   StorageClass
	Via     string // callee writing through the argument, if any
}

func (e *MutationError) Error() string {
	if e.Via != "" {
		return fmt.Sprintf("[%s] %s writes through %s operand %q", ErrCodeMutation, e.Via, e.Class, e.Operand)
	}
	return fmt.Sprintf("[%s] cannot assign to %s operand %q", ErrCodeMutation, e.Class, e.Operand)
}

// Code returns the stable error code.
func (e *MutationError) Code() string { return ErrCodeMutation }

// ArityError reports a call site whose arguments do not bind the callee's
// parameters positionally.
type ArityError struct {
	Callee  string
	Want    int
	Got     int
	Arg     int    // 0-based argument position, -1 for a count mismatch
	Message string // set when a single argument is at fault
}

func (e *ArityError) Error() string {
	if e.Arg >= 0 {
		return fmt.Sprintf("[%s] call to %s: argument %d: %s", ErrCodeArity, e.Callee, e.Arg, e.Message)
	}
	return fmt.Sprintf("[%s] call to %s: want %d argument(s), got %d", ErrCodeArity, e.Callee, e.Want, e.Got)
}

// Code returns the stable error code.
func (e *ArityError) Code() string { return ErrCodeArity }

// NameConflictError reports a second declaration of a name in one scope.
type NameConflictError struct {
	Name  string
	Scope string
}

func (e *NameConflictError) Error() string {
	return fmt.Sprintf("[%s] %q already declared in %s", ErrCodeNameConflict, e.Name, e.Scope)
}

// Code returns the stable error code.
func (e *NameConflictError) Code() string { return ErrCodeNameConflict }

// Coded is implemented by every generation error.
type Coded interface {
	error
	Code() string
}
