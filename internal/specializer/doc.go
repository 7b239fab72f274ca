// Package specializer turns a compiled problem Shape into the IR program
// of one Real-Time Iteration of a Gauss-Newton NMPC scheme.
//
// A Generator drives the run in a fixed order common to every QP solver
// backend:
//
//	variables -> simulation -> objective -> constraints -> QP assembly
//	-> preparation/feedback -> auxiliary functions
//
// The objective, constraint, QP assembly and feedback-call steps are
// delegated to a Backend chosen by name. Generation is synchronous and
// owns its Builder; a failing step aborts the run and no program is
// returned.
package specializer
