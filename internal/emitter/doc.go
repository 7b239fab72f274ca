// Package emitter renders a validated ir.Program as C source.
//
// The output is two texts: a declarations header (the interface-input and
// workspace structs plus the exported prototypes) and a definitions source
// (extern forward declarations, constant tables and every function in
// definition order). Matrix statements are expanded element by element;
// given factors are folded into literals and zero terms are dropped.
//
// Emission is a pure function of the program and the options: the same
// input always yields byte-identical output.
package emitter
