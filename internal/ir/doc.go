// Package ir provides the symbolic program representation the generator
// builds and the emitter renders.
//
// The layers, bottom-up:
//   - Operand, Index, Offset: named matrices with a storage class and the
//     affine positions used to address them
//   - Expr: transpose, product, sum, difference, scaling, slicing and
//     reshaping over operands, with generation-time constant folding
//   - Stmt and Node: assignments, calls and extern calls inside blocks,
//     for-loops and functions
//   - Builder and Program: construction with shape/arity/storage checks
//     and the validated result
//
// ir imports nothing internal. Every other internal package imports ir.
//
// Errors are sticky: the first construction failure is recorded on the
// Builder and returned by Builder.Program.
package ir
