// Package problem loads, validates and compiles problem descriptors.
//
// A descriptor is the declarative input of one generation run: horizon,
// dimensions, which weighting and Jacobian blocks are fixed at generation
// time, the Levenberg-Marquardt scalar and box bounds. Descriptors are
// written in CUE (checked against the embedded #Problem schema) or YAML.
//
// Compile turns a descriptor into an immutable Shape, the only thing the
// specializer reads.
package problem
