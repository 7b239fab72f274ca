// Package export writes an emitted program to disk: the declarations
// header, the definitions source and the interface shims the program
// requested. Writes into one output directory are serialized by an
// advisory file lock, so concurrent generators never interleave files.
package export
