// Package store provides the SQLite-backed generation ledger.
//
// Every generate command appends one run: the descriptor hash, the hash
// of the emitted program, the backend, the output directory and the files
// written. Runs are append-only and ordered by a logical sequence number,
// never by wall time.
//
// The ledger answers one question the generator cannot answer alone: did
// an identical descriptor previously produce a different program? See
// Store.LatestByDescriptor.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
