// Package store provides a SQLite-backed journal of circuit lifecycle events.
//
// The journal is append-only. Each circuit contributes at most one "created"
// and one "evicted" row:
//   - UNIQUE(circuit_id, event) makes repeated writes no-ops
//   - rows are ordered by seq (insertion order), never by timestamp
//
// A circuit with a "created" row and no "evicted" row was live when the
// process last stopped. Such orphans are closed with reason "restart" at
// startup.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
