// Package store provides SQLite-backed durable storage for the solve
// ledger.
//
// The ledger is append-only:
//   - Sessions: one row per session opened by this process
//   - Solves: one row per solved side effect, including its error text
//
// Inserts use ON CONFLICT DO NOTHING, so recording the same open or the
// same solve twice is harmless. Reads are ordered by time and then id so
// listings are stable.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention
//   - foreign_keys=ON
package store
