// Package store provides SQLite-backed durable storage for lesson run
// traces.
//
// The store implements an append-only log with:
//   - Runs: one record per executed lesson scenario
//   - Steps: the operation each scenario step performed
//   - Outcomes: the result each step produced ("ok" or "violation")
//
// # Conventions
//
// Idempotent writes
//   - Every insert uses ON CONFLICT DO NOTHING
//   - Re-recording a run with the same token leaves the log unchanged
//
// Logical identity and time
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - Enables deterministic replay regardless of wall time
//
// Deterministic query results
//   - All queries include: ORDER BY seq ASC, id COLLATE BINARY ASC
//   - Ensures identical results across replays
//
// One outcome per step
//   - UNIQUE(step_id) constraint on outcomes
//   - A step either succeeded or tripped a violation, never both
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// All content-addressed IDs are computed via functions in
// internal/trace/hash.go using RFC 8785 canonical JSON and SHA-256
// with domain separation.
package store
