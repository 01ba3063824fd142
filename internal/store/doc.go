// Package store provides SQLite-backed durable storage for simulation
// sessions on the server side.
//
// Two tables:
//   - simulation_states: the latest snapshot pushed for each session
//   - simulation_events: the union of every event ever pushed for a session
//
// # Critical Patterns
//
// Snapshot upsert, last write wins
//   - A push replaces the stored snapshot unless its digest is unchanged
//   - Identical pushes are no-ops, so clients may retry freely
//
// Event log, append only
//   - Events are keyed by their content-addressed id within a session
//   - ON CONFLICT DO NOTHING makes re-pushing a known event harmless
//   - Events first seen in different pushes are all kept, so the log can
//     be refolded into a merged state that no single client pushed
//
// Deterministic ordering
//   - Events are read ORDER BY ts_nanos ASC, seq ASC
//   - seq is a per-session logical clock assigned at first insert
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Event ids and snapshot digests come from package canonical.
package store
