// Package sim defines the data model for a participant's run through the
// four-Act narrative: the SimulationState snapshot, the events it is folded
// from, and the fixed per-Act decision codes.
//
// # Nullable fields
//
// The wire format carries null for an absent session id, decision or derived
// branch. In Go those fields are plain strings and the empty string means
// absent; the JSON methods in this package translate between the two.
//
// # Source of truth
//
// State.Events is the append-only log. Decisions and Derived are a
// materialized view over it and are only ever produced by folding events
// (see package rebuild), never set directly by callers.
package sim
