// Package rebuild folds a simulation event log into a State snapshot.
//
// # Replay and Idempotency
//
// Rebuild is a pure function of its inputs. It never reads the wall clock,
// draws randomness or touches the network, so the same event multiset always
// folds to the same snapshot:
//
//	Rebuild(p, s, m, t, E) == Rebuild(p, s, m, t, E')
//
// for any E' that is a reordering of E preserving each event's timestamp.
//
// ## Ordering
//
// Events are stable-sorted by timestamp before folding. Ties keep their
// relative input order, which matters when a log is assembled from a client
// export and a server export (see Merge).
//
// ## Fold rules
//
//	decision     valid code for an undecided Act -> record, advance, re-derive
//	             anything else                   -> recorded only
//	act_started  Act in range and ahead          -> advance currentAct
//	other types  recorded only
//
// currentAct never decreases. Every event, folded or not, is appended to the
// output log so the snapshot keeps the full audit history.
//
// ## Re-folding
//
// The output log is already in fold order, so folding State.Events again
// reproduces the State exactly.
package rebuild
