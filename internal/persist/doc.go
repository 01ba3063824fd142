// Package persist implements the dual-tier persistence manager.
//
// A Manager owns one participant run. It resolves the run's state from
// the authoritative remote store, falling back to the local cache and
// then to a fresh state, and it records new events by re-running the
// rebuilder over the full log.
//
// Load order:
//
//	ephemeral run:  delete "preview" cache entry -> fresh state
//	session run:    remote fetch -> local cache -> fresh state
//
// After resolution the local cache is always rewritten with the result.
//
// Writes go to the local cache synchronously. Session runs then push the
// new snapshot to the remote store from a detached goroutine. A failed
// push is logged and dropped; there is no retry queue, so the remote
// store may lag the local cache until the next successful push.
package persist
