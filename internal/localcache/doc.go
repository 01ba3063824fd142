// Package localcache provides the client-side key-value tier used by the
// persistence manager: an in-memory map and a single-file SQLite store.
//
// Values are opaque bytes. Decoding, schema validation and the "corrupt
// means absent" rule live in package persist.
package localcache
