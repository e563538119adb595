// Package store provides durable local storage for chatsync.
//
// Two backends are available:
//   - Store: SQLite (WAL mode) key-value table, scoped by a namespace.
//     Holds the persisted client identity and, for the history server,
//     the snapshot blob.
//   - PebbleStore: a Pebble LSM holding snapshot blobs, for history
//     servers that prefer an embedded log-structured store.
//
// Both satisfy BlobStore, which is all the history server needs.
//
// # Versioning
//
// Every overwrite of a kv row bumps its version counter. Versions are
// logical; timestamps are never stored.
package store
