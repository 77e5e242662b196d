// Package sqlite implements the db.KVDB interface on top of a single SQLite
// table. It matches deployments where the metadata store backing derivation
// records is SQL-based, and doubles as a durable single-file engine for small
// installations.
//
// Entries live in one table keyed by the entry key, with the write index and
// the absolute deadlines as integer columns. Conditional writes (SetEIfUnset)
// and write-index ordering are expressed as UPSERTs with WHERE guards, so the
// atomicity comes from SQLite itself rather than from Go-side locking.
//
// Save/Load are not supported - the database file is the persistent form.
//
// Thread-safety: All KVDB methods are safe for concurrent use. The engine
// enables WAL mode and a busy timeout so concurrent readers do not block
// writers.
package sqlite
