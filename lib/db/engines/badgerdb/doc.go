// Package badgerdb implements the db.KVDB interface on top of BadgerDB.
// It provides the durable engine option: shared cache tier contents and
// derivation records survive process restarts on a single node.
//
// Entries are stored with a fixed binary header (write index, expiration
// deadline, deletion deadline) in front of the value, so the deadline
// semantics of the db package are enforced on the read path exactly like in
// the in-memory arbor engine. A background sweep physically removes entries
// past their deletion deadline and triggers Badger's value log GC.
//
// Save/Load are not supported - Badger owns its own on-disk representation.
//
// Thread-safety: All KVDB methods are safe for concurrent use; conditional
// writes (SetEIfUnset) run inside a Badger transaction and retry on conflict.
package badgerdb
