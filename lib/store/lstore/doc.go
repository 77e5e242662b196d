// Package lstore implements a local, single-node key-value store based on the
// store.IStore interface. It provides a thin wrapper around any db.KVDB
// implementation with automatic write index management. Whether data survives a
// process restart depends entirely on the engine the store wraps: the arbor
// engine is purely in-memory while the badgerdb and sqlite engines persist to disk.
//
// Key Features:
//   - Direct integration with db.KVDB implementations
//   - Automatic write index progression using atomic operations
//   - Deadline computation at the call site (durations become absolute deadlines)
//   - Feature detection to handle unsupported operations gracefully
//   - Thread-safe operations for concurrent access
//
// Implementation Details:
//
//   - Write Index Management: The store maintains an atomic counter that automatically
//     increments with each write operation. This provides a monotonically increasing
//     logical timestamp that protects replayed writes from clobbering newer state.
//
//   - Feature Detection: Before executing operations, the store checks if the underlying
//     db.KVDB implementation supports the requested feature through the SupportsFeature
//     method. Unsupported operations return appropriate error codes rather than failing
//     silently or producing undefined behavior.
//
//   - Composition Architecture: The store follows a composition pattern where the
//     store.DBFactory factory function injects the underlying db.KVDB implementation.
//     This allows the store to work with any db.KVDB-compatible engine without modification.
//
// Thread Safety:
//
//	All operations in the local store are thread-safe. The write index is managed
//	using atomic operations that guarantee correct behavior even under concurrent access.
//	The underlying db.KVDB implementation is expected to provide its own thread safety
//	guarantees for the actual storage operations.
//
// Usage Example:
//
//	// Create a store with an arbor database backend
//	factory := func() db.KVDB { return arbor.NewArborDB(nil) }
//	store := lstore.NewLocalStore(factory)
//
//	// Store a value with 5-minute expiration
//	err := store.SetE("manifest-digest@v1:abc", digest, 5*time.Minute, 0)
//
//	// Retrieve the value
//	value, exists, err := store.Get("manifest-digest@v1:abc")
//
// Suitable Use Cases:
//
//	The local store is ideal for:
//	- The process-local cache tier in front of the shared record store
//	- Single-node record stores backed by a durable engine
//	- Testing and development environments
//
// For distributed scenarios requiring consensus across multiple nodes, consider
// using the dstore package instead, which provides a RAFT-based implementation
// of the same interface with strong consistency guarantees.
package lstore
