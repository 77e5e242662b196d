// Package store provides a high-level interface for key-value storage operations
// with advanced features like expiration, deletion scheduling, and unified error handling.
// It serves as an abstraction layer over the lower-level db.KVDB implementations, adding
// functionality such as write index management, deadline computation and standardized
// error reporting.
//
// Within the derived-data system the store layer backs two very different tiers:
// the process-local cache tier (lstore over an in-memory engine) and the shared
// record store (dstore replicated via RAFT, or lstore over a durable engine for
// single-node deployments). Both tiers speak the same IStore interface, so the
// caching and derivation layers never care which one they talk to.
//
// The package focuses on:
//   - A unified interface (IStore) for key-value operations across different backends
//   - Pluggable storage backend architecture through DBFactory pattern
//   - Conversion of relative expiry durations into absolute wall-clock deadlines
//
// Key Components:
//
//   - IStore Interface: The core abstraction defining operations for interacting with
//     a key-value store. All implementations share this common interface, allowing
//     applications to switch between different storage backends without code changes.
//     The interface methods return custom Error types that provide detailed information
//     about operation results.
//
//   - Deadline Computation: Callers pass expiry and deletion as durations relative to
//     the call. The store converts them to absolute unix millisecond deadlines before
//     the write reaches the engine. For the distributed store this happens before the
//     RAFT proposal, so every replica applies the identical deadline no matter when it
//     replays the log entry.
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     and descriptive messages. This system allows applications to make informed
//     decisions based on specific error conditions rather than generic errors.
//
//   - DBFactory: A function type that abstracts the creation of underlying db.KVDB
//     instances, providing dependency injection and flexible configuration of
//     storage backends.
//
// Implementations:
//
//	The package includes two implementations of the IStore interface:
//
//	- Local Store (lstore): A simple, non-distributed implementation that directly
//	  utilizes a db.KVDB instance. It manages write index progression internally
//	  using atomic operations to ensure thread safety. This implementation backs
//	  the local cache tier and single-node record stores.
//	  Available in the "github.com/ValentinKolb/dDS/lib/store/lstore" package.
//
//	- Distributed Store (dstore): An implementation built on the Dragonboat
//	  RAFT consensus library. It distributes storage operations across multiple nodes
//	  with strong consistency guarantees. This implementation backs the shared record
//	  store in multi-node deployments where derivation claims must be linearizable.
//	  Available in the "github.com/ValentinKolb/dDS/lib/store/dstore" package.
//
// This interface-driven approach allows applications to:
//   - Switch between local and distributed storage depending on deployment requirements
//   - Handle errors in a consistent and type-safe manner across implementations
//   - Abstract storage implementation details from application logic
package store
