// Package db provides a standardized interface for key-value database implementations.
// It defines a comprehensive KVDB interface that allows for consistent interaction
// with various database backends while abstracting implementation details.
//
// Within dDS the KVDB engines back three very different concerns through one
// contract: the ephemeral local cache tier, the best-effort durable shared
// cache tier and the persisted derivation-record store. Which engine serves
// which concern is purely a wiring decision made by the caller.
//
// The package focuses on:
//   - A unified interface for key-value operations
//   - Feature discovery through capability flags
//   - Standardized persistence operations
//   - Comprehensive metadata reporting
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides methods for basic operations (Set, Get, Has, Delete),
//     deadline-based operations (SetE, Expire), the conditional write primitive
//     (SetEIfUnset), metadata retrieval (GetInfo), and persistence operations
//     (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method. This allows clients to
//     discover supported operations at runtime.
//
//   - Implementation Identifiers: The Implementation type provides string constants
//     for the available backends ("arbor", "badgerdb", "sqlite").
//
//   - Database Information: The DatabaseInfo structure provides standardized
//     reporting on database state, including size statistics, implementation type,
//     and implementation-specific metadata. Note: For most implementations all
//     size statistics will be estimated since a precise calculation can be
//     expensive.
//
// This interface-driven approach allows applications to:
//   - Swap database implementations without code changes
//   - Gracefully handle operations not supported by specific implementations
//   - Maintain consistent behavior across different storage backends
//
// Note on Deadline-Based Operations:
//   - Write operations carry a writeIndex parameter, a logical timestamp used to
//     order replayed writes: a write with a lower index than the stored entry's
//     index must not clobber it. The index is assigned by the store layer (a
//     local atomic counter, or the raft log index for replicated stores).
//   - Expiration (expireAt) and deletion (deleteAt) are absolute wall-clock
//     deadlines in unix milliseconds, computed by the caller before the write is
//     submitted. Computing them eagerly keeps replicated logs deterministic: every
//     replica applies the same absolute deadline instead of re-reading its own
//     clock.
//   - An entry past its expireAt is no longer readable via Get() but still
//     reports true from Has(). An entry past its deleteAt is gone entirely.
//     Implementations must enforce this on the read path, regardless of whether
//     background collection has physically removed the entry yet.
//
// Related Packages:
//
// The engines/arbor package provides a sharded in-memory implementation built on
// xsync maps with a background sweep for expired entries. It backs the local
// cache tier and all unit tests.
//
// The engines/badgerdb package persists entries in a BadgerDB instance on local
// disk, suitable for the shared cache tier and durable derivation records on a
// single node.
//
// The engines/sqlite package stores entries in a single SQLite table, matching
// deployments where the metadata store is SQL-backed.
//
// The testing package (github.com/ValentinKolb/dDS/lib/db/testing) provides
// standardized tests and benchmarks for database implementations that satisfy the db.KVDB interface.
//   - RunKVDBTests: Runs a standardized test suite to validate implementations
//   - RunKVDBBenchmarks: Provides performance benchmarks for comparing implementations
package db
