package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplArbor    Implementation = "arbor"
	ImplBadgerDB Implementation = "badgerdb"
	ImplSQLite   Implementation = "sqlite"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureSet         Feature = 1 << iota // Support for Set operations
	FeatureSetE                            // Support for SetE operations
	FeatureSetEIfUnset                     // Support for SetEIfUnset operations
	FeatureGet                             // Support for Get operations
	FeatureExpire                          // Support for Expire operations
	FeatureDelete                          // Support for Delete operations
	FeatureHas                             // Support for Has operations
	FeatureSave                            // Support for Save operations
	FeatureLoad                            // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureGet:
		return "Get"
	case FeatureSetE:
		return "SetE"
	case FeatureSetEIfUnset:
		return "SetEIfUnset"
	case FeatureExpire:
		return "Expire"
	case FeatureDelete:
		return "Delete"
	case FeatureHas:
		return "Has"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for key-value database implementations.
// It provides methods for basic operations like Set, Get, Delete, and various utility functions.
// Any implementation of this interface must manage keys in a consistent way.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
//
// Deadline semantics: expireAt and deleteAt are absolute wall-clock deadlines
// in unix milliseconds (0 = never). The deadlines are computed by the caller
// (the store layer) so they serialize deterministically into a replicated log.
// An expired entry is no longer readable via Get but still visible to Has; a
// deleted entry is gone entirely. Implementations must honor the deadlines on
// the read path even if the physical entry has not been collected yet.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry with the given key and value.
	// If the key already exists, the old value is overwritten.
	// The writeIndex parameter is a logical timestamp used to order replayed
	// writes (last writer wins per key).
	Set(key string, value []byte, writeIndex uint64)

	// SetE inserts or updates an entry with expiration and or deletion deadlines.
	SetE(key string, value []byte, writeIndex uint64, expireAt, deleteAt uint64)

	// SetEIfUnset inserts an entry only if the key does not currently hold a
	// live value. If a live entry exists, nothing changes - no matter the
	// deadlines. A key whose previous entry is deleted (or fully expired)
	// counts as unset. This is the atomic conditional write the claim/lease
	// layer builds on.
	SetEIfUnset(key string, value []byte, writeIndex uint64, expireAt, deleteAt uint64)

	// Expire marks the entry with the specified key as expired immediately.
	// The key is still findable with the Has() method.
	Expire(key string, writeIndex uint64)

	// Delete removes an entry with the specified key.
	// The key should be removed from the database and not be findable anymore.
	Delete(key string, writeIndex uint64)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a live value for the key was found.
	Get(key string) (value []byte, loaded bool)

	// Has checks whether a key exists in the database.
	// This method returns true even if the value for the key is expired,
	// but false once the entry is deleted.
	Has(key string) (loaded bool)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Returns true if the feature is supported, false otherwise.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close closes the database.
	Close() (err error)
}
