package internal

import (
	"github.com/ValentinKolb/dDS/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (key-value pair with metadata)
// --------------------------------------------------------------------------

// Entry stores a value with its ordering index and absolute deadlines.
type Entry struct {
	Value    []byte // The stored data
	ExpireAt uint64 // Expiration deadline (unix ms, 0 = never)
	DeleteAt uint64 // Deletion deadline (unix ms, 0 = never)
	Index    uint64 // Write index of the write that created/updated this entry
}

// IsExpired reports whether the entry is past its expiration deadline at the
// given wall-clock time (unix ms).
func (e Entry) IsExpired(nowMs uint64) bool {
	return e.ExpireAt != 0 && nowMs >= e.ExpireAt
}

// IsDeleted reports whether the entry is past its deletion deadline at the
// given wall-clock time (unix ms).
func (e Entry) IsDeleted(nowMs uint64) bool {
	return e.DeleteAt != 0 && nowMs >= e.DeleteAt
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard is one partition of the database. Entries are keyed by their full
// string key; the shard is only selected by the key's hash, so hash collisions
// never conflate distinct keys.
type Shard struct {
	Data *xsync.MapOf[string, Entry]
}

// NewShard creates an empty shard.
func NewShard() *Shard {
	return &Shard{Data: xsync.NewMapOf[string, Entry]()}
}

// GetShard returns the shard responsible for the given key.
//
// Thread-safety: This function is thread-safe and can be called concurrently.
func GetShard(key string, seed uint64, shards []*Shard) *Shard {
	h := uint64(util.HashString(key, seed))
	// Shift right by 7 bits to use higher-quality bits for distribution
	return shards[(h>>7)%uint64(len(shards))]
}
