package arbor

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dDS/lib/db"
	"github.com/ValentinKolb/dDS/lib/db/engines/arbor/internal"
	"github.com/ValentinKolb/dDS/lib/db/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum          = "ARBORDB\x00"         // File format identifier
	arborVersion      = 1                     // Database file format version
	defaultGCInterval = 250 * time.Millisecond // Default interval between GC sweeps
)

// --------------------------------------------------------------------------
// Core Arbor database structure
// --------------------------------------------------------------------------

// arborImpl implements db.KVDB with sharded in-memory maps and absolute
// wall-clock deadlines. It is the engine behind the local cache tier and the
// default engine for tests.
type arborImpl struct {
	numShards int
	seed      uint64
	shards    []*internal.Shard

	// garbage collection
	gcInterval time.Duration
	gcStop     chan struct{}
	closed     atomic.Bool
}

// DBOptions configures the engine during initialization
type DBOptions struct {
	NumShards  int           // Number of shards (0 = one per CPU)
	GCInterval time.Duration // Time between GC sweeps (0 = use default)
}

// DefaultOptions returns the default engine options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards:  runtime.NumCPU(),
		GCInterval: defaultGCInterval,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewArborDB creates a new engine instance with the specified options (optional).
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization. All methods on the returned KVDB are thread-safe.
func NewArborDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = defaultGCInterval
	}

	shards := make([]*internal.Shard, opts.NumShards)
	for i := range shards {
		shards[i] = internal.NewShard()
	}

	newDB := &arborImpl{
		numShards:  opts.NumShards,
		seed:       util.GenerateSeed(),
		shards:     shards,
		gcInterval: opts.GCInterval,
		gcStop:     make(chan struct{}),
	}

	go newDB.gcLoop()

	return newDB
}

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

// --------------------------------------------------------------------------
// Write Operations (docu see db.KVDB)
// --------------------------------------------------------------------------

func (a *arborImpl) Set(key string, value []byte, writeIndex uint64) {
	a.SetE(key, value, writeIndex, 0, 0)
}

func (a *arborImpl) SetE(key string, value []byte, writeIndex uint64, expireAt, deleteAt uint64) {
	shard := internal.GetShard(key, a.seed, a.shards)
	shard.Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		// never let a replayed older write clobber a newer entry
		if loaded && old.Index > writeIndex {
			return old, false
		}
		return internal.Entry{
			Value:    value,
			ExpireAt: expireAt,
			DeleteAt: deleteAt,
			Index:    writeIndex,
		}, false
	})
}

func (a *arborImpl) SetEIfUnset(key string, value []byte, writeIndex uint64, expireAt, deleteAt uint64) {
	now := nowMs()
	shard := internal.GetShard(key, a.seed, a.shards)
	shard.Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		// a live (not yet deleted) entry wins, no matter its deadlines
		if loaded && !old.IsDeleted(now) {
			return old, false
		}
		return internal.Entry{
			Value:    value,
			ExpireAt: expireAt,
			DeleteAt: deleteAt,
			Index:    writeIndex,
		}, false
	})
}

func (a *arborImpl) Expire(key string, writeIndex uint64) {
	now := nowMs()
	shard := internal.GetShard(key, a.seed, a.shards)
	shard.Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if !loaded || old.IsDeleted(now) || old.Index > writeIndex {
			return old, !loaded
		}
		old.ExpireAt = now
		old.Value = nil
		old.Index = writeIndex
		return old, false
	})
}

func (a *arborImpl) Delete(key string, writeIndex uint64) {
	shard := internal.GetShard(key, a.seed, a.shards)
	shard.Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded && old.Index > writeIndex {
			return old, false
		}
		return internal.Entry{}, true
	})
}

// --------------------------------------------------------------------------
// Query Operations (docu see db.KVDB)
// --------------------------------------------------------------------------

func (a *arborImpl) Get(key string) ([]byte, bool) {
	shard := internal.GetShard(key, a.seed, a.shards)
	entry, ok := shard.Data.Load(key)
	if !ok {
		return nil, false
	}
	now := nowMs()
	if entry.IsDeleted(now) || entry.IsExpired(now) {
		return nil, false
	}
	// hand out a copy so callers cannot corrupt the stored entry
	value := make([]byte, len(entry.Value))
	copy(value, entry.Value)
	return value, true
}

func (a *arborImpl) Has(key string) bool {
	shard := internal.GetShard(key, a.seed, a.shards)
	entry, ok := shard.Data.Load(key)
	if !ok {
		return false
	}
	return !entry.IsDeleted(nowMs())
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// gcLoop periodically sweeps all shards and physically removes entries past
// their deletion deadline. Expired entries keep their (nil-able) metadata so
// Has() stays truthful.
func (a *arborImpl) gcLoop() {
	ticker := time.NewTicker(a.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.gcStop:
			return
		case <-ticker.C:
			a.sweep()
		}
	}
}

func (a *arborImpl) sweep() {
	now := nowMs()
	for _, shard := range a.shards {
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			if entry.IsDeleted(now) {
				// re-check under the map lock so a concurrent newer write survives
				shard.Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
					return old, loaded && old.IsDeleted(now)
				})
			} else if entry.IsExpired(now) && entry.Value != nil {
				shard.Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
					if loaded && old.Index == entry.Index {
						old.Value = nil
					}
					return old, false
				})
			}
			return true
		})
	}
}

// --------------------------------------------------------------------------
// Persistence Operations (docu see db.KVDB)
// --------------------------------------------------------------------------

// Save writes a fuzzy snapshot of all shards. Entries written while the save
// is running may or may not be included.
func (a *arborImpl) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, uint32(arborVersion)); err != nil {
		return err
	}

	var saveErr error
	for _, shard := range a.shards {
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			if err := writeEntry(bw, key, entry); err != nil {
				saveErr = err
				return false
			}
			return true
		})
		if saveErr != nil {
			return saveErr
		}
	}
	return bw.Flush()
}

// Load restores entries written by Save into the (typically empty) database.
func (a *arborImpl) Load(r io.Reader) error {
	br := bufio.NewReader(r)

	magic := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magic); err != nil {
		return fmt.Errorf("reading magic number: %w", err)
	}
	if string(magic) != magicNum {
		return fmt.Errorf("invalid file format (bad magic number)")
	}
	var version uint32
	if err := binary.Read(br, binary.BigEndian, &version); err != nil {
		return fmt.Errorf("reading version: %w", err)
	}
	if version != arborVersion {
		return fmt.Errorf("unsupported file version %d", version)
	}

	for {
		key, entry, err := readEntry(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		shard := internal.GetShard(key, a.seed, a.shards)
		shard.Data.Store(key, entry)
	}
}

// writeEntry serializes one entry: keyLen, key, valueLen, value, index, expireAt, deleteAt
func writeEntry(w io.Writer, key string, entry internal.Entry) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(key))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, key); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(entry.Value))); err != nil {
		return err
	}
	if _, err := w.Write(entry.Value); err != nil {
		return err
	}
	for _, v := range []uint64{entry.Index, entry.ExpireAt, entry.DeleteAt} {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readEntry(r io.Reader) (string, internal.Entry, error) {
	var entry internal.Entry
	var keyLen uint32
	if err := binary.Read(r, binary.BigEndian, &keyLen); err != nil {
		return "", entry, err
	}
	keyBuf := make([]byte, keyLen)
	if _, err := io.ReadFull(r, keyBuf); err != nil {
		return "", entry, err
	}
	var valLen uint32
	if err := binary.Read(r, binary.BigEndian, &valLen); err != nil {
		return "", entry, err
	}
	entry.Value = make([]byte, valLen)
	if _, err := io.ReadFull(r, entry.Value); err != nil {
		return "", entry, err
	}
	for _, p := range []*uint64{&entry.Index, &entry.ExpireAt, &entry.DeleteAt} {
		if err := binary.Read(r, binary.BigEndian, p); err != nil {
			return "", entry, err
		}
	}
	return string(keyBuf), entry, nil
}

// --------------------------------------------------------------------------
// Feature Support and Metadata (docu see db.KVDB)
// --------------------------------------------------------------------------

func (a *arborImpl) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureSet | db.FeatureSetE | db.FeatureSetEIfUnset |
		db.FeatureGet | db.FeatureExpire | db.FeatureDelete | db.FeatureHas |
		db.FeatureSave | db.FeatureLoad
	return feature&supported == feature
}

// GetInfo returns statistics about the database. SizeBytes is an estimate
// computed by a full scan.
func (a *arborImpl) GetInfo() db.DatabaseInfo {
	size := 0
	count := 0
	for _, shard := range a.shards {
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			size += len(key) + len(entry.Value)
			count++
			return true
		})
	}
	return db.DatabaseInfo{
		SizeBytes: size,
		DbType:    db.ImplArbor,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureSetE, db.FeatureSetEIfUnset,
			db.FeatureGet, db.FeatureExpire, db.FeatureDelete, db.FeatureHas,
			db.FeatureSave, db.FeatureLoad,
		},
		Metadata: map[string]interface{}{
			"num_shards": a.numShards,
			"entries":    count,
		},
	}
}

func (a *arborImpl) Close() error {
	if a.closed.CompareAndSwap(false, true) {
		close(a.gcStop)
	}
	return nil
}
