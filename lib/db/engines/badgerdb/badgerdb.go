package badgerdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dDS/lib/db"
	"github.com/dgraph-io/badger/v4"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("badgerdb")

// --------------------------------------------------------------------------
// Constants and entry encoding
// --------------------------------------------------------------------------

const (
	headerSize        = 24 // index + expireAt + deleteAt, 8 bytes each
	defaultGCInterval = 5 * time.Minute
)

type entry struct {
	Value    []byte
	Index    uint64
	ExpireAt uint64
	DeleteAt uint64
}

func (e entry) isExpired(nowMs uint64) bool {
	return e.ExpireAt != 0 && nowMs >= e.ExpireAt
}

func (e entry) isDeleted(nowMs uint64) bool {
	return e.DeleteAt != 0 && nowMs >= e.DeleteAt
}

func encodeEntry(e entry) []byte {
	buf := make([]byte, headerSize+len(e.Value))
	binary.BigEndian.PutUint64(buf[0:8], e.Index)
	binary.BigEndian.PutUint64(buf[8:16], e.ExpireAt)
	binary.BigEndian.PutUint64(buf[16:24], e.DeleteAt)
	copy(buf[headerSize:], e.Value)
	return buf
}

func decodeEntry(data []byte) (entry, error) {
	if len(data) < headerSize {
		return entry{}, fmt.Errorf("corrupt entry: %d bytes", len(data))
	}
	e := entry{
		Index:    binary.BigEndian.Uint64(data[0:8]),
		ExpireAt: binary.BigEndian.Uint64(data[8:16]),
		DeleteAt: binary.BigEndian.Uint64(data[16:24]),
	}
	e.Value = make([]byte, len(data)-headerSize)
	copy(e.Value, data[headerSize:])
	return e, nil
}

// --------------------------------------------------------------------------
// Core structure and setup
// --------------------------------------------------------------------------

// DBOptions configures the engine during initialization
type DBOptions struct {
	Path       string        // Data directory. Empty = in-memory (tests)
	GCInterval time.Duration // Time between GC sweeps (0 = use default)
	SyncWrites bool          // Fsync every write (durability vs throughput)
}

type badgerImpl struct {
	bdb    *badger.DB
	gcStop chan struct{}
}

// NewBadgerDB creates a new engine instance. With an empty path the database
// lives in memory only, which is the configuration used by tests.
func NewBadgerDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil {
		opts = &DBOptions{}
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = defaultGCInterval
	}

	var bopts badger.Options
	if opts.Path == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithLogger(nil).WithSyncWrites(opts.SyncWrites)

	bdb, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", opts.Path, err)
	}

	impl := &badgerImpl{
		bdb:    bdb,
		gcStop: make(chan struct{}),
	}
	go impl.gcLoop(opts.GCInterval)

	return impl, nil
}

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

// --------------------------------------------------------------------------
// Write Operations (docu see db.KVDB)
// --------------------------------------------------------------------------

// update runs fn with retries on transaction conflicts.
func (b *badgerImpl) update(fn func(txn *badger.Txn) error) {
	for {
		err := b.bdb.Update(fn)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			log.Errorf("badger update failed: %v", err)
		}
		return
	}
}

func (b *badgerImpl) Set(key string, value []byte, writeIndex uint64) {
	b.SetE(key, value, writeIndex, 0, 0)
}

func (b *badgerImpl) SetE(key string, value []byte, writeIndex uint64, expireAt, deleteAt uint64) {
	b.update(func(txn *badger.Txn) error {
		if old, ok := readEntry(txn, key); ok && old.Index > writeIndex {
			return nil
		}
		return txn.Set([]byte(key), encodeEntry(entry{
			Value: value, Index: writeIndex, ExpireAt: expireAt, DeleteAt: deleteAt,
		}))
	})
}

func (b *badgerImpl) SetEIfUnset(key string, value []byte, writeIndex uint64, expireAt, deleteAt uint64) {
	now := nowMs()
	b.update(func(txn *badger.Txn) error {
		if old, ok := readEntry(txn, key); ok && !old.isDeleted(now) {
			return nil
		}
		return txn.Set([]byte(key), encodeEntry(entry{
			Value: value, Index: writeIndex, ExpireAt: expireAt, DeleteAt: deleteAt,
		}))
	})
}

func (b *badgerImpl) Expire(key string, writeIndex uint64) {
	now := nowMs()
	b.update(func(txn *badger.Txn) error {
		old, ok := readEntry(txn, key)
		if !ok || old.isDeleted(now) || old.Index > writeIndex {
			return nil
		}
		old.ExpireAt = now
		old.Value = nil
		old.Index = writeIndex
		return txn.Set([]byte(key), encodeEntry(old))
	})
}

func (b *badgerImpl) Delete(key string, writeIndex uint64) {
	b.update(func(txn *badger.Txn) error {
		if old, ok := readEntry(txn, key); ok && old.Index > writeIndex {
			return nil
		}
		return txn.Delete([]byte(key))
	})
}

// --------------------------------------------------------------------------
// Query Operations (docu see db.KVDB)
// --------------------------------------------------------------------------

func readEntry(txn *badger.Txn, key string) (entry, bool) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return entry{}, false
	}
	if err != nil {
		log.Errorf("badger get %q failed: %v", key, err)
		return entry{}, false
	}
	var e entry
	err = item.Value(func(val []byte) error {
		var derr error
		e, derr = decodeEntry(val)
		return derr
	})
	if err != nil {
		log.Errorf("badger decode %q failed: %v", key, err)
		return entry{}, false
	}
	return e, true
}

func (b *badgerImpl) Get(key string) ([]byte, bool) {
	var value []byte
	found := false
	_ = b.bdb.View(func(txn *badger.Txn) error {
		e, ok := readEntry(txn, key)
		if !ok {
			return nil
		}
		now := nowMs()
		if e.isDeleted(now) || e.isExpired(now) {
			return nil
		}
		value = e.Value
		found = true
		return nil
	})
	return value, found
}

func (b *badgerImpl) Has(key string) bool {
	found := false
	_ = b.bdb.View(func(txn *badger.Txn) error {
		e, ok := readEntry(txn, key)
		if ok && !e.isDeleted(nowMs()) {
			found = true
		}
		return nil
	})
	return found
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

func (b *badgerImpl) gcLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.gcStop:
			return
		case <-ticker.C:
			b.sweep()
			// reclaim value log space; ErrNoRewrite just means nothing to do
			if err := b.bdb.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				log.Warningf("badger value log GC: %v", err)
			}
		}
	}
}

// sweep physically removes entries past their deletion deadline.
func (b *badgerImpl) sweep() {
	now := nowMs()
	var doomed []string

	_ = b.bdb.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			err := item.Value(func(val []byte) error {
				if e, derr := decodeEntry(val); derr == nil && e.isDeleted(now) {
					doomed = append(doomed, key)
				}
				return nil
			})
			if err != nil {
				log.Warningf("sweep read %q: %v", key, err)
			}
		}
		return nil
	})

	for _, key := range doomed {
		b.update(func(txn *badger.Txn) error {
			// re-check inside the write transaction so a fresh entry survives
			if e, ok := readEntry(txn, key); ok && e.isDeleted(nowMs()) {
				return txn.Delete([]byte(key))
			}
			return nil
		})
	}
}

// --------------------------------------------------------------------------
// Persistence, Features and Metadata (docu see db.KVDB)
// --------------------------------------------------------------------------

// Save is not supported - Badger owns its on-disk representation.
func (b *badgerImpl) Save(io.Writer) error {
	return fmt.Errorf("badgerdb does not support Save")
}

// Load is not supported - Badger owns its on-disk representation.
func (b *badgerImpl) Load(io.Reader) error {
	return fmt.Errorf("badgerdb does not support Load")
}

func (b *badgerImpl) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureSet | db.FeatureSetE | db.FeatureSetEIfUnset |
		db.FeatureGet | db.FeatureExpire | db.FeatureDelete | db.FeatureHas
	return feature&supported == feature
}

func (b *badgerImpl) GetInfo() db.DatabaseInfo {
	lsm, vlog := b.bdb.Size()
	return db.DatabaseInfo{
		SizeBytes: int(lsm + vlog),
		DbType:    db.ImplBadgerDB,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureSetE, db.FeatureSetEIfUnset,
			db.FeatureGet, db.FeatureExpire, db.FeatureDelete, db.FeatureHas,
		},
		Metadata: map[string]interface{}{
			"lsm_size_bytes":  lsm,
			"vlog_size_bytes": vlog,
		},
	}
}

func (b *badgerImpl) Close() error {
	select {
	case <-b.gcStop:
	default:
		close(b.gcStop)
	}
	return b.bdb.Close()
}
