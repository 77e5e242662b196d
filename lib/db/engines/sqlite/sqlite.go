package sqlite

import (
	"database/sql"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dDS/lib/db"
	"github.com/lni/dragonboat/v4/logger"
	_ "github.com/mattn/go-sqlite3"
)

var log = logger.GetLogger("sqlite")

// --------------------------------------------------------------------------
// Constants and setup
// --------------------------------------------------------------------------

const (
	defaultGCInterval = time.Minute

	schema = `
CREATE TABLE IF NOT EXISTS kv (
	key       TEXT PRIMARY KEY,
	value     BLOB NOT NULL,
	write_idx INTEGER NOT NULL,
	expire_at INTEGER NOT NULL DEFAULT 0,
	delete_at INTEGER NOT NULL DEFAULT 0
);`
)

// memCounter disambiguates in-memory instances so every engine gets its own
// shared-cache namespace.
var memCounter atomic.Uint64

// DBOptions configures the engine during initialization
type DBOptions struct {
	Path       string        // Database file. Empty = private in-memory db (tests)
	GCInterval time.Duration // Time between GC sweeps (0 = use default)
}

type sqliteImpl struct {
	sdb    *sql.DB
	gcStop chan struct{}
}

// NewSQLiteDB creates a new engine instance backed by the given database file.
// With an empty path the database lives in memory only.
func NewSQLiteDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil {
		opts = &DBOptions{}
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = defaultGCInterval
	}

	dsn := opts.Path
	if dsn == "" {
		dsn = fmt.Sprintf("file:dds-mem-%d?mode=memory&cache=shared", memCounter.Add(1))
	} else {
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", dsn)
	}

	sdb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", opts.Path, err)
	}
	if _, err := sdb.Exec(schema); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	impl := &sqliteImpl{
		sdb:    sdb,
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

func (s *sqliteImpl) exec(query string, args ...interface{}) {
	if _, err := s.sdb.Exec(query, args...); err != nil {
		log.Errorf("sqlite exec failed: %v", err)
	}
}

func (s *sqliteImpl) Set(key string, value []byte, writeIndex uint64) {
	s.SetE(key, value, writeIndex, 0, 0)
}

func (s *sqliteImpl) SetE(key string, value []byte, writeIndex uint64, expireAt, deleteAt uint64) {
	s.exec(`
		INSERT INTO kv (key, value, write_idx, expire_at, delete_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			write_idx = excluded.write_idx,
			expire_at = excluded.expire_at,
			delete_at = excluded.delete_at
		WHERE kv.write_idx <= excluded.write_idx`,
		key, value, writeIndex, expireAt, deleteAt)
}

func (s *sqliteImpl) SetEIfUnset(key string, value []byte, writeIndex uint64, expireAt, deleteAt uint64) {
	// a row past its deletion deadline counts as unset
	s.exec(`
		INSERT INTO kv (key, value, write_idx, expire_at, delete_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			write_idx = excluded.write_idx,
			expire_at = excluded.expire_at,
			delete_at = excluded.delete_at
		WHERE kv.delete_at != 0 AND kv.delete_at <= ?`,
		key, value, writeIndex, expireAt, deleteAt, nowMs())
}

func (s *sqliteImpl) Expire(key string, writeIndex uint64) {
	now := nowMs()
	s.exec(`
		UPDATE kv SET expire_at = ?, value = X'', write_idx = ?
		WHERE key = ? AND write_idx <= ? AND (delete_at = 0 OR delete_at > ?)`,
		now, writeIndex, key, writeIndex, now)
}

func (s *sqliteImpl) Delete(key string, writeIndex uint64) {
	s.exec(`DELETE FROM kv WHERE key = ? AND write_idx <= ?`, key, writeIndex)
}

// --------------------------------------------------------------------------
// Query Operations (docu see db.KVDB)
// --------------------------------------------------------------------------

func (s *sqliteImpl) Get(key string) ([]byte, bool) {
	var value []byte
	var expireAt, deleteAt uint64
	err := s.sdb.QueryRow(
		`SELECT value, expire_at, delete_at FROM kv WHERE key = ?`, key,
	).Scan(&value, &expireAt, &deleteAt)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		log.Errorf("sqlite get %q failed: %v", key, err)
		return nil, false
	}
	now := nowMs()
	if (deleteAt != 0 && now >= deleteAt) || (expireAt != 0 && now >= expireAt) {
		return nil, false
	}
	return value, true
}

func (s *sqliteImpl) Has(key string) bool {
	var deleteAt uint64
	err := s.sdb.QueryRow(`SELECT delete_at FROM kv WHERE key = ?`, key).Scan(&deleteAt)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		log.Errorf("sqlite has %q failed: %v", key, err)
		return false
	}
	return deleteAt == 0 || nowMs() < deleteAt
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

func (s *sqliteImpl) gcLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			s.exec(`DELETE FROM kv WHERE delete_at != 0 AND delete_at <= ?`, nowMs())
		}
	}
}

// --------------------------------------------------------------------------
// Persistence, Features and Metadata (docu see db.KVDB)
// --------------------------------------------------------------------------

// Save is not supported - the database file is the persistent form.
func (s *sqliteImpl) Save(io.Writer) error {
	return fmt.Errorf("sqlite does not support Save")
}

// Load is not supported - the database file is the persistent form.
func (s *sqliteImpl) Load(io.Reader) error {
	return fmt.Errorf("sqlite does not support Load")
}

func (s *sqliteImpl) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureSet | db.FeatureSetE | db.FeatureSetEIfUnset |
		db.FeatureGet | db.FeatureExpire | db.FeatureDelete | db.FeatureHas
	return feature&supported == feature
}

func (s *sqliteImpl) GetInfo() db.DatabaseInfo {
	var count, size int
	if err := s.sdb.QueryRow(`SELECT COUNT(*), COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0) FROM kv`).Scan(&count, &size); err != nil {
		log.Warningf("sqlite info query failed: %v", err)
	}
	return db.DatabaseInfo{
		SizeBytes: size,
		DbType:    db.ImplSQLite,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureSetE, db.FeatureSetEIfUnset,
			db.FeatureGet, db.FeatureExpire, db.FeatureDelete, db.FeatureHas,
		},
		Metadata: map[string]interface{}{
			"entries": count,
		},
	}
}

func (s *sqliteImpl) Close() error {
	select {
	case <-s.gcStop:
	default:
		close(s.gcStop)
	}
	return s.sdb.Close()
}
