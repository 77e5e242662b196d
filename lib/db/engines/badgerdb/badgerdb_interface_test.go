package badgerdb

import (
	"testing"

	"github.com/ValentinKolb/dDS/lib/db"
	dbtesting "github.com/ValentinKolb/dDS/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "BadgerDB", func() db.KVDB {
		database, err := NewBadgerDB(nil)
		if err != nil {
			t.Fatalf("failed to create in-memory badger engine: %v", err)
		}
		return database
	})
}

func TestOnDisk(t *testing.T) {
	dir := t.TempDir()
	database, err := NewBadgerDB(&DBOptions{Path: dir})
	if err != nil {
		t.Fatalf("failed to create on-disk badger engine: %v", err)
	}
	defer database.Close()

	database.Set("persist-key", []byte("persist-value"), 1)
	val, ok := database.Get("persist-key")
	if !ok || string(val) != "persist-value" {
		t.Fatalf("round trip failed: %q (ok=%v)", val, ok)
	}

	info := database.GetInfo()
	if info.DbType != db.ImplBadgerDB {
		t.Errorf("expected db type %q, got %q", db.ImplBadgerDB, info.DbType)
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "BadgerDB", func() db.KVDB {
		database, err := NewBadgerDB(nil)
		if err != nil {
			b.Fatalf("failed to create in-memory badger engine: %v", err)
		}
		return database
	})
}
