package lstore

import (
	"testing"
	"time"

	"github.com/ValentinKolb/dDS/lib/db"
	"github.com/ValentinKolb/dDS/lib/db/engines/arbor"
	"github.com/ValentinKolb/dDS/lib/store"
)

func newTestStore() store.IStore {
	return NewLocalStore(func() db.KVDB { return arbor.NewArborDB(nil) })
}

func TestSetGet(t *testing.T) {
	s := newTestStore()

	if err := s.Set("key", []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, ok, err := s.Get("key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || string(val) != "value" {
		t.Fatalf("expected value %q, got %q (ok=%v)", "value", val, ok)
	}
}

func TestSetEDeadlines(t *testing.T) {
	s := newTestStore()

	if err := s.SetE("key", []byte("value"), 50*time.Millisecond, 150*time.Millisecond); err != nil {
		t.Fatalf("SetE failed: %v", err)
	}

	// before the expiry deadline the value is visible
	if _, ok, _ := s.Get("key"); !ok {
		t.Fatal("expected value before expiry deadline")
	}

	// after expiry Get misses but Has still finds the key
	time.Sleep(70 * time.Millisecond)
	if _, ok, _ := s.Get("key"); ok {
		t.Error("expected Get to miss after expiry deadline")
	}
	if ok, _ := s.Has("key"); !ok {
		t.Error("expected Has to find key between expiry and deletion")
	}

	// after deletion the key is gone entirely
	time.Sleep(100 * time.Millisecond)
	if ok, _ := s.Has("key"); ok {
		t.Error("expected Has to miss after deletion deadline")
	}
}

func TestSetEIfUnset(t *testing.T) {
	s := newTestStore()

	if err := s.SetEIfUnset("claim", []byte("first"), 0, time.Hour); err != nil {
		t.Fatalf("SetEIfUnset failed: %v", err)
	}
	if err := s.SetEIfUnset("claim", []byte("second"), 0, time.Hour); err != nil {
		t.Fatalf("SetEIfUnset failed: %v", err)
	}

	val, ok, err := s.Get("claim")
	if err != nil || !ok {
		t.Fatalf("Get failed: %v (ok=%v)", err, ok)
	}
	if string(val) != "first" {
		t.Errorf("expected first writer to win, got %q", val)
	}
}

func TestSetEIfUnsetAfterDeletion(t *testing.T) {
	s := newTestStore()

	if err := s.SetEIfUnset("claim", []byte("first"), 0, 50*time.Millisecond); err != nil {
		t.Fatalf("SetEIfUnset failed: %v", err)
	}
	time.Sleep(70 * time.Millisecond)

	// the first claim's deletion deadline has passed, so the key counts as unset
	if err := s.SetEIfUnset("claim", []byte("second"), 0, time.Hour); err != nil {
		t.Fatalf("SetEIfUnset failed: %v", err)
	}
	val, ok, _ := s.Get("claim")
	if !ok || string(val) != "second" {
		t.Errorf("expected takeover after deletion deadline, got %q (ok=%v)", val, ok)
	}
}

func TestExpireAndDelete(t *testing.T) {
	s := newTestStore()

	if err := s.Set("key", []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Expire("key"); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if _, ok, _ := s.Get("key"); ok {
		t.Error("expected Get to miss after Expire")
	}
	if ok, _ := s.Has("key"); !ok {
		t.Error("expected Has to find expired key")
	}

	if err := s.Delete("key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if ok, _ := s.Has("key"); ok {
		t.Error("expected Has to miss after Delete")
	}
}

func TestGetDBInfo(t *testing.T) {
	s := newTestStore()
	info, err := s.GetDBInfo()
	if err != nil {
		t.Fatalf("GetDBInfo failed: %v", err)
	}
	if info.DbType != db.ImplArbor {
		t.Errorf("expected db type %q, got %q", db.ImplArbor, info.DbType)
	}
}
