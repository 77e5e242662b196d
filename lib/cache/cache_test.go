package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dDS/lib/db"
	"github.com/ValentinKolb/dDS/lib/db/engines/arbor"
	"github.com/ValentinKolb/dDS/lib/store"
	"github.com/ValentinKolb/dDS/lib/store/lstore"
	"github.com/VictoriaMetrics/metrics"
)

func newTier() store.IStore {
	return lstore.NewLocalStore(func() db.KVDB { return arbor.NewArborDB(nil) })
}

// brokenStore simulates a shared tier outage: every operation fails.
type brokenStore struct{}

func (brokenStore) Set(string, []byte) error                            { return errFail }
func (brokenStore) SetE(string, []byte, time.Duration, time.Duration) error { return errFail }
func (brokenStore) SetEIfUnset(string, []byte, time.Duration, time.Duration) error {
	return errFail
}
func (brokenStore) Expire(string) error                { return errFail }
func (brokenStore) Delete(string) error                { return errFail }
func (brokenStore) Get(string) ([]byte, bool, error)   { return nil, false, errFail }
func (brokenStore) Has(string) (bool, error)           { return false, errFail }
func (brokenStore) GetDBInfo() (db.DatabaseInfo, error) { return db.DatabaseInfo{}, errFail }

var errFail = errors.New("tier down")

func TestGetOrLoadLocalHit(t *testing.T) {
	local := newTier()
	c := New(local, nil, Options{Name: "t-local-hit"})

	if err := local.Set("key", []byte("cached")); err != nil {
		t.Fatal(err)
	}

	val, err := c.GetOrLoad(context.Background(), "key", func(context.Context) ([]byte, error) {
		t.Error("loader must not run on a local hit")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}
	if string(val) != "cached" {
		t.Errorf("expected %q, got %q", "cached", val)
	}
}

func TestGetOrLoadSharedHitBackfills(t *testing.T) {
	local, shared := newTier(), newTier()
	c := New(local, shared, Options{Name: "t-backfill"})

	if err := shared.Set("key", []byte("shared-value")); err != nil {
		t.Fatal(err)
	}

	val, err := c.GetOrLoad(context.Background(), "key", func(context.Context) ([]byte, error) {
		t.Error("loader must not run on a shared hit")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}
	if string(val) != "shared-value" {
		t.Errorf("expected %q, got %q", "shared-value", val)
	}

	// a shared hit back-fills the local tier
	if v, ok, _ := local.Get("key"); !ok || string(v) != "shared-value" {
		t.Errorf("expected local back-fill, got %q (ok=%v)", v, ok)
	}
}

func TestGetOrLoadMissWritesThrough(t *testing.T) {
	local, shared := newTier(), newTier()
	c := New(local, shared, Options{Name: "t-write-through"})

	val, err := c.GetOrLoad(context.Background(), "key", func(context.Context) ([]byte, error) {
		return []byte("loaded"), nil
	})
	if err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}
	if string(val) != "loaded" {
		t.Errorf("expected %q, got %q", "loaded", val)
	}

	if v, ok, _ := local.Get("key"); !ok || string(v) != "loaded" {
		t.Errorf("local tier not filled: %q (ok=%v)", v, ok)
	}
	if v, ok, _ := shared.Get("key"); !ok || string(v) != "loaded" {
		t.Errorf("shared tier not filled: %q (ok=%v)", v, ok)
	}
}

func TestGetOrLoadSingleflight(t *testing.T) {
	c := New(newTier(), nil, Options{Name: "t-singleflight"})

	var loads atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) ([]byte, error) {
		loads.Add(1)
		<-release
		return []byte("value"), nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrLoad(context.Background(), "key", loader)
		}(i)
	}

	// let every caller reach the in-flight load, then release it
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := loads.Load(); n != 1 {
		t.Errorf("expected exactly 1 loader call, got %d", n)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d failed: %v", i, errs[i])
		}
		if string(results[i]) != "value" {
			t.Errorf("caller %d got %q", i, results[i])
		}
	}
}

func TestGetOrLoadLoaderError(t *testing.T) {
	local := newTier()
	c := New(local, nil, Options{Name: "t-loader-error"})

	loadErr := errors.New("compute failed")
	if _, err := c.GetOrLoad(context.Background(), "key", func(context.Context) ([]byte, error) {
		return nil, loadErr
	}); !errors.Is(err, loadErr) {
		t.Fatalf("expected loader error, got %v", err)
	}

	// failures are not cached, a later call retries the loader
	val, err := c.GetOrLoad(context.Background(), "key", func(context.Context) ([]byte, error) {
		return []byte("second try"), nil
	})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if string(val) != "second try" {
		t.Errorf("expected retry result, got %q", val)
	}
}

func TestGetOrLoadSharedOutage(t *testing.T) {
	c := New(newTier(), brokenStore{}, Options{Name: "t-outage"})

	// shared tier down: load still succeeds and local tier still fills
	val, err := c.GetOrLoad(context.Background(), "key", func(context.Context) ([]byte, error) {
		return []byte("loaded"), nil
	})
	if err != nil {
		t.Fatalf("GetOrLoad must absorb shared tier failures: %v", err)
	}
	if string(val) != "loaded" {
		t.Errorf("expected %q, got %q", "loaded", val)
	}

	// next read is a local hit despite the outage
	val, err = c.GetOrLoad(context.Background(), "key", func(context.Context) ([]byte, error) {
		t.Error("loader must not run on a local hit")
		return nil, nil
	})
	if err != nil || string(val) != "loaded" {
		t.Errorf("expected local hit, got %q (err=%v)", val, err)
	}
}

func TestGetOrLoadLocalOutage(t *testing.T) {
	c := New(brokenStore{}, newTier(), Options{Name: "t-local-outage"})

	// local tier down: reads degrade to the shared tier and loader
	val, err := c.GetOrLoad(context.Background(), "key", func(context.Context) ([]byte, error) {
		return []byte("loaded"), nil
	})
	if err != nil {
		t.Fatalf("GetOrLoad must absorb local tier failures: %v", err)
	}
	if string(val) != "loaded" {
		t.Errorf("expected %q, got %q", "loaded", val)
	}

	// the failing tier is observable, not silent
	errCounter := metrics.GetOrCreateCounter(
		fmt.Sprintf(`dds_cache_errors_total{cache=%q,tier=%q}`, "t-local-outage", "local"))
	if errCounter.Get() == 0 {
		t.Error("expected local tier errors to be counted")
	}

	// next read still works, served by the shared tier back-fill
	val, err = c.GetOrLoad(context.Background(), "key", func(context.Context) ([]byte, error) {
		t.Error("loader must not run on a shared hit")
		return nil, nil
	})
	if err != nil || string(val) != "loaded" {
		t.Errorf("expected shared hit, got %q (err=%v)", val, err)
	}
}

func TestGetOrLoadContextCancel(t *testing.T) {
	c := New(newTier(), nil, Options{Name: "t-cancel"})

	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.GetOrLoad(context.Background(), "key", func(context.Context) ([]byte, error) {
			<-release
			return []byte("value"), nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	// a second caller with a cancelled context abandons the wait
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetOrLoad(ctx, "key", func(context.Context) ([]byte, error) {
		<-release
		return []byte("value"), nil
	}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	// the owning load still completes
	close(release)
	<-done
	if val, err := c.GetOrLoad(context.Background(), "key", func(context.Context) ([]byte, error) {
		t.Error("loader must not run, owner filled the tiers")
		return nil, nil
	}); err != nil || string(val) != "value" {
		t.Errorf("expected owner fill to land, got %q (err=%v)", val, err)
	}
}

func TestFillAndInvalidate(t *testing.T) {
	local, shared := newTier(), newTier()
	c := New(local, shared, Options{Name: "t-fill"})

	c.Fill("key", []byte("filled"))
	if v, ok, _ := local.Get("key"); !ok || string(v) != "filled" {
		t.Errorf("local tier not filled: %q (ok=%v)", v, ok)
	}
	if v, ok, _ := shared.Get("key"); !ok || string(v) != "filled" {
		t.Errorf("shared tier not filled: %q (ok=%v)", v, ok)
	}

	c.Invalidate("key")
	if _, ok, _ := local.Get("key"); ok {
		t.Error("local tier still has key after Invalidate")
	}
	if _, ok, _ := shared.Get("key"); ok {
		t.Error("shared tier still has key after Invalidate")
	}
}

func TestLocalTTL(t *testing.T) {
	local := newTier()
	c := New(local, nil, Options{Name: "t-ttl", LocalTTL: 50 * time.Millisecond})

	c.Fill("key", []byte("ephemeral"))
	if _, ok, _ := local.Get("key"); !ok {
		t.Fatal("expected value before ttl")
	}
	time.Sleep(70 * time.Millisecond)
	if _, ok, _ := local.Get("key"); ok {
		t.Error("expected local entry to expire after ttl")
	}
}
