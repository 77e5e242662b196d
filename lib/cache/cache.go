package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dDS/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

var log = logger.GetLogger("cache")

// Loader computes the value for a key on a cache miss.
type Loader func(ctx context.Context) ([]byte, error)

// Options configures a cache instance.
type Options struct {
	// Name identifies the cache in metrics.
	Name string
	// LocalTTL is the expiry for entries in the local tier (0 = no expiry).
	LocalTTL time.Duration
	// SharedTTL is the expiry for entries in the shared tier (0 = no expiry).
	SharedTTL time.Duration
}

// Cache is a two-tier cache-aside layer. The local tier is a fast
// process-local store, the optional shared tier is visible to all processes.
// Lookups fall through local, shared, loader; loads for the same key are
// collapsed into a single loader call per process.
//
// Thread-safety: all methods are safe for concurrent use.
type Cache struct {
	local  store.IStore
	shared store.IStore // may be nil
	opts   Options

	group    singleflight.Group
	inflight *xsync.MapOf[string, struct{}]

	localHits    *metrics.Counter
	localMisses  *metrics.Counter
	localErrors  *metrics.Counter
	sharedHits   *metrics.Counter
	sharedMisses *metrics.Counter
	sharedErrors *metrics.Counter
	loads        *metrics.Counter
	loadErrors   *metrics.Counter
}

// New creates a cache over the given tiers. The local tier is required,
// the shared tier may be nil for single-process deployments.
func New(local, shared store.IStore, opts Options) *Cache {
	if local == nil {
		panic("cache: local tier is required")
	}
	if opts.Name == "" {
		opts.Name = "default"
	}

	counter := func(name, tier string) *metrics.Counter {
		return metrics.GetOrCreateCounter(
			fmt.Sprintf(`dds_cache_%s_total{cache=%q,tier=%q}`, name, opts.Name, tier))
	}

	c := &Cache{
		local:        local,
		shared:       shared,
		opts:         opts,
		inflight:     xsync.NewMapOf[string, struct{}](),
		localHits:    counter("hits", "local"),
		localMisses:  counter("misses", "local"),
		localErrors:  counter("errors", "local"),
		sharedHits:   counter("hits", "shared"),
		sharedMisses: counter("misses", "shared"),
		sharedErrors: counter("errors", "shared"),
		loads:        counter("loads", "none"),
		loadErrors:   counter("load_errors", "none"),
	}

	metrics.GetOrCreateGauge(
		fmt.Sprintf(`dds_cache_inflight{cache=%q}`, opts.Name),
		func() float64 { return float64(c.inflight.Size()) })

	return c
}

// GetOrLoad returns the cached value for key, computing it with loader on a
// miss. Per process at most one loader runs per key at a time; concurrent
// callers share its result. A loader failure is propagated to every waiter
// and nothing is cached, so the next call retries.
//
// Cancelling ctx abandons the wait. The loader itself keeps running so the
// owner can still finish and fill the tiers.
func (c *Cache) GetOrLoad(ctx context.Context, key string, loader Loader) ([]byte, error) {
	// local tier, errors degrade to a miss like the shared tier
	value, ok, err := c.local.Get(key)
	switch {
	case err != nil:
		c.localErrors.Inc()
		log.Warningf("local tier get %q failed: %v", key, err)
	case ok:
		c.localHits.Inc()
		return value, nil
	}
	c.localMisses.Inc()

	// shared tier, errors degrade to a miss
	if value, ok := c.sharedGet(key); ok {
		c.fillLocal(key, value)
		return value, nil
	}

	// collapse concurrent loads for the same key
	ch := c.group.DoChan(key, func() (interface{}, error) {
		c.inflight.Store(key, struct{}{})
		defer c.inflight.Delete(key)

		c.loads.Inc()
		value, err := loader(context.WithoutCancel(ctx))
		if err != nil {
			c.loadErrors.Inc()
			return nil, err
		}

		c.fillShared(key, value)
		c.fillLocal(key, value)
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fill writes the value through both tiers.
func (c *Cache) Fill(key string, value []byte) {
	c.fillShared(key, value)
	c.fillLocal(key, value)
}

// Invalidate removes the key from both tiers.
func (c *Cache) Invalidate(key string) {
	if err := c.local.Delete(key); err != nil {
		c.localErrors.Inc()
		log.Warningf("local tier delete %q failed: %v", key, err)
	}
	if c.shared != nil {
		if err := c.shared.Delete(key); err != nil {
			c.sharedErrors.Inc()
			log.Warningf("shared tier delete %q failed: %v", key, err)
		}
	}
}

// --------------------------------------------------------------------------
// Tier helpers
// --------------------------------------------------------------------------

func (c *Cache) sharedGet(key string) ([]byte, bool) {
	if c.shared == nil {
		return nil, false
	}
	value, ok, err := c.shared.Get(key)
	if err != nil {
		c.sharedErrors.Inc()
		log.Warningf("shared tier get %q failed: %v", key, err)
		return nil, false
	}
	if !ok {
		c.sharedMisses.Inc()
		return nil, false
	}
	c.sharedHits.Inc()
	return value, true
}

func (c *Cache) fillLocal(key string, value []byte) {
	// deleteIn matches the ttl so stale entries get reclaimed, not just hidden
	if err := c.local.SetE(key, value, c.opts.LocalTTL, c.opts.LocalTTL); err != nil {
		c.localErrors.Inc()
		log.Warningf("local tier fill %q failed: %v", key, err)
	}
}

func (c *Cache) fillShared(key string, value []byte) {
	if c.shared == nil {
		return
	}
	if err := c.shared.SetE(key, value, c.opts.SharedTTL, c.opts.SharedTTL); err != nil {
		c.sharedErrors.Inc()
		log.Warningf("shared tier fill %q failed: %v", key, err)
	}
}
