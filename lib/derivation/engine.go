package derivation

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dDS/lib/cache"
	"github.com/ValentinKolb/dDS/lib/id"
	"github.com/ValentinKolb/dDS/lib/keygen"
	"github.com/ValentinKolb/dDS/lib/lease"
	"github.com/ValentinKolb/dDS/lib/scm"
	"github.com/ValentinKolb/dDS/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	log = logger.GetLogger("derivation")

	computeCount   = metrics.NewCounter("dds_engine_computes_total")
	computeErrors  = metrics.NewCounter("dds_engine_compute_errors_total")
	claimConflicts = metrics.NewCounter("dds_engine_claim_conflicts_total")
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures the engine. Zero values fall back to the defaults.
type Options struct {
	// LeaseTTL is how long a derivation claim survives without renewal.
	LeaseTTL time.Duration
	// RenewEvery is the heartbeat interval for held claims.
	RenewEvery time.Duration
	// WaitTimeout bounds how long Derive waits on a claim held elsewhere.
	WaitTimeout time.Duration
	// PollInterval is the delay between checks while waiting on a claim.
	PollInterval time.Duration
	// FanOutLimit bounds the parent count of any commit in a traversal.
	FanOutLimit int
	// MaxFrontier bounds the number of underived commits a single Derive
	// call may schedule.
	MaxFrontier int
}

func (o Options) withDefaults() Options {
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = 30 * time.Second
	}
	if o.RenewEvery <= 0 {
		o.RenewEvery = o.LeaseTTL / 3
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 50 * time.Millisecond
	}
	if o.FanOutLimit <= 0 {
		o.FanOutLimit = 64
	}
	if o.MaxFrontier <= 0 {
		o.MaxFrontier = 100_000
	}
	return o
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// Engine drives derivation: it walks the commit graph to find underived
// ancestors, claims them one at a time, computes their values through the
// registered derivers and commits the results to cache and record store.
//
// Thread-safety: all methods are safe for concurrent use; concurrent Derive
// calls for the same commit coordinate through claims so each value is
// computed at most once per claim lifetime.
type Engine struct {
	graph    scm.Graph
	cache    *cache.Cache
	records  *Records
	leases   lease.Manager
	registry *Registry
	opts     Options
}

// NewEngine creates an engine. The record store holds derivation records and
// claims; it must be the same store for every process of a deployment since
// it is what cross-process coordination runs on.
func NewEngine(graph scm.Graph, c *cache.Cache, recordStore store.IStore, registry *Registry, opts Options) *Engine {
	return &Engine{
		graph:    graph,
		cache:    c,
		records:  NewRecords(recordStore),
		leases:   lease.NewManager(recordStore),
		registry: registry,
		opts:     opts.withDefaults(),
	}
}

// Records exposes the engine's record accessor (used by verify and cmd).
func (e *Engine) Records() *Records {
	return e.records
}

// Registry exposes the engine's deriver registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// --------------------------------------------------------------------------
// Core Operations
// --------------------------------------------------------------------------

// Derive ensures the value of type t exists for commit c and returns it.
// All underived ancestors are derived first, parents before children.
// Derive is idempotent: deriving an already-derived commit just fetches.
func (e *Engine) Derive(ctx context.Context, c id.CommitId, t id.DerivedDataType) ([]byte, error) {
	d, err := e.deriver(t)
	if err != nil {
		return nil, err
	}

	plan, err := e.planFrontier(ctx, c, d)
	if err != nil {
		return nil, err
	}
	if len(plan) > 0 {
		log.Debugf("deriving %s for %d commits up to %s", t, len(plan), c.Short())
	}
	for _, cid := range plan {
		if err := e.deriveOne(ctx, cid, d); err != nil {
			return nil, err
		}
	}

	return e.fetchValue(ctx, c, d)
}

// Rederive discards the persisted record and cached value for (c, t) and
// derives again. Ancestors keep their records.
func (e *Engine) Rederive(ctx context.Context, c id.CommitId, t id.DerivedDataType) ([]byte, error) {
	// enablement and registration check only, Derive resolves the deriver itself
	if _, err := e.deriver(t); err != nil {
		return nil, err
	}
	if err := e.records.Reset(t, c); err != nil {
		return nil, err
	}
	key, err := e.valueKey(t, c)
	if err != nil {
		return nil, err
	}
	e.cache.Invalidate(key)
	return e.Derive(ctx, c, t)
}

// Fetch returns the derived value for (c, t) if the record says Derived.
// It never triggers derivation of missing records; ok is false for commits
// that are Underived or InProgress. The value itself is served through the
// cache and recomputed on the spot if every tier lost it.
func (e *Engine) Fetch(ctx context.Context, c id.CommitId, t id.DerivedDataType) ([]byte, bool, error) {
	d, err := e.deriver(t)
	if err != nil {
		return nil, false, err
	}
	_, ok, err := e.records.Get(t, c)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	value, err := e.fetchValue(ctx, c, d)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Exists returns the derivation state for (c, t) with a constant number of
// record store reads and no graph traversal.
func (e *Engine) Exists(c id.CommitId, t id.DerivedDataType) (State, error) {
	if _, err := e.deriver(t); err != nil {
		return StateUnderived, err
	}
	if _, ok, err := e.records.Get(t, c); err != nil {
		return StateUnderived, err
	} else if ok {
		return StateDerived, nil
	}
	if claimed, err := e.records.HasClaim(t, c); err != nil {
		return StateUnderived, err
	} else if claimed {
		return StateInProgress, nil
	}
	return StateUnderived, nil
}

// CountUnderived returns how many ancestors of c (including c itself) still
// need deriving for type t. No claims are taken.
func (e *Engine) CountUnderived(ctx context.Context, c id.CommitId, t id.DerivedDataType) (int, error) {
	d, err := e.deriver(t)
	if err != nil {
		return 0, err
	}
	plan, err := e.planFrontier(ctx, c, d)
	if err != nil {
		return 0, err
	}
	return len(plan), nil
}

// --------------------------------------------------------------------------
// Bulk Operations (per-item results, item failures isolated)
// --------------------------------------------------------------------------

// DeriveResult is the per-commit outcome of DeriveAll.
type DeriveResult struct {
	Commit id.CommitId
	Value  []byte
	Err    error
}

// DeriveAll derives every commit in the list, returning one result per input
// in input order. A failing item does not stop the remaining items.
func (e *Engine) DeriveAll(ctx context.Context, commits []id.CommitId, t id.DerivedDataType) []DeriveResult {
	results := make([]DeriveResult, len(commits))
	for i, c := range commits {
		value, err := e.Derive(ctx, c, t)
		results[i] = DeriveResult{Commit: c, Value: value, Err: err}
	}
	return results
}

// ExistsResult is the per-commit outcome of ExistsAll.
type ExistsResult struct {
	Commit id.CommitId
	State  State
	Err    error
}

// ExistsAll reports the state of every commit in the list.
func (e *Engine) ExistsAll(commits []id.CommitId, t id.DerivedDataType) []ExistsResult {
	results := make([]ExistsResult, len(commits))
	for i, c := range commits {
		state, err := e.Exists(c, t)
		results[i] = ExistsResult{Commit: c, State: state, Err: err}
	}
	return results
}

// FetchResult is the per-commit outcome of FetchAll.
type FetchResult struct {
	Commit id.CommitId
	Value  []byte
	Ok     bool
	Err    error
}

// FetchAll fetches the derived value of every commit in the list.
func (e *Engine) FetchAll(ctx context.Context, commits []id.CommitId, t id.DerivedDataType) []FetchResult {
	results := make([]FetchResult, len(commits))
	for i, c := range commits {
		value, ok, err := e.Fetch(ctx, c, t)
		results[i] = FetchResult{Commit: c, Value: value, Ok: ok, Err: err}
	}
	return results
}

// CountResult is the per-commit outcome of CountUnderivedAll.
type CountResult struct {
	Commit id.CommitId
	Count  int
	Err    error
}

// CountUnderivedAll counts underived ancestors for every commit in the list.
func (e *Engine) CountUnderivedAll(ctx context.Context, commits []id.CommitId, t id.DerivedDataType) []CountResult {
	results := make([]CountResult, len(commits))
	for i, c := range commits {
		count, err := e.CountUnderived(ctx, c, t)
		results[i] = CountResult{Commit: c, Count: count, Err: err}
	}
	return results
}

// --------------------------------------------------------------------------
// Frontier Planning
// --------------------------------------------------------------------------

// planFrontier walks the ancestry of c and returns the underived commits in
// dependency order (parents before children). The walk uses an explicit
// stack with a visited set, so diamond ancestries are visited once. It is
// bounded by FanOutLimit per commit and MaxFrontier in total.
func (e *Engine) planFrontier(ctx context.Context, c id.CommitId, d Deriver) ([]id.CommitId, error) {
	t := d.Type()

	type frame struct {
		commit   id.CommitId
		expanded bool
	}

	var order []id.CommitId
	visited := make(map[id.CommitId]struct{})
	stack := []frame{{commit: c}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// second visit: all parents are scheduled before this commit
		if f.expanded {
			order = append(order, f.commit)
			continue
		}
		if _, seen := visited[f.commit]; seen {
			continue
		}

		if _, derived, err := e.records.Get(t, f.commit); err != nil {
			return nil, err
		} else if derived {
			continue
		}

		visited[f.commit] = struct{}{}
		if len(visited) > e.opts.MaxFrontier {
			return nil, NewError(ErrCTimeout,
				fmt.Sprintf("underived ancestry of %s exceeds limit of %d commits", c.Short(), e.opts.MaxFrontier))
		}

		parents, err := e.graph.ListParents(f.commit)
		if err != nil {
			if errors.Is(err, scm.ErrNotFound) {
				return nil, WrapError(ErrCNotFound, fmt.Sprintf("commit %s", f.commit.Short()), err)
			}
			return nil, err
		}
		if len(parents) > e.opts.FanOutLimit {
			return nil, NewError(ErrCTimeout,
				fmt.Sprintf("commit %s has %d parents, limit is %d", f.commit.Short(), len(parents), e.opts.FanOutLimit))
		}
		if d.ParentOrder() == FirstParentOnly && len(parents) > 1 {
			parents = parents[:1]
		}

		stack = append(stack, frame{commit: f.commit, expanded: true})
		// reversed so the first parent is expanded first
		for i := len(parents) - 1; i >= 0; i-- {
			stack = append(stack, frame{commit: parents[i]})
		}
	}

	return order, nil
}

// --------------------------------------------------------------------------
// Single-Commit Derivation
// --------------------------------------------------------------------------

// deriveOne makes (cid, d) Derived: it claims the commit and computes, or
// waits for whoever holds the claim. Parents must already be Derived.
func (e *Engine) deriveOne(ctx context.Context, cid id.CommitId, d Deriver) error {
	t := d.Type()
	deadline := time.Now().Add(e.opts.WaitTimeout)

	for {
		// someone may have finished it while we waited
		if _, ok, err := e.records.Get(t, cid); err != nil {
			return err
		} else if ok {
			return nil
		}

		acquired, token, err := e.leases.Acquire(ClaimKey(t, cid), e.opts.LeaseTTL)
		if err != nil {
			return fmt.Errorf("acquiring claim for %s:%s: %w", t, cid.Short(), err)
		}
		if acquired {
			return e.computeAndCommit(ctx, cid, d, token)
		}

		// claim held elsewhere, poll until it resolves
		claimConflicts.Inc()
		if time.Now().After(deadline) {
			return NewError(ErrCTimeout,
				fmt.Sprintf("timed out after %s waiting for claim on %s:%s", e.opts.WaitTimeout, t, cid.Short()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.opts.PollInterval):
		}
	}
}

// computeAndCommit runs the deriver for a claimed commit and persists the
// outcome. The claim is renewed on a heartbeat while computing and released
// on every path out. On compute failure no record is written, so the commit
// reverts to Underived.
func (e *Engine) computeAndCommit(ctx context.Context, cid id.CommitId, d Deriver, token []byte) error {
	t := d.Type()
	claimKey := ClaimKey(t, cid)

	// heartbeat keeps the claim alive for as long as the compute takes
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(e.opts.RenewEvery)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ok, err := e.leases.Renew(claimKey, token, e.opts.LeaseTTL)
				if err != nil || !ok {
					log.Warningf("lost claim on %s:%s during compute (ok=%v err=%v)", t, cid.Short(), ok, err)
					return
				}
			}
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
		if _, err := e.leases.Release(claimKey, token); err != nil {
			log.Warningf("releasing claim on %s:%s failed: %v", t, cid.Short(), err)
		}
	}()

	value, err := e.compute(ctx, cid, d)
	if err != nil {
		computeErrors.Inc()
		return err
	}
	computeCount.Inc()

	// value first, then the record: a record must never point at a value
	// that no tier and no loader can produce
	key, err := e.valueKey(t, cid)
	if err != nil {
		return err
	}
	e.cache.Fill(key, value)
	return e.records.MarkDerived(t, cid, sha256.Sum256(value))
}

// compute gathers the parent values and runs the deriver.
func (e *Engine) compute(ctx context.Context, cid id.CommitId, d Deriver) ([]byte, error) {
	commit, err := e.graph.GetCommit(cid)
	if err != nil {
		if errors.Is(err, scm.ErrNotFound) {
			return nil, WrapError(ErrCNotFound, fmt.Sprintf("commit %s", cid.Short()), err)
		}
		return nil, err
	}

	parents := commit.Parents
	if d.ParentOrder() == FirstParentOnly && len(parents) > 1 {
		parents = parents[:1]
	}
	parentValues := make([][]byte, len(parents))
	for i, p := range parents {
		parentValues[i], err = e.fetchValue(ctx, p, d)
		if err != nil {
			return nil, err
		}
	}

	value, err := d.Compute(ctx, commit, parentValues)
	if err != nil {
		return nil, WrapError(ErrCCompute, fmt.Sprintf("%s for commit %s", d.Type(), cid.Short()), err)
	}
	return value, nil
}

// fetchValue serves the derived value for a commit through the cache. The
// loader recomputes from the graph, so a value survives even if every cache
// tier lost it.
func (e *Engine) fetchValue(ctx context.Context, cid id.CommitId, d Deriver) ([]byte, error) {
	key, err := e.valueKey(d.Type(), cid)
	if err != nil {
		return nil, err
	}
	return e.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		return e.compute(ctx, cid, d)
	})
}

// ValueKey is the versioned cache key under which the derived value of (t, c)
// is stored. The validator and operator tooling use it to address a served
// value directly.
func ValueKey(t id.DerivedDataType, c id.CommitId) (string, error) {
	key, err := keygen.KeyOf("dds."+t.Name, t.Version, c.String())
	if err != nil {
		return "", WrapError(ErrCEncoding, fmt.Sprintf("key for %s:%s", t, c.Short()), err)
	}
	return key, nil
}

func (e *Engine) valueKey(t id.DerivedDataType, c id.CommitId) (string, error) {
	return ValueKey(t, c)
}

// deriver resolves a type to its registered deriver, checking enablement and
// version agreement.
func (e *Engine) deriver(t id.DerivedDataType) (Deriver, error) {
	d, ok := e.registry.Get(t.Name)
	if !ok {
		return nil, NewError(ErrCNotFound, fmt.Sprintf("derived data type %q is not registered or disabled", t.Name))
	}
	if d.Type() != t {
		return nil, NewError(ErrCNotFound,
			fmt.Sprintf("requested %s but registered deriver is %s", t, d.Type()))
	}
	return d, nil
}
