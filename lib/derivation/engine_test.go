package derivation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dDS/lib/cache"
	"github.com/ValentinKolb/dDS/lib/db"
	"github.com/ValentinKolb/dDS/lib/db/engines/arbor"
	"github.com/ValentinKolb/dDS/lib/derivation"
	"github.com/ValentinKolb/dDS/lib/derivation/derivers/manifestdigest"
	"github.com/ValentinKolb/dDS/lib/id"
	"github.com/ValentinKolb/dDS/lib/lease"
	"github.com/ValentinKolb/dDS/lib/scm"
	"github.com/ValentinKolb/dDS/lib/scm/memgraph"
	"github.com/ValentinKolb/dDS/lib/store"
	"github.com/ValentinKolb/dDS/lib/store/lstore"
)

// --------------------------------------------------------------------------
// Test Fixtures
// --------------------------------------------------------------------------

var cacheSeq atomic.Uint64

func newTier() store.IStore {
	return lstore.NewLocalStore(func() db.KVDB { return arbor.NewArborDB(nil) })
}

// countingDeriver wraps another deriver and records every Compute call.
type countingDeriver struct {
	derivation.Deriver

	mu       sync.Mutex
	computed []id.CommitId
	delay    time.Duration
	failOn   map[id.CommitId]error
}

func newCountingDeriver() *countingDeriver {
	return &countingDeriver{Deriver: manifestdigest.New(), failOn: map[id.CommitId]error{}}
}

func (d *countingDeriver) Compute(ctx context.Context, commit scm.Commit, parents [][]byte) ([]byte, error) {
	d.mu.Lock()
	d.computed = append(d.computed, commit.Id)
	d.mu.Unlock()
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if err := d.failOn[commit.Id]; err != nil {
		return nil, err
	}
	return d.Deriver.Compute(ctx, commit, parents)
}

func (d *countingDeriver) calls() []id.CommitId {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]id.CommitId, len(d.computed))
	copy(out, d.computed)
	return out
}

type fixture struct {
	graph   *memgraph.Graph
	engine  *derivation.Engine
	records store.IStore
	deriver *countingDeriver
}

func newFixture(t *testing.T, opts derivation.Options) *fixture {
	t.Helper()
	graph := memgraph.New()
	deriver := newCountingDeriver()
	registry := derivation.NewRegistry()
	registry.Register(deriver)

	c := cache.New(newTier(), newTier(), cache.Options{
		Name: fmt.Sprintf("engine-test-%d", cacheSeq.Add(1)),
	})
	records := newTier()

	return &fixture{
		graph:   graph,
		engine:  derivation.NewEngine(graph, c, records, registry, opts),
		records: records,
		deriver: deriver,
	}
}

func digestType() id.DerivedDataType {
	return id.NewType(manifestdigest.TypeName, manifestdigest.Version)
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestDeriveLinearChain(t *testing.T) {
	fx := newFixture(t, derivation.Options{})
	chain, err := fx.graph.AddChain(id.CommitId{}, 5)
	if err != nil {
		t.Fatal(err)
	}
	head := chain[len(chain)-1]

	value, err := fx.engine.Derive(context.Background(), head, digestType())
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	if len(value) == 0 {
		t.Fatal("expected a derived value")
	}

	// every commit computed exactly once, parents before children
	calls := fx.deriver.calls()
	if len(calls) != len(chain) {
		t.Fatalf("expected %d computes, got %d", len(chain), len(calls))
	}
	for i, c := range chain {
		if calls[i] != c {
			t.Fatalf("compute %d: expected %s, got %s", i, c.Short(), calls[i].Short())
		}
	}
}

func TestDeriveIdempotent(t *testing.T) {
	fx := newFixture(t, derivation.Options{})
	chain, _ := fx.graph.AddChain(id.CommitId{}, 3)
	head := chain[len(chain)-1]

	first, err := fx.engine.Derive(context.Background(), head, digestType())
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	computes := len(fx.deriver.calls())

	second, err := fx.engine.Derive(context.Background(), head, digestType())
	if err != nil {
		t.Fatalf("second Derive failed: %v", err)
	}
	if string(first) != string(second) {
		t.Error("derive is not deterministic across calls")
	}
	if n := len(fx.deriver.calls()); n != computes {
		t.Errorf("second derive recomputed: %d -> %d computes", computes, n)
	}
}

func TestDeriveDiamond(t *testing.T) {
	fx := newFixture(t, derivation.Options{})
	manifest := []scm.ManifestEntry{{Path: "f", Blob: id.NewCommitId([]byte("blob"))}}

	a, _ := fx.graph.AddCommit(nil, manifest, "a")
	b, _ := fx.graph.AddCommit([]id.CommitId{a}, manifest, "b")
	c, _ := fx.graph.AddCommit([]id.CommitId{a}, manifest, "c")
	d, _ := fx.graph.AddCommit([]id.CommitId{b, c}, manifest, "d")

	if _, err := fx.engine.Derive(context.Background(), d, digestType()); err != nil {
		t.Fatalf("Derive failed: %v", err)
	}

	calls := fx.deriver.calls()
	if len(calls) != 4 {
		t.Fatalf("diamond must compute each commit once, got %d computes", len(calls))
	}
	pos := map[id.CommitId]int{}
	for i, cid := range calls {
		pos[cid] = i
	}
	if pos[a] > pos[b] || pos[a] > pos[c] || pos[b] > pos[d] || pos[c] > pos[d] {
		t.Errorf("dependency order violated: %v", calls)
	}
}

func TestDeriveConcurrentSingleCompute(t *testing.T) {
	fx := newFixture(t, derivation.Options{PollInterval: 5 * time.Millisecond})
	fx.deriver.delay = 50 * time.Millisecond
	chain, _ := fx.graph.AddChain(id.CommitId{}, 1)
	head := chain[0]

	const callers = 8
	var wg sync.WaitGroup
	values := make([][]byte, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			values[i], errs[i] = fx.engine.Derive(context.Background(), head, digestType())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d failed: %v", i, errs[i])
		}
		if string(values[i]) != string(values[0]) {
			t.Errorf("caller %d got a different value", i)
		}
	}
	if n := len(fx.deriver.calls()); n != 1 {
		t.Errorf("expected exactly 1 compute under %d concurrent callers, got %d", callers, n)
	}
}

func TestExistsAndCountUnderived(t *testing.T) {
	fx := newFixture(t, derivation.Options{})
	chain, _ := fx.graph.AddChain(id.CommitId{}, 4)
	head := chain[len(chain)-1]
	ctx := context.Background()

	if state, err := fx.engine.Exists(head, digestType()); err != nil || state != derivation.StateUnderived {
		t.Fatalf("expected Underived before derive, got %s (err=%v)", state, err)
	}
	if n, err := fx.engine.CountUnderived(ctx, head, digestType()); err != nil || n != 4 {
		t.Fatalf("expected 4 underived, got %d (err=%v)", n, err)
	}

	if _, err := fx.engine.Derive(ctx, chain[1], digestType()); err != nil {
		t.Fatal(err)
	}
	if n, _ := fx.engine.CountUnderived(ctx, head, digestType()); n != 2 {
		t.Errorf("expected 2 underived after partial derive, got %d", n)
	}

	if _, err := fx.engine.Derive(ctx, head, digestType()); err != nil {
		t.Fatal(err)
	}
	if state, _ := fx.engine.Exists(head, digestType()); state != derivation.StateDerived {
		t.Errorf("expected Derived, got %s", state)
	}
	if n, _ := fx.engine.CountUnderived(ctx, head, digestType()); n != 0 {
		t.Errorf("expected 0 underived after derive, got %d", n)
	}
}

func TestFetchWithoutDerive(t *testing.T) {
	fx := newFixture(t, derivation.Options{})
	chain, _ := fx.graph.AddChain(id.CommitId{}, 1)

	_, ok, err := fx.engine.Fetch(context.Background(), chain[0], digestType())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if ok {
		t.Error("Fetch must not report a value for an underived commit")
	}
	if n := len(fx.deriver.calls()); n != 0 {
		t.Errorf("Fetch must not derive, got %d computes", n)
	}
}

func TestRederiveResets(t *testing.T) {
	fx := newFixture(t, derivation.Options{})
	chain, _ := fx.graph.AddChain(id.CommitId{}, 2)
	head := chain[1]
	ctx := context.Background()

	first, err := fx.engine.Derive(ctx, head, digestType())
	if err != nil {
		t.Fatal(err)
	}
	before := len(fx.deriver.calls())

	second, err := fx.engine.Rederive(ctx, head, digestType())
	if err != nil {
		t.Fatalf("Rederive failed: %v", err)
	}
	if string(first) != string(second) {
		t.Error("deterministic deriver must reproduce the same value")
	}
	// only the head is recomputed, ancestors keep their records
	if n := len(fx.deriver.calls()); n != before+1 {
		t.Errorf("expected exactly 1 extra compute, got %d", n-before)
	}
}

func TestComputeFailureRevertsToUnderived(t *testing.T) {
	fx := newFixture(t, derivation.Options{})
	chain, _ := fx.graph.AddChain(id.CommitId{}, 2)
	head := chain[1]
	ctx := context.Background()

	boom := errors.New("boom")
	fx.deriver.failOn[head] = boom

	_, err := fx.engine.Derive(ctx, head, digestType())
	if !derivation.IsCode(err, derivation.ErrCCompute) {
		t.Fatalf("expected ComputeError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("underlying cause not preserved: %v", err)
	}

	// the failed head reverts to Underived, the successful parent stays
	if state, _ := fx.engine.Exists(head, digestType()); state != derivation.StateUnderived {
		t.Errorf("expected Underived after failure, got %s", state)
	}
	if state, _ := fx.engine.Exists(chain[0], digestType()); state != derivation.StateDerived {
		t.Errorf("expected parent to stay Derived, got %s", state)
	}

	// clearing the failure lets a retry succeed
	delete(fx.deriver.failOn, head)
	if _, err := fx.engine.Derive(ctx, head, digestType()); err != nil {
		t.Errorf("retry after failure must succeed: %v", err)
	}
}

func TestDeriveWaitTimeoutOnStuckClaim(t *testing.T) {
	fx := newFixture(t, derivation.Options{
		WaitTimeout:  100 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	})
	chain, _ := fx.graph.AddChain(id.CommitId{}, 1)
	head := chain[0]

	// park a foreign claim on the commit, as a crashed worker would
	mgr := lease.NewManager(fx.records)
	key := derivation.ClaimKey(digestType(), head)
	if ok, _, err := mgr.Acquire(key, time.Hour); err != nil || !ok {
		t.Fatalf("could not park claim: ok=%v err=%v", ok, err)
	}

	if state, _ := fx.engine.Exists(head, digestType()); state != derivation.StateInProgress {
		t.Errorf("expected InProgress while claim is held, got %s", state)
	}

	_, err := fx.engine.Derive(context.Background(), head, digestType())
	if !derivation.IsCode(err, derivation.ErrCTimeout) {
		t.Fatalf("expected Timeout waiting on stuck claim, got %v", err)
	}
}

func TestDeriveClaimTakeoverAfterExpiry(t *testing.T) {
	fx := newFixture(t, derivation.Options{
		WaitTimeout:  time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	chain, _ := fx.graph.AddChain(id.CommitId{}, 1)
	head := chain[0]

	// a crashed worker's claim expires after its short ttl
	mgr := lease.NewManager(fx.records)
	key := derivation.ClaimKey(digestType(), head)
	if ok, _, err := mgr.Acquire(key, 50*time.Millisecond); err != nil || !ok {
		t.Fatalf("could not park claim: ok=%v err=%v", ok, err)
	}

	value, err := fx.engine.Derive(context.Background(), head, digestType())
	if err != nil {
		t.Fatalf("Derive must take over an expired claim: %v", err)
	}
	if len(value) == 0 {
		t.Fatal("expected a derived value")
	}
}

func TestDeriveFanOutLimit(t *testing.T) {
	fx := newFixture(t, derivation.Options{FanOutLimit: 2})
	manifest := []scm.ManifestEntry{{Path: "f", Blob: id.NewCommitId([]byte("blob"))}}

	var parents []id.CommitId
	for i := 0; i < 3; i++ {
		p, _ := fx.graph.AddCommit(nil, manifest, fmt.Sprintf("p%d", i))
		parents = append(parents, p)
	}
	wide, _ := fx.graph.AddCommit(parents, manifest, "octopus")

	_, err := fx.engine.Derive(context.Background(), wide, digestType())
	if !derivation.IsCode(err, derivation.ErrCTimeout) {
		t.Fatalf("expected limit error for %d parents, got %v", len(parents), err)
	}
}

func TestDeriveMaxFrontier(t *testing.T) {
	fx := newFixture(t, derivation.Options{MaxFrontier: 3})
	chain, _ := fx.graph.AddChain(id.CommitId{}, 5)

	_, err := fx.engine.Derive(context.Background(), chain[len(chain)-1], digestType())
	if !derivation.IsCode(err, derivation.ErrCTimeout) {
		t.Fatalf("expected frontier limit error, got %v", err)
	}
}

func TestDeriveUnknownType(t *testing.T) {
	fx := newFixture(t, derivation.Options{})
	chain, _ := fx.graph.AddChain(id.CommitId{}, 1)

	_, err := fx.engine.Derive(context.Background(), chain[0], id.NewType("no-such-type", 1))
	if !derivation.IsCode(err, derivation.ErrCNotFound) {
		t.Fatalf("expected NotFound for unknown type, got %v", err)
	}

	// a version mismatch is also a miss, not a silent cross-version answer
	_, err = fx.engine.Derive(context.Background(), chain[0], id.NewType(manifestdigest.TypeName, manifestdigest.Version+1))
	if !derivation.IsCode(err, derivation.ErrCNotFound) {
		t.Fatalf("expected NotFound for version mismatch, got %v", err)
	}

	// Rederive runs the same enablement check before touching any record
	_, err = fx.engine.Rederive(context.Background(), chain[0], id.NewType("no-such-type", 1))
	if !derivation.IsCode(err, derivation.ErrCNotFound) {
		t.Fatalf("expected NotFound for Rederive of unknown type, got %v", err)
	}
}

func TestDeriveDisabledType(t *testing.T) {
	fx := newFixture(t, derivation.Options{})
	chain, _ := fx.graph.AddChain(id.CommitId{}, 1)

	fx.engine.Registry().SetEnabled(manifestdigest.TypeName, false)
	if _, err := fx.engine.Derive(context.Background(), chain[0], digestType()); !derivation.IsCode(err, derivation.ErrCNotFound) {
		t.Fatalf("expected NotFound for disabled type, got %v", err)
	}

	fx.engine.Registry().SetEnabled(manifestdigest.TypeName, true)
	if _, err := fx.engine.Derive(context.Background(), chain[0], digestType()); err != nil {
		t.Fatalf("re-enabled type must derive: %v", err)
	}
}

func TestDeriveMissingCommit(t *testing.T) {
	fx := newFixture(t, derivation.Options{})

	missing := id.NewCommitId([]byte("never added"))
	_, err := fx.engine.Derive(context.Background(), missing, digestType())
	if !derivation.IsCode(err, derivation.ErrCNotFound) {
		t.Fatalf("expected NotFound for missing commit, got %v", err)
	}
	if !errors.Is(err, scm.ErrNotFound) {
		t.Errorf("graph sentinel not preserved: %v", err)
	}
}

func TestBulkOperationsIsolateFailures(t *testing.T) {
	fx := newFixture(t, derivation.Options{})
	chain, _ := fx.graph.AddChain(id.CommitId{}, 2)
	missing := id.NewCommitId([]byte("never added"))
	ctx := context.Background()

	commits := []id.CommitId{chain[0], missing, chain[1]}

	results := fx.engine.DeriveAll(ctx, commits, digestType())
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("valid items must succeed: %v / %v", results[0].Err, results[2].Err)
	}
	if !derivation.IsCode(results[1].Err, derivation.ErrCNotFound) {
		t.Errorf("missing item must fail with NotFound, got %v", results[1].Err)
	}

	existsResults := fx.engine.ExistsAll(commits, digestType())
	if existsResults[0].State != derivation.StateDerived || existsResults[2].State != derivation.StateDerived {
		t.Error("expected derived states for valid items")
	}
	// Exists is a record lookup, a missing commit simply has no record
	if existsResults[1].Err != nil || existsResults[1].State != derivation.StateUnderived {
		t.Errorf("expected Underived for missing commit, got %s (err=%v)",
			existsResults[1].State, existsResults[1].Err)
	}

	fetchResults := fx.engine.FetchAll(ctx, commits, digestType())
	if !fetchResults[0].Ok || !fetchResults[2].Ok {
		t.Error("expected fetch hits for derived items")
	}
	if fetchResults[1].Ok {
		t.Error("expected fetch miss for missing commit")
	}

	countResults := fx.engine.CountUnderivedAll(ctx, commits, digestType())
	if countResults[0].Count != 0 || countResults[2].Count != 0 {
		t.Error("expected 0 underived for derived items")
	}
	if !derivation.IsCode(countResults[1].Err, derivation.ErrCNotFound) {
		t.Errorf("expected NotFound counting missing commit, got %v", countResults[1].Err)
	}
}

func TestDeriveContextCancelled(t *testing.T) {
	fx := newFixture(t, derivation.Options{})
	chain, _ := fx.graph.AddChain(id.CommitId{}, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fx.engine.Derive(ctx, chain[len(chain)-1], digestType()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
