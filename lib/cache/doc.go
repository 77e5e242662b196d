// Package cache implements the two-tier cache-aside layer in front of the
// derivation engine. Derived values are immutable once computed, which makes
// aggressive caching safe: a stale entry can only ever be missing, never wrong.
//
// Tier Layout:
//
//   - Local Tier: a process-local store.IStore (typically lstore over the
//     arbor engine). Hit path costs one in-memory lookup.
//
//   - Shared Tier: an optional store.IStore visible to all processes
//     (typically a durable engine or the replicated store). A local miss that
//     hits the shared tier back-fills the local tier.
//
// Stampede Protection:
//
//	Concurrent GetOrLoad calls for the same key within a process are collapsed
//	into a single loader invocation using x/sync singleflight. All callers
//	receive the loader's result, including its error. Failures are never
//	cached; the in-flight marker is cleared when the loader returns, so the
//	next call simply retries.
//
//	Cancelling the caller's context abandons the wait but not the load: the
//	owning loader call runs to completion so its result still lands in both
//	tiers for the next reader.
//
// Degradation:
//
//	Shared-tier failures are absorbed. A failing Get counts as a miss, a
//	failing fill or invalidate is logged and counted, and the cache keeps
//	serving from the local tier and the loader. The loader result is
//	authoritative; within each tier the last writer wins.
//
// Metrics:
//
//	Hit, miss, error and load counters per tier plus an in-flight gauge are
//	exported via the VictoriaMetrics metrics package, labelled with the cache
//	name from Options.
package cache
