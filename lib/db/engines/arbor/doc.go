// Package arbor implements the db.KVDB interface with a sharded in-memory
// architecture. It is the engine behind the ephemeral local cache tier and the
// default engine in tests.
//
// Architecture:
//
//   - Sharding: Keys are distributed over a fixed number of shards by a seeded
//     FNV-1a hash. Each shard is an independent xsync.MapOf keyed by the full
//     string key, so hash collisions only affect shard placement, never
//     correctness.
//
//   - Deadlines: Entries carry absolute expiration and deletion deadlines in
//     unix milliseconds (see the db package docs). The read path enforces the
//     deadlines on every access, so logical consistency never depends on the
//     garbage collector having run.
//
//   - Garbage Collection: A background goroutine periodically sweeps all
//     shards, physically removing entries past their deletion deadline and
//     dropping the values of expired entries while keeping their metadata (so
//     Has() stays truthful).
//
//   - Write ordering: Every write carries a logical write index. A replayed
//     write with an older index than the stored entry is ignored, which makes
//     the engine safe to feed from a replicated log.
//
//   - Persistence: Save() produces a fuzzy binary snapshot of all shards;
//     Load() restores it. Writes racing a Save may or may not be included, as
//     with the snapshot semantics of the replicated store layer.
//
// Thread-safety: All KVDB methods are safe for concurrent use.
package arbor
