// Package derivation implements the derived-data engine: on-demand
// computation of per-commit derived values over the commit graph, with
// persisted derivation records and cross-process coordination.
//
// Model:
//
//	A derived data type (lib/id.DerivedDataType) names a deterministic
//	computation over a commit and the derived values of its parents. The
//	computation itself is supplied through the Deriver interface and found
//	via the Registry; the engine never special-cases type names.
//
//	For every (commit, type) pair there is a derivation state:
//
//	  - Underived:  neither record nor claim exists
//	  - InProgress: a worker holds the claim key
//	  - Derived:    a record with the value digest is persisted
//
//	Transitions are monotonic. A failed computation leaves no record, so the
//	pair reverts to Underived and the next attempt retries. Only an explicit
//	Rederive deletes a record.
//
// Coordination:
//
//	Claims are leases (lib/lease) in the record store. The store's atomic
//	SetEIfUnset decides every race: exactly one worker per claim lifetime
//	computes a value, everyone else polls until the record appears or the
//	claim expires. A crashed worker stops renewing its lease, the claim
//	evaporates after one ttl and the commit becomes claimable again.
//
// Traversal:
//
//	Derive walks the ancestry with an explicit stack and a visited set, so
//	diamond-shaped ancestries are visited once. Underived ancestors are
//	derived parents-first. Walks are bounded by a per-commit fan-out limit
//	and a total frontier limit; waits are bounded by the context and the
//	configured wait timeout.
//
// Values:
//
//	Derived values live in the two-tier cache (lib/cache) under versioned
//	keys (lib/keygen); the record store only keeps the sha256 digest. Losing
//	every cache tier loses no data: the cache loader recomputes the value
//	from the graph and the record digest still authenticates it.
package derivation
