// Package verify implements the consistency validator for derived data.
//
// The validator recomputes the value for a (commit, type) pair from the
// authoritative graph and compares its digest against the persisted
// derivation record, then compares the value the cache actually serves
// against the record's digest. Both a diverged record and a corrupted cache
// entry surface as a Mismatch. Parent values are read through the engine
// since their own records authenticate them; the value for the verified
// commit itself is recomputed from scratch, bypassing every cache tier.
//
// The validator never writes. A diverged pair is reported as a Mismatch in
// the Report (and as a *Divergence error via Report.Err); fixing it is an
// explicit operator decision, typically a rederive.
package verify
