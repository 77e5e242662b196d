package derivation

import (
	"fmt"

	"github.com/ValentinKolb/dDS/lib/id"
	"github.com/ValentinKolb/dDS/lib/store"
)

// --------------------------------------------------------------------------
// States
// --------------------------------------------------------------------------

// State describes the derivation progress for a (commit, type) pair.
// Transitions are monotonic: Underived -> InProgress -> Derived. The only way
// back is an explicit Reset (rederive).
type State uint8

const (
	StateUnderived  State = iota // no record, no claim
	StateInProgress              // a worker holds the claim
	StateDerived                 // record persisted with the value digest
)

func (s State) String() string {
	switch s {
	case StateUnderived:
		return "Underived"
	case StateInProgress:
		return "InProgress"
	case StateDerived:
		return "Derived"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// --------------------------------------------------------------------------
// Keys
// --------------------------------------------------------------------------

// RecordKey returns the record store key for a (commit, type) pair.
func RecordKey(t id.DerivedDataType, c id.CommitId) string {
	return fmt.Sprintf("record:%s:%s", t, c)
}

// ClaimKey returns the lease key guarding in-progress derivation for a
// (commit, type) pair. Claims live next to records in the same store so a
// single linearizable store decides every race.
func ClaimKey(t id.DerivedDataType, c id.CommitId) string {
	return fmt.Sprintf("claim:%s:%s", t, c)
}

// --------------------------------------------------------------------------
// Records
// --------------------------------------------------------------------------

// Record is the persisted payload for a Derived (commit, type) pair.
type Record struct {
	State  State
	Digest [32]byte // sha256 of the derived value
}

const recordSize = 1 + 32

func (r Record) encode() []byte {
	buf := make([]byte, recordSize)
	buf[0] = byte(r.State)
	copy(buf[1:], r.Digest[:])
	return buf
}

func decodeRecord(data []byte) (Record, error) {
	if len(data) != recordSize {
		return Record{}, NewError(ErrCEncoding, fmt.Sprintf("record payload has %d bytes, want %d", len(data), recordSize))
	}
	var r Record
	r.State = State(data[0])
	copy(r.Digest[:], data[1:])
	return r, nil
}

// Records persists derivation records in a store.IStore. Only Derived state
// is ever written; InProgress lives in the claim key and Underived is the
// absence of both.
//
// Thread-safety: as safe as the underlying store.
type Records struct {
	store store.IStore
}

// NewRecords creates a record accessor over the given store.
func NewRecords(s store.IStore) *Records {
	return &Records{store: s}
}

// Get returns the record for a (commit, type) pair if one exists.
func (r *Records) Get(t id.DerivedDataType, c id.CommitId) (Record, bool, error) {
	data, ok, err := r.store.Get(RecordKey(t, c))
	if err != nil {
		return Record{}, false, fmt.Errorf("reading record %s:%s: %w", t, c.Short(), err)
	}
	if !ok {
		return Record{}, false, nil
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// MarkDerived persists the Derived record for a (commit, type) pair.
func (r *Records) MarkDerived(t id.DerivedDataType, c id.CommitId, digest [32]byte) error {
	rec := Record{State: StateDerived, Digest: digest}
	if err := r.store.Set(RecordKey(t, c), rec.encode()); err != nil {
		return fmt.Errorf("persisting record %s:%s: %w", t, c.Short(), err)
	}
	return nil
}

// Reset deletes the record for a (commit, type) pair, returning it to
// Underived. Used by rederive.
func (r *Records) Reset(t id.DerivedDataType, c id.CommitId) error {
	if err := r.store.Delete(RecordKey(t, c)); err != nil {
		return fmt.Errorf("resetting record %s:%s: %w", t, c.Short(), err)
	}
	return nil
}

// HasClaim reports whether a derivation claim is currently held for the
// (commit, type) pair.
func (r *Records) HasClaim(t id.DerivedDataType, c id.CommitId) (bool, error) {
	_, ok, err := r.store.Get(ClaimKey(t, c))
	if err != nil {
		return false, fmt.Errorf("reading claim %s:%s: %w", t, c.Short(), err)
	}
	return ok, nil
}
