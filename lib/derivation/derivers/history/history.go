// Package history derives a compact per-commit history summary: the
// generation number along the first-parent chain plus a rolling hash of the
// chain. The first parent is privileged; merge side branches do not
// contribute, which keeps the summary linear in repository age.
package history

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dDS/lib/derivation"
	"github.com/ValentinKolb/dDS/lib/id"
	"github.com/ValentinKolb/dDS/lib/scm"
)

// TypeName is the registered name of this derived data type.
const TypeName = "history"

// Version is bumped whenever the summary computation changes.
const Version uint32 = 1

// Summary is the decoded derived value.
type Summary struct {
	// Generation is the distance to the root along first parents.
	Generation uint64
	// Hash is the rolling hash of (commit id, first-parent hash).
	Hash [32]byte
}

const summarySize = 8 + 32

// Encode returns the canonical wire form of the summary.
func (s Summary) Encode() []byte {
	buf := make([]byte, summarySize)
	binary.BigEndian.PutUint64(buf[:8], s.Generation)
	copy(buf[8:], s.Hash[:])
	return buf
}

// Decode parses a summary from its wire form.
func Decode(data []byte) (Summary, error) {
	if len(data) != summarySize {
		return Summary{}, fmt.Errorf("history summary has %d bytes, want %d", len(data), summarySize)
	}
	var s Summary
	s.Generation = binary.BigEndian.Uint64(data[:8])
	copy(s.Hash[:], data[8:])
	return s, nil
}

type deriver struct{}

// New creates the history summary deriver.
func New() derivation.Deriver {
	return deriver{}
}

func (deriver) Type() id.DerivedDataType {
	return id.NewType(TypeName, Version)
}

// ParentOrder is FirstParentOnly: only the first parent's summary feeds the
// computation.
func (deriver) ParentOrder() derivation.ParentOrder {
	return derivation.FirstParentOnly
}

// Compute extends the first parent's summary by one generation. Root commits
// start at generation zero with an empty parent hash.
func (deriver) Compute(_ context.Context, commit scm.Commit, parents [][]byte) ([]byte, error) {
	var s Summary
	if len(parents) > 0 {
		parent, err := Decode(parents[0])
		if err != nil {
			return nil, fmt.Errorf("parent summary of %s: %w", commit.Id.Short(), err)
		}
		s.Generation = parent.Generation + 1
		s.Hash = rollHash(commit.Id, parent.Hash)
	} else {
		s.Hash = rollHash(commit.Id, [32]byte{})
	}
	return s.Encode(), nil
}

func rollHash(c id.CommitId, parent [32]byte) [32]byte {
	h := sha256.New()
	h.Write(c[:])
	h.Write(parent[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
