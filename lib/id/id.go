package id

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// --------------------------------------------------------------------------
// CommitId
// --------------------------------------------------------------------------

// CommitIdLen is the width of a commit identifier in bytes (sha256).
const CommitIdLen = 32

// CommitId is a fixed-width content hash identifying a node in the commit
// graph. Commit ids are immutable and never destroyed - they are part of the
// permanent history.
type CommitId [CommitIdLen]byte

// NewCommitId hashes the given content into a CommitId.
func NewCommitId(content []byte) CommitId {
	return sha256.Sum256(content)
}

// ParseCommitId parses a hex encoded commit id.
func ParseCommitId(s string) (CommitId, error) {
	var c CommitId
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("invalid commit id %q: %v", s, err)
	}
	if len(b) != CommitIdLen {
		return c, fmt.Errorf("invalid commit id %q: expected %d bytes, got %d", s, CommitIdLen, len(b))
	}
	copy(c[:], b)
	return c, nil
}

// String returns the full hex representation of the commit id.
func (c CommitId) String() string {
	return hex.EncodeToString(c[:])
}

// Short returns a truncated hex prefix suitable for log output.
func (c CommitId) Short() string {
	return c.String()[:12]
}

// IsZero reports whether the commit id is the zero value.
func (c CommitId) IsZero() bool {
	return c == CommitId{}
}

// --------------------------------------------------------------------------
// DerivedDataType
// --------------------------------------------------------------------------

// DerivedDataType names a derivation: a computation producing a cacheable
// value per commit. The version is part of every cache and record key, so
// bumping it invalidates previously derived values without a manual purge.
type DerivedDataType struct {
	Name    string
	Version uint32
}

// NewType creates a DerivedDataType.
func NewType(name string, version uint32) DerivedDataType {
	return DerivedDataType{Name: name, Version: version}
}

// String returns the canonical "name@vN" representation used in keys and logs.
func (t DerivedDataType) String() string {
	return fmt.Sprintf("%s@v%d", t.Name, t.Version)
}

// --------------------------------------------------------------------------
// Bookmark
// --------------------------------------------------------------------------

// Bookmark is a named mutable pointer to a commit. Bookmarks are owned and
// updated by an external writer - dDS only ever reads them.
type Bookmark struct {
	Name   string
	Target CommitId
}

func (b Bookmark) String() string {
	return fmt.Sprintf("%s -> %s", b.Name, b.Target.Short())
}
