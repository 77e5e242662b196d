package scm

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ValentinKolb/dDS/lib/id"
)

// ErrNotFound is returned when a referenced commit, blob or bookmark does not
// exist in the authoritative store. It is surfaced to the caller and never
// retried automatically.
var ErrNotFound = errors.New("scm: not found")

// --------------------------------------------------------------------------
// Commit Value Type
// --------------------------------------------------------------------------

// ManifestEntry maps a repository path to the content hash of the blob stored
// at that path.
type ManifestEntry struct {
	Path string
	Blob id.CommitId
}

// Commit is an immutable node of the commit graph. Parents are ordered; for
// merge commits the stored order is the only parent order derivers may rely
// on.
type Commit struct {
	Id       id.CommitId
	Parents  []id.CommitId
	Manifest []ManifestEntry
	Author   string
	Message  string
}

// ContentBytes returns a canonical byte representation of the commit's own
// content (parents, manifest, metadata). Derivers hash or parse this form, so
// it must be stable: manifest entries are emitted in sorted path order.
func (c Commit) ContentBytes() []byte {
	var sb strings.Builder
	for _, p := range c.Parents {
		fmt.Fprintf(&sb, "parent %s\n", p)
	}
	entries := make([]ManifestEntry, len(c.Manifest))
	copy(entries, c.Manifest)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	for _, e := range entries {
		fmt.Fprintf(&sb, "file %s %s\n", e.Path, e.Blob)
	}
	fmt.Fprintf(&sb, "author %s\n", c.Author)
	fmt.Fprintf(&sb, "message %s\n", c.Message)
	return []byte(sb.String())
}

// --------------------------------------------------------------------------
// Interface Definitions
// --------------------------------------------------------------------------

// Graph is the read interface to the authoritative commit graph.
type Graph interface {
	// GetCommit returns the commit with the given id.
	// Returns ErrNotFound if the commit does not exist.
	GetCommit(commit id.CommitId) (Commit, error)

	// ListParents returns the ordered parent ids of the given commit.
	// Returns ErrNotFound if the commit does not exist.
	ListParents(commit id.CommitId) ([]id.CommitId, error)

	// GetBookmark resolves a bookmark name to its current target commit.
	// Returns ErrNotFound if no bookmark with that name exists.
	GetBookmark(name string) (id.CommitId, error)
}

// BlobStore is the content-addressed blob collaborator. Values are keyed by
// their own hash; a successful Put is immediately readable via Get.
type BlobStore interface {
	// Get returns the blob stored under the given hash.
	// Returns ErrNotFound if no such blob exists.
	Get(hash id.CommitId) ([]byte, error)

	// Put stores the blob and returns its content hash.
	Put(data []byte) (id.CommitId, error)
}
