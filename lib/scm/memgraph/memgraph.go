package memgraph

import (
	"fmt"

	"github.com/ValentinKolb/dDS/lib/id"
	"github.com/ValentinKolb/dDS/lib/scm"
	"github.com/puzpuzpuz/xsync/v3"
)

// Graph is an in-memory commit graph plus blob store.
type Graph struct {
	commits   *xsync.MapOf[id.CommitId, scm.Commit]
	blobs     *xsync.MapOf[id.CommitId, []byte]
	bookmarks *xsync.MapOf[string, id.CommitId]
}

// New creates an empty in-memory graph.
func New() *Graph {
	return &Graph{
		commits:   xsync.NewMapOf[id.CommitId, scm.Commit](),
		blobs:     xsync.NewMapOf[id.CommitId, []byte](),
		bookmarks: xsync.NewMapOf[string, id.CommitId](),
	}
}

// --------------------------------------------------------------------------
// Graph construction (test-side API, not part of scm.Graph)
// --------------------------------------------------------------------------

// AddCommit creates a commit with the given parents and manifest, assigns it
// its content hash id and stores it. Parents must already exist.
func (g *Graph) AddCommit(parents []id.CommitId, manifest []scm.ManifestEntry, message string) (id.CommitId, error) {
	for _, p := range parents {
		if _, ok := g.commits.Load(p); !ok {
			return id.CommitId{}, fmt.Errorf("parent %s: %w", p.Short(), scm.ErrNotFound)
		}
	}
	c := scm.Commit{
		Parents:  parents,
		Manifest: manifest,
		Author:   "memgraph",
		Message:  message,
	}
	c.Id = id.NewCommitId(c.ContentBytes())
	g.commits.Store(c.Id, c)
	return c.Id, nil
}

// AddChain appends n linear commits on top of the given parent (or a new root
// if parent is zero) and returns the created ids, oldest first.
func (g *Graph) AddChain(parent id.CommitId, n int) ([]id.CommitId, error) {
	ids := make([]id.CommitId, 0, n)
	for i := 0; i < n; i++ {
		var parents []id.CommitId
		if !parent.IsZero() {
			parents = []id.CommitId{parent}
		}
		manifest := []scm.ManifestEntry{
			{Path: "file.txt", Blob: id.NewCommitId([]byte(fmt.Sprintf("content-%s-%d", parent.Short(), i)))},
		}
		c, err := g.AddCommit(parents, manifest, fmt.Sprintf("commit %d", i))
		if err != nil {
			return nil, err
		}
		ids = append(ids, c)
		parent = c
	}
	return ids, nil
}

// SetBookmark points the named bookmark at the given commit.
func (g *Graph) SetBookmark(name string, target id.CommitId) {
	g.bookmarks.Store(name, target)
}

// --------------------------------------------------------------------------
// scm.Graph Implementation
// --------------------------------------------------------------------------

func (g *Graph) GetCommit(commit id.CommitId) (scm.Commit, error) {
	c, ok := g.commits.Load(commit)
	if !ok {
		return scm.Commit{}, fmt.Errorf("commit %s: %w", commit.Short(), scm.ErrNotFound)
	}
	return c, nil
}

func (g *Graph) ListParents(commit id.CommitId) ([]id.CommitId, error) {
	c, ok := g.commits.Load(commit)
	if !ok {
		return nil, fmt.Errorf("commit %s: %w", commit.Short(), scm.ErrNotFound)
	}
	parents := make([]id.CommitId, len(c.Parents))
	copy(parents, c.Parents)
	return parents, nil
}

func (g *Graph) GetBookmark(name string) (id.CommitId, error) {
	target, ok := g.bookmarks.Load(name)
	if !ok {
		return id.CommitId{}, fmt.Errorf("bookmark %q: %w", name, scm.ErrNotFound)
	}
	return target, nil
}

// --------------------------------------------------------------------------
// scm.BlobStore Implementation
// --------------------------------------------------------------------------

func (g *Graph) Get(hash id.CommitId) ([]byte, error) {
	b, ok := g.blobs.Load(hash)
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", hash.Short(), scm.ErrNotFound)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (g *Graph) Put(data []byte) (id.CommitId, error) {
	hash := id.NewCommitId(data)
	stored := make([]byte, len(data))
	copy(stored, data)
	g.blobs.Store(hash, stored)
	return hash, nil
}
