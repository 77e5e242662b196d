package util

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dDS/lib/codec"
	"github.com/ValentinKolb/dDS/lib/id"
	"github.com/ValentinKolb/dDS/lib/scm"
	"github.com/ValentinKolb/dDS/lib/scm/memgraph"
)

// Snapshot file format (JSON):
//
//	{
//	  "commits": [
//	    {"name": "a", "message": "init",
//	     "files": [{"path": "hello.txt", "content": "hello"}]},
//	    {"name": "b", "parents": ["a"], "message": "update",
//	     "files": [{"path": "hello.txt", "content": "hello world"}]}
//	  ],
//	  "bookmarks": {"main": "b"}
//	}
//
// Commits are loaded in file order; parents reference the names of earlier
// commits. Names exist only in the file, the loaded graph is addressed by
// content hash like any other.
type snapshotFile struct {
	Commits   []snapshotCommit  `json:"commits"`
	Bookmarks map[string]string `json:"bookmarks"`
}

type snapshotCommit struct {
	Name    string              `json:"name"`
	Parents []string            `json:"parents"`
	Files   []snapshotFileEntry `json:"files"`
	Message string              `json:"message"`
}

type snapshotFileEntry struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// LoadGraph reads a graph snapshot file into an in-memory graph. It returns
// the graph plus the name -> commit id mapping assigned during loading.
func LoadGraph(path string) (*memgraph.Graph, map[string]id.CommitId, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading graph snapshot: %w", err)
	}

	var file snapshotFile
	if err := codec.NewJSONCodec().Decode(data, &file); err != nil {
		return nil, nil, fmt.Errorf("parsing graph snapshot %s: %w", path, err)
	}

	graph := memgraph.New()
	names := make(map[string]id.CommitId, len(file.Commits))

	for _, c := range file.Commits {
		if c.Name == "" {
			return nil, nil, fmt.Errorf("graph snapshot %s: commit without a name", path)
		}
		if _, ok := names[c.Name]; ok {
			return nil, nil, fmt.Errorf("graph snapshot %s: duplicate commit name %q", path, c.Name)
		}

		parents := make([]id.CommitId, len(c.Parents))
		for i, p := range c.Parents {
			pid, ok := names[p]
			if !ok {
				return nil, nil, fmt.Errorf("graph snapshot %s: commit %q references unknown parent %q", path, c.Name, p)
			}
			parents[i] = pid
		}

		// file contents go through the blob store, manifests only carry hashes
		manifest := make([]scm.ManifestEntry, len(c.Files))
		for i, f := range c.Files {
			blob, err := graph.Put([]byte(f.Content))
			if err != nil {
				return nil, nil, fmt.Errorf("graph snapshot %s: storing blob for %q: %w", path, f.Path, err)
			}
			manifest[i] = scm.ManifestEntry{Path: f.Path, Blob: blob}
		}

		cid, err := graph.AddCommit(parents, manifest, c.Message)
		if err != nil {
			return nil, nil, fmt.Errorf("graph snapshot %s: adding commit %q: %w", path, c.Name, err)
		}
		names[c.Name] = cid
	}

	for bookmark, name := range file.Bookmarks {
		target, ok := names[name]
		if !ok {
			return nil, nil, fmt.Errorf("graph snapshot %s: bookmark %q references unknown commit %q", path, bookmark, name)
		}
		graph.SetBookmark(bookmark, target)
	}

	return graph, names, nil
}

// ResolveCommit turns a command line argument into a commit id. The argument
// may be a snapshot commit name, a full hex commit id or a bookmark name.
func ResolveCommit(graph *memgraph.Graph, names map[string]id.CommitId, arg string) (id.CommitId, error) {
	if cid, ok := names[arg]; ok {
		return cid, nil
	}
	if cid, err := id.ParseCommitId(arg); err == nil {
		return cid, nil
	}
	if cid, err := graph.GetBookmark(arg); err == nil {
		return cid, nil
	}
	return id.CommitId{}, fmt.Errorf("unknown commit %q (expected a commit name, hex id or bookmark)", arg)
}
