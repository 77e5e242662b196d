package manifestdigest

import (
	"bytes"
	"context"
	"testing"

	"github.com/ValentinKolb/dDS/lib/derivation"
	"github.com/ValentinKolb/dDS/lib/id"
	"github.com/ValentinKolb/dDS/lib/scm"
)

func testCommit(manifest []scm.ManifestEntry) scm.Commit {
	c := scm.Commit{Manifest: manifest, Author: "test", Message: "test"}
	c.Id = id.NewCommitId(c.ContentBytes())
	return c
}

func TestComputeDeterministic(t *testing.T) {
	d := New()
	commit := testCommit([]scm.ManifestEntry{
		{Path: "a.txt", Blob: id.NewCommitId([]byte("a"))},
		{Path: "b.txt", Blob: id.NewCommitId([]byte("b"))},
	})
	parents := [][]byte{[]byte("parent-digest")}

	first, err := d.Compute(context.Background(), commit, parents)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	again, _ := d.Compute(context.Background(), commit, parents)
	if !bytes.Equal(first, again) {
		t.Error("digest not deterministic")
	}
	if len(first) != 32 {
		t.Errorf("expected 32-byte digest, got %d bytes", len(first))
	}
}

func TestComputeManifestOrderIndependent(t *testing.T) {
	d := New()
	a := scm.ManifestEntry{Path: "a.txt", Blob: id.NewCommitId([]byte("a"))}
	b := scm.ManifestEntry{Path: "b.txt", Blob: id.NewCommitId([]byte("b"))}

	first, _ := d.Compute(context.Background(), testCommit([]scm.ManifestEntry{a, b}), nil)
	second, _ := d.Compute(context.Background(), testCommit([]scm.ManifestEntry{b, a}), nil)
	if !bytes.Equal(first, second) {
		t.Error("digest must not depend on manifest entry order")
	}
}

func TestComputeSensitivity(t *testing.T) {
	d := New()
	base := testCommit([]scm.ManifestEntry{{Path: "a.txt", Blob: id.NewCommitId([]byte("a"))}})
	baseDigest, _ := d.Compute(context.Background(), base, nil)

	// changed blob content
	changed := testCommit([]scm.ManifestEntry{{Path: "a.txt", Blob: id.NewCommitId([]byte("x"))}})
	if got, _ := d.Compute(context.Background(), changed, nil); bytes.Equal(got, baseDigest) {
		t.Error("digest must change with blob content")
	}

	// changed parent digest
	if got, _ := d.Compute(context.Background(), base, [][]byte{[]byte("p")}); bytes.Equal(got, baseDigest) {
		t.Error("digest must change with parent digests")
	}

	// parent order matters
	withPQ, _ := d.Compute(context.Background(), base, [][]byte{[]byte("p"), []byte("q")})
	withQP, _ := d.Compute(context.Background(), base, [][]byte{[]byte("q"), []byte("p")})
	if bytes.Equal(withPQ, withQP) {
		t.Error("digest must respect the stored parent order")
	}
}

func TestTypeMetadata(t *testing.T) {
	d := New()
	if d.Type() != id.NewType(TypeName, Version) {
		t.Errorf("unexpected type: %s", d.Type())
	}
	if d.ParentOrder() != derivation.TopoOrdered {
		t.Errorf("expected TopoOrdered, got %s", d.ParentOrder())
	}
}
