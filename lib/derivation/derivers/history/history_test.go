package history

import (
	"bytes"
	"context"
	"testing"

	"github.com/ValentinKolb/dDS/lib/derivation"
	"github.com/ValentinKolb/dDS/lib/id"
	"github.com/ValentinKolb/dDS/lib/scm"
)

func testCommit(message string, parents ...id.CommitId) scm.Commit {
	c := scm.Commit{Parents: parents, Author: "test", Message: message}
	c.Id = id.NewCommitId(c.ContentBytes())
	return c
}

func TestComputeRoot(t *testing.T) {
	d := New()
	root := testCommit("root")

	value, err := d.Compute(context.Background(), root, nil)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	s, err := Decode(value)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if s.Generation != 0 {
		t.Errorf("root generation must be 0, got %d", s.Generation)
	}
	if s.Hash == ([32]byte{}) {
		t.Error("root hash must not be zero")
	}
}

func TestComputeChainGenerations(t *testing.T) {
	d := New()
	ctx := context.Background()

	prev := testCommit("root")
	value, err := d.Compute(ctx, prev, nil)
	if err != nil {
		t.Fatal(err)
	}
	for gen := uint64(1); gen <= 5; gen++ {
		commit := testCommit("child", prev.Id)
		value, err = d.Compute(ctx, commit, [][]byte{value})
		if err != nil {
			t.Fatalf("Compute at generation %d failed: %v", gen, err)
		}
		s, err := Decode(value)
		if err != nil {
			t.Fatal(err)
		}
		if s.Generation != gen {
			t.Errorf("expected generation %d, got %d", gen, s.Generation)
		}
		prev = commit
	}
}

func TestComputeFirstParentPrivileged(t *testing.T) {
	d := New()
	ctx := context.Background()

	root := testCommit("root")
	rootValue, _ := d.Compute(ctx, root, nil)

	// FirstParentOnly derivers receive a single parent value; the summary of
	// a merge depends only on it
	merge := testCommit("merge", root.Id, id.NewCommitId([]byte("side")))
	mergeValue, err := d.Compute(ctx, merge, [][]byte{rootValue})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	s, _ := Decode(mergeValue)
	if s.Generation != 1 {
		t.Errorf("merge generation must follow the first parent, got %d", s.Generation)
	}
	if d.ParentOrder() != derivation.FirstParentOnly {
		t.Errorf("expected FirstParentOnly, got %s", d.ParentOrder())
	}
}

func TestSummaryRoundTrip(t *testing.T) {
	s := Summary{Generation: 42}
	copy(s.Hash[:], bytes.Repeat([]byte{0xAB}, 32))

	decoded, err := Decode(s.Encode())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded != s {
		t.Errorf("round trip mismatch: %+v vs %+v", decoded, s)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode([]byte("short")); err == nil {
		t.Error("expected error for truncated summary")
	}
	if _, err := Decode(make([]byte, 100)); err == nil {
		t.Error("expected error for oversized summary")
	}
}

func TestCorruptParentSummary(t *testing.T) {
	d := New()
	commit := testCommit("child", id.NewCommitId([]byte("parent")))

	if _, err := d.Compute(context.Background(), commit, [][]byte{[]byte("garbage")}); err == nil {
		t.Error("expected error for corrupt parent summary")
	}
}
