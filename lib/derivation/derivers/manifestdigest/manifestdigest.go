// Package manifestdigest derives a digest over a commit's manifest and its
// parents' digests. It is the cheapest possible derived data type and doubles
// as the reference workload for engine and validator tests.
package manifestdigest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/ValentinKolb/dDS/lib/derivation"
	"github.com/ValentinKolb/dDS/lib/id"
	"github.com/ValentinKolb/dDS/lib/scm"
)

// TypeName is the registered name of this derived data type.
const TypeName = "manifest-digest"

// Version is bumped whenever the digest computation changes.
const Version uint32 = 1

type deriver struct{}

// New creates the manifest digest deriver.
func New() derivation.Deriver {
	return deriver{}
}

func (deriver) Type() id.DerivedDataType {
	return id.NewType(TypeName, Version)
}

// ParentOrder is TopoOrdered: the digest covers all parents, in the commit's
// stored parent order.
func (deriver) ParentOrder() derivation.ParentOrder {
	return derivation.TopoOrdered
}

// Compute hashes the parent digests followed by the manifest entries in
// sorted path order. The result is a 32-byte sha256 digest.
func (deriver) Compute(_ context.Context, commit scm.Commit, parents [][]byte) ([]byte, error) {
	h := sha256.New()
	for _, p := range parents {
		h.Write(p)
	}
	entries := make([]scm.ManifestEntry, len(commit.Manifest))
	copy(entries, commit.Manifest)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	for _, e := range entries {
		fmt.Fprintf(h, "%s %s\n", e.Path, e.Blob)
	}
	return h.Sum(nil), nil
}
