package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dDS/lib/derivation"
	"github.com/ValentinKolb/dDS/lib/id"
	"github.com/ValentinKolb/dDS/lib/scm"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("verify")

// --------------------------------------------------------------------------
// Report Types
// --------------------------------------------------------------------------

// Mismatch describes one diverged (commit, type) pair.
type Mismatch struct {
	Commit   id.CommitId
	Type     id.DerivedDataType
	Expected [32]byte // digest the record promises
	Actual   [32]byte // digest observed (recomputed or served value)
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s:%s expected %s got %s",
		m.Type, m.Commit.Short(),
		hex.EncodeToString(m.Expected[:8]), hex.EncodeToString(m.Actual[:8]))
}

// Divergence is the error form of a dirty report. It is surfaced to the
// caller and never repaired automatically.
type Divergence struct {
	Mismatches []Mismatch
}

func (d *Divergence) Error() string {
	parts := make([]string, len(d.Mismatches))
	for i, m := range d.Mismatches {
		parts[i] = m.String()
	}
	return fmt.Sprintf("divergence detected: %s", strings.Join(parts, "; "))
}

// Report is the outcome of a Verify run.
type Report struct {
	Commit     id.CommitId
	Checked    []id.DerivedDataType // types whose records were recomputed
	Skipped    []id.DerivedDataType // types without a Derived record
	Mismatches []Mismatch
}

// Clean reports whether every checked type matched.
func (r Report) Clean() bool {
	return len(r.Mismatches) == 0
}

// Err returns a *Divergence if the report is dirty, nil otherwise.
func (r Report) Err() error {
	if r.Clean() {
		return nil
	}
	return &Divergence{Mismatches: r.Mismatches}
}

// --------------------------------------------------------------------------
// Validator
// --------------------------------------------------------------------------

// Validator recomputes derived values and compares them against the persisted
// record digests and the values served through the cache. It only ever reads:
// a mismatch is reported, never repaired.
type Validator struct {
	graph  scm.Graph
	engine *derivation.Engine
}

// New creates a validator over the given graph and engine.
func New(graph scm.Graph, engine *derivation.Engine) *Validator {
	return &Validator{graph: graph, engine: engine}
}

// Verify recomputes each of the given types for commit c and compares the
// digests against the records and against the value the system actually
// serves. Types without a Derived record are skipped. The returned error
// covers operational failures only; divergence lives in the report.
func (v *Validator) Verify(ctx context.Context, c id.CommitId, types []id.DerivedDataType) (Report, error) {
	report := Report{Commit: c}

	for _, t := range types {
		record, ok, err := v.engine.Records().Get(t, c)
		if err != nil {
			return report, err
		}
		if !ok {
			report.Skipped = append(report.Skipped, t)
			continue
		}

		actual, err := v.recompute(ctx, c, t)
		if err != nil {
			return report, err
		}

		report.Checked = append(report.Checked, t)
		if actual != record.Digest {
			log.Warningf("record divergence on %s:%s", t, c.Short())
			report.Mismatches = append(report.Mismatches, Mismatch{
				Commit:   c,
				Type:     t,
				Expected: record.Digest,
				Actual:   actual,
			})
			continue
		}

		// the record matches the recomputation, but the served value must
		// honor the record's promise too (a cache tier may hold garbage)
		served, ok, err := v.engine.Fetch(ctx, c, t)
		if err != nil {
			return report, err
		}
		if ok {
			if servedDigest := sha256.Sum256(served); servedDigest != record.Digest {
				log.Warningf("served value divergence on %s:%s", t, c.Short())
				report.Mismatches = append(report.Mismatches, Mismatch{
					Commit:   c,
					Type:     t,
					Expected: record.Digest,
					Actual:   servedDigest,
				})
			}
		}
	}

	return report, nil
}

// VerifyBookmark resolves a bookmark and verifies its target commit.
func (v *Validator) VerifyBookmark(ctx context.Context, name string, types []id.DerivedDataType) (Report, error) {
	target, err := v.graph.GetBookmark(name)
	if err != nil {
		if errors.Is(err, scm.ErrNotFound) {
			return Report{}, derivation.WrapError(derivation.ErrCNotFound, fmt.Sprintf("bookmark %q", name), err)
		}
		return Report{}, err
	}
	return v.Verify(ctx, target, types)
}

// recompute derives the value for (c, t) in a side channel: parent values are
// read through the engine (they are already Derived and digest-checked by
// their own records), but the value for c itself is recomputed from the
// graph, bypassing every cache tier.
func (v *Validator) recompute(ctx context.Context, c id.CommitId, t id.DerivedDataType) ([32]byte, error) {
	d, ok := v.engine.Registry().Get(t.Name)
	if !ok {
		return [32]byte{}, derivation.NewError(derivation.ErrCNotFound,
			fmt.Sprintf("derived data type %q is not registered or disabled", t.Name))
	}

	commit, err := v.graph.GetCommit(c)
	if err != nil {
		if errors.Is(err, scm.ErrNotFound) {
			return [32]byte{}, derivation.WrapError(derivation.ErrCNotFound, fmt.Sprintf("commit %s", c.Short()), err)
		}
		return [32]byte{}, err
	}

	parents := commit.Parents
	if d.ParentOrder() == derivation.FirstParentOnly && len(parents) > 1 {
		parents = parents[:1]
	}
	parentValues := make([][]byte, len(parents))
	for i, p := range parents {
		value, ok, err := v.engine.Fetch(ctx, p, t)
		if err != nil {
			return [32]byte{}, err
		}
		if !ok {
			return [32]byte{}, derivation.NewError(derivation.ErrCNotFound,
				fmt.Sprintf("parent %s of %s is not derived for %s", p.Short(), c.Short(), t))
		}
		parentValues[i] = value
	}

	value, err := d.Compute(ctx, commit, parentValues)
	if err != nil {
		return [32]byte{}, derivation.WrapError(derivation.ErrCCompute,
			fmt.Sprintf("%s for commit %s", t, c.Short()), err)
	}
	return sha256.Sum256(value), nil
}
