package derivation

import (
	"context"
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/ValentinKolb/dDS/lib/db"
	"github.com/ValentinKolb/dDS/lib/db/engines/arbor"
	"github.com/ValentinKolb/dDS/lib/id"
	"github.com/ValentinKolb/dDS/lib/scm"
	"github.com/ValentinKolb/dDS/lib/store/lstore"
)

func newTestRecords() *Records {
	return NewRecords(lstore.NewLocalStore(func() db.KVDB { return arbor.NewArborDB(nil) }))
}

func TestRecordKeys(t *testing.T) {
	typ := id.NewType("manifest-digest", 3)
	commit := id.NewCommitId([]byte("commit"))

	rkey := RecordKey(typ, commit)
	if !strings.HasPrefix(rkey, "record:manifest-digest@v3:") {
		t.Errorf("unexpected record key: %q", rkey)
	}
	if !strings.HasSuffix(rkey, commit.String()) {
		t.Errorf("record key must end in the commit hex: %q", rkey)
	}

	ckey := ClaimKey(typ, commit)
	if !strings.HasPrefix(ckey, "claim:manifest-digest@v3:") {
		t.Errorf("unexpected claim key: %q", ckey)
	}
	if rkey == ckey {
		t.Error("record and claim keys must differ")
	}

	// version participates in the key
	if RecordKey(id.NewType("manifest-digest", 4), commit) == rkey {
		t.Error("version bump must change the record key")
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	records := newTestRecords()
	typ := id.NewType("history", 1)
	commit := id.NewCommitId([]byte("commit"))
	digest := sha256.Sum256([]byte("derived value"))

	if _, ok, err := records.Get(typ, commit); err != nil || ok {
		t.Fatalf("expected no record initially (ok=%v err=%v)", ok, err)
	}

	if err := records.MarkDerived(typ, commit, digest); err != nil {
		t.Fatalf("MarkDerived failed: %v", err)
	}
	rec, ok, err := records.Get(typ, commit)
	if err != nil || !ok {
		t.Fatalf("Get failed after MarkDerived (ok=%v err=%v)", ok, err)
	}
	if rec.State != StateDerived {
		t.Errorf("expected state Derived, got %s", rec.State)
	}
	if rec.Digest != digest {
		t.Error("digest mismatch after round trip")
	}

	if err := records.Reset(typ, commit); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, ok, _ := records.Get(typ, commit); ok {
		t.Error("expected no record after Reset")
	}
}

func TestDecodeRecordErrors(t *testing.T) {
	if _, err := decodeRecord([]byte("short")); !IsCode(err, ErrCEncoding) {
		t.Errorf("expected EncodingError for truncated payload, got %v", err)
	}
}

type nopDeriver struct {
	name    string
	version uint32
}

func (d nopDeriver) Type() id.DerivedDataType { return id.NewType(d.name, d.version) }
func (d nopDeriver) ParentOrder() ParentOrder { return TopoOrdered }
func (d nopDeriver) Compute(context.Context, scm.Commit, [][]byte) ([]byte, error) {
	return nil, nil
}

func TestRegistryEnablement(t *testing.T) {
	r := NewRegistry()
	r.Register(nopDeriver{name: "a", version: 1})
	r.Register(nopDeriver{name: "b", version: 2})

	if !r.Enabled("a") || !r.Enabled("b") {
		t.Fatal("registered types must be enabled by default")
	}
	if r.Enabled("c") {
		t.Error("unregistered type must not be enabled")
	}

	r.SetEnabled("a", false)
	if r.Enabled("a") {
		t.Error("disabled type must not be enabled")
	}
	if _, ok := r.Get("a"); ok {
		t.Error("Get must not return a disabled deriver")
	}

	r.SetEnabled("a", true)
	if d, ok := r.Get("a"); !ok || d.Type().Version != 1 {
		t.Error("re-enabled deriver must be retrievable")
	}

	names := r.Names()
	if len(names) != 2 {
		t.Errorf("expected 2 registered names, got %v", names)
	}
}
