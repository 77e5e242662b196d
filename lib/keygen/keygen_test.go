package keygen

import (
	"strings"
	"testing"
)

type keyArg struct {
	Commit string
	Type   string
}

func TestKeyDeterminism(t *testing.T) {
	kg := New("dds.manifest-digest", 1, 0)

	arg := keyArg{Commit: "deadbeef", Type: "manifest-digest"}
	first, err := kg.Key(arg)
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := kg.Key(arg)
		if err != nil {
			t.Fatalf("Key failed: %v", err)
		}
		if again != first {
			t.Fatalf("key not deterministic: %q vs %q", first, again)
		}
	}
}

func TestKeyFormat(t *testing.T) {
	kg := New("dds.history", 3, 7)
	key, err := kg.Key(keyArg{Commit: "cafebabe"})
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	if !strings.HasPrefix(key, "dds.history:3:7:") {
		t.Errorf("unexpected key prefix: %q", key)
	}
	// sha256 hex digest after the last separator
	parts := strings.Split(key, ":")
	if len(parts) != 4 || len(parts[3]) != 64 {
		t.Errorf("unexpected key shape: %q", key)
	}
}

func TestKeyInjectivity(t *testing.T) {
	kg := New("dds.manifest-digest", 1, 0)

	args := []keyArg{
		{Commit: "aa", Type: "x"},
		{Commit: "a", Type: "ax"},
		{Commit: "", Type: "aax"},
		{Commit: "aax", Type: ""},
		{Commit: "aa", Type: "y"},
	}

	seen := map[string]keyArg{}
	for _, arg := range args {
		key, err := kg.Key(arg)
		if err != nil {
			t.Fatalf("Key failed: %v", err)
		}
		if prev, dup := seen[key]; dup {
			t.Errorf("key collision between %+v and %+v", prev, arg)
		}
		seen[key] = arg
	}
}

func TestVersionSensitivity(t *testing.T) {
	arg := keyArg{Commit: "deadbeef"}

	base, _ := New("dds.t", 1, 0).Key(arg)
	codeBump, _ := New("dds.t", 2, 0).Key(arg)
	sysBump, _ := New("dds.t", 1, 1).Key(arg)
	otherPrefix, _ := New("dds.u", 1, 0).Key(arg)

	if base == codeBump {
		t.Error("code version bump must change the key")
	}
	if base == sysBump {
		t.Error("sys version bump must change the key")
	}
	if base == otherPrefix {
		t.Error("prefix must change the key")
	}
}

func TestKeyEncodeError(t *testing.T) {
	kg := New("dds.t", 1, 0)
	if _, err := kg.Key(func() {}); err == nil {
		t.Error("expected error for unencodable argument")
	}
}

func TestKeyOf(t *testing.T) {
	a, err := KeyOf("dds.manifest-digest", 1, keyArg{Commit: "deadbeef"})
	if err != nil {
		t.Fatalf("KeyOf failed: %v", err)
	}
	b, _ := New("dds.manifest-digest", 1, 0).Key(keyArg{Commit: "deadbeef"})
	if a != b {
		t.Errorf("KeyOf and KeyGen disagree: %q vs %q", a, b)
	}
}
