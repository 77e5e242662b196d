package lease

import (
	"testing"
	"time"

	"github.com/ValentinKolb/dDS/lib/db"
	"github.com/ValentinKolb/dDS/lib/db/engines/arbor"
	"github.com/ValentinKolb/dDS/lib/store/lstore"
)

func newTestManager() Manager {
	s := lstore.NewLocalStore(func() db.KVDB { return arbor.NewArborDB(nil) })
	return NewManager(s)
}

func TestAcquireRelease(t *testing.T) {
	mgr := newTestManager()

	ok, token, err := mgr.Acquire("claim", time.Hour)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !ok || len(token) == 0 {
		t.Fatal("expected to acquire fresh claim")
	}

	// second acquire must be refused while the claim is held
	ok2, _, err := mgr.Acquire("claim", time.Hour)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if ok2 {
		t.Error("expected second acquire to be refused")
	}

	released, err := mgr.Release("claim", token)
	if err != nil || !released {
		t.Fatalf("Release failed: ok=%v err=%v", released, err)
	}

	// after release the claim is acquirable again
	ok3, _, err := mgr.Acquire("claim", time.Hour)
	if err != nil || !ok3 {
		t.Fatalf("expected acquire after release: ok=%v err=%v", ok3, err)
	}
}

func TestExpiryTakeover(t *testing.T) {
	mgr := newTestManager()

	ok, _, err := mgr.Acquire("claim", 50*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("Acquire failed: ok=%v err=%v", ok, err)
	}

	// the claim outlives nobody: once the ttl elapses another owner takes over
	time.Sleep(70 * time.Millisecond)
	ok2, token2, err := mgr.Acquire("claim", time.Hour)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !ok2 {
		t.Fatal("expected takeover after ttl elapsed")
	}
	if released, _ := mgr.Release("claim", token2); !released {
		t.Error("new owner could not release its claim")
	}
}

func TestRenewExtends(t *testing.T) {
	mgr := newTestManager()

	ok, token, err := mgr.Acquire("claim", 80*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("Acquire failed: ok=%v err=%v", ok, err)
	}

	// keep renewing past the original ttl
	for i := 0; i < 3; i++ {
		time.Sleep(40 * time.Millisecond)
		renewed, err := mgr.Renew("claim", token, 80*time.Millisecond)
		if err != nil {
			t.Fatalf("Renew failed: %v", err)
		}
		if !renewed {
			t.Fatalf("claim lost after %d renewals", i)
		}
	}

	// still held, so a competitor must be refused
	if ok, _, _ := mgr.Acquire("claim", time.Hour); ok {
		t.Error("expected acquire to be refused while claim is renewed")
	}
}

func TestRenewAfterExpiry(t *testing.T) {
	mgr := newTestManager()

	ok, token, err := mgr.Acquire("claim", 50*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("Acquire failed: ok=%v err=%v", ok, err)
	}

	time.Sleep(70 * time.Millisecond)
	renewed, err := mgr.Renew("claim", token, time.Hour)
	if err != nil {
		t.Fatalf("Renew failed: %v", err)
	}
	if renewed {
		t.Error("expected renew of expired claim to fail")
	}
}

func TestWrongTokenRefused(t *testing.T) {
	mgr := newTestManager()

	ok, _, err := mgr.Acquire("claim", time.Hour)
	if err != nil || !ok {
		t.Fatalf("Acquire failed: ok=%v err=%v", ok, err)
	}

	wrong := []byte("not-the-owner-token")
	if released, _ := mgr.Release("claim", wrong); released {
		t.Error("release with wrong token must be refused")
	}
	if renewed, _ := mgr.Renew("claim", wrong, time.Hour); renewed {
		t.Error("renew with wrong token must be refused")
	}
}

func TestReleaseMissingClaim(t *testing.T) {
	mgr := newTestManager()

	// releasing a claim that never existed reports success
	released, err := mgr.Release("missing", []byte("token"))
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if !released {
		t.Error("expected release of missing claim to report success")
	}
}

func TestConcurrentAcquire(t *testing.T) {
	mgr := newTestManager()

	const racers = 16
	results := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		go func() {
			ok, _, err := mgr.Acquire("claim", time.Hour)
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
			}
			results <- ok
		}()
	}

	winners := 0
	for i := 0; i < racers; i++ {
		if <-results {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly one winner, got %d", winners)
	}
}
