package lease

import "time"

// Manager defines the interface for a lease provider.
//
// A lease is an exclusive claim on a key that disappears on its own when the
// holder stops renewing it. This is what keeps a crashed derivation worker
// from blocking a commit forever: once the ttl elapses the claim becomes
// acquirable again.
type Manager interface {
	// Acquire claims the given key for ttl.
	// Returns a boolean indicating whether the claim was acquired, an owner token, and an error if any.
	Acquire(key string, ttl time.Duration) (ok bool, token []byte, err error)

	// Renew extends the claim on the given key by ttl from now.
	// Returns false if the claim no longer exists or is held by a different owner.
	Renew(key string, token []byte, ttl time.Duration) (ok bool, err error)

	// Release releases the claim on the given key.
	// Returns a boolean indicating whether the claim was released, and an error if any.
	// The method will also return true if the claim did not exist.
	Release(key string, token []byte) (ok bool, err error)
}
