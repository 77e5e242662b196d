package lease

import (
	"bytes"
	"time"

	"github.com/ValentinKolb/dDS/lib/store"
)

type leaseMgrImpl struct {
	store store.IStore
}

// NewManager creates a lease manager over the given store. The manager keeps
// no state of its own, so any number of managers over the same store cooperate
// correctly.
func NewManager(store store.IStore) Manager {
	return &leaseMgrImpl{
		store: store,
	}
}

func (lm *leaseMgrImpl) Acquire(key string, ttl time.Duration) (bool, []byte, error) {
	// Generate owner token (256 bit random value)
	token, err := generateToken()
	if err != nil {
		return false, nil, err
	}

	// Try to acquire the claim (by setting the value only if it is unset - atomic CAS operation)
	if err := lm.store.SetEIfUnset(key, token, 0, ttl); err != nil {
		return false, nil, err
	}

	// Check if the claim was acquired
	value, found, err := lm.store.Get(key)
	if err != nil {
		return false, nil, err
	}

	// Return true if the claim was acquired BY US
	if found && bytes.Equal(value, token) {
		return true, token, nil
	}
	// Return false if the claim was acquired BY SOMEONE ELSE in the meantime
	return false, nil, nil
}

func (lm *leaseMgrImpl) Renew(key string, token []byte, ttl time.Duration) (bool, error) {
	// Check if the claim still exists
	value, ok, err := lm.store.Get(key)
	if err != nil || !ok {
		return false, err
	}

	// Check if the claim is owned by us
	if !bytes.Equal(token, value) {
		return false, nil
	}

	// Extend the deletion deadline
	if err := lm.store.SetE(key, token, 0, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (lm *leaseMgrImpl) Release(key string, token []byte) (bool, error) {
	// Check if the claim exists
	value, ok, err := lm.store.Get(key)
	if err != nil || !ok {
		return err == nil, err
	}

	// Check if the claim is owned by us
	if !bytes.Equal(token, value) {
		return false, nil
	}

	// Release the claim
	err = lm.store.Delete(key)
	return err == nil, err
}
