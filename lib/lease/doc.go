// Package lease implements an expiring claim mechanism using key-value stores
// that implement the store.IStore interface. It is the coordination primitive
// behind derivation claims: when multiple workers race to derive data for the
// same commit, exactly one acquires the claim and the others wait for its
// outcome.
//
// The manager only ever stores in the provided IStore and has no other internal
// state. Therefore it is safe to create multiple managers on the same store.
// It is even possible to create a new manager for every acquire, renew or
// release operation. As long as the same store is used every time, all claims
// will work as expected.
//
// Core Functionality:
//   - Claim acquisition with ownership verification
//   - Automatic claim expiry through the ttl, so a crashed holder never blocks
//     a key forever
//   - Heartbeat renewal that extends the ttl while the holder is still working
//   - Safe release operations that verify ownership
//
// Implementation Approach:
//
//	Claims are implemented by leveraging the atomic conditional operations
//	of the underlying store. Specifically:
//
//	- Acquisition: Attempts to create a key using SetEIfUnset, which
//	  guarantees that only one requester can successfully create the key.
//	  The value contains a randomly generated owner token that identifies the
//	  claim holder. A key whose deletion deadline has passed counts as unset,
//	  which is exactly the crashed-owner takeover path.
//
//	- Verification: A successful SetEIfUnset operation is followed by
//	  a Get operation to confirm the claim was acquired by checking that the
//	  stored value matches the owner token.
//
//	- Renewal: Renew verifies ownership and then rewrites the key with a fresh
//	  deletion deadline. Holders renew on a fixed interval well below the ttl,
//	  so a healthy holder keeps its claim indefinitely while a crashed one
//	  loses it after at most one ttl.
//
//	- Safe Release: The Release operation first verifies that the
//	  requester is the legitimate owner of the claim by comparing owner tokens
//	  before executing the Delete operation.
//
// Thread Safety:
//
//	The manager is as thread-safe as the underlying store.IStore
//	implementation. All operations are performed through the store interface,
//	which typically provides thread safety guarantees.
//
// Distributed Considerations:
//
//	When used with a distributed store implementation like dstore, the
//	manager provides true distributed claims with consensus-based
//	guarantees. This enables coordination across multiple nodes in a cluster
//	while maintaining strong consistency properties.
//
// Usage Example:
//
//	mgr := lease.NewManager(recordStore)
//
//	acquired, token, err := mgr.Acquire("claim:manifest-digest@v1:abc", 30*time.Second)
//	if err != nil {
//	    // Handle error
//	}
//
//	if acquired {
//	    // Do the work, renewing periodically
//	    // ...
//	    released, err := mgr.Release("claim:manifest-digest@v1:abc", token)
//	    if err != nil {
//	        // Handle error
//	    }
//	}
//
// Security Considerations:
//
//	The mechanism uses randomly generated owner tokens, which provides
//	reasonable protection against accidental claim stealing. However, it is
//	not designed to resist malicious attacks, as an attacker with access to
//	the underlying store could manipulate claim data directly.
//
// Performance Impact:
//
//	Claim operations require 1-2 store operations each:
//	- Acquire: One SetEIfUnset followed by one Get
//	- Renew: One Get followed by a conditional SetE
//	- Release: One Get followed by a conditional Delete
//
//	The performance characteristics therefore depend primarily on the
//	underlying store implementation.
package lease
