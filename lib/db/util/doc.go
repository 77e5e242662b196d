// Package util provides utility components for
// database implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - functions: Seeded hash functions for shard selection and a random seed generator
//
// Each component is designed to work with any implementation of the db.KVDB interface.
package util
