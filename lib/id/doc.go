// Package id defines the identity value types shared by all layers of dDS:
// content-addressed commit identifiers, versioned derived-data-type names and
// bookmark pointers.
//
// All types in this package are small immutable values. CommitId is comparable
// and can be used directly as a map key. None of the types carry behaviour
// beyond formatting and parsing - graph access, derivation and caching live in
// their own packages and only depend on this one.
package id
