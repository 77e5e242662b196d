// Package memgraph provides an in-memory implementation of scm.Graph and
// scm.BlobStore. It is the test double used throughout the repository and is
// also handy for local experiments with the derivation engine.
//
// Thread-safety: all methods are safe for concurrent use.
package memgraph
