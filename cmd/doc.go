// Package cmd implements the command-line interface for the dDS derived data
// service. It provides a hierarchical command structure with operations for
// running a derivation worker and administering derived data.
//
// The package is organized into several subpackages:
//
//   - admin: Commands for derived data operations (derive, exists, fetch, verify, etc.)
//   - worker: Command for running a long-running derivation worker
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dds -help for a list of all commands.
package cmd
