// Package codec provides value encoding capabilities for the derived-data
// system. It defines a common interface and multiple implementations for
// encoding and decoding values that flow through the cache key generator,
// the record store and the CLI output.
//
// The package focuses on:
//   - Providing a consistent interface for different encoding formats
//   - Deterministic output, since cache keys hash the encoded bytes
//   - Minimizing memory allocations and processing overhead
//
// Key Components:
//
//   - Codec: Core interface that all codec implementations must satisfy.
//
//   - jsonCodecImpl: Implementation using JSON encoding. JSON marshals struct
//     fields in declaration order and map keys sorted, so output is
//     deterministic for the argument types used in cache keys. Human-readable
//     output also makes it the format for CLI results.
//
//   - gobCodecImpl: Implementation using Go's built-in gob encoding, offering
//     good compatibility with Go's type system but with larger encoded sizes.
//
// Thread Safety:
//
//	All codec implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	Codecs are typically created once and reused throughout the application:
//
//	  c := codec.NewJSONCodec()
//	  data, err := c.Encode(value)
//	  // ... store data ...
//	  var decoded ValueType
//	  err = c.Decode(data, &decoded)
package codec
