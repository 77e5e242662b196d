// Package keygen generates deterministic, versioned cache keys.
//
// Every versioned store owns a KeyGen with a fixed prefix and two version
// codes: the code version (bumped when the computation changes) and the
// system version (bumped when the stored representation changes). Bumping
// either version makes every old cache entry unreachable without any purge,
// because the version participates in the key itself.
//
// Keys are injective per KeyGen: two different arguments never map to the
// same key, since the argument is encoded deterministically and hashed with
// sha256.
package keygen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ValentinKolb/dDS/lib/codec"
)

// KeyGen produces cache keys of the form
// <prefix>:<codeVersion>:<sysVersion>:<hex(sha256(encoded arg))>.
type KeyGen struct {
	prefix      string
	codeVersion uint32
	sysVersion  uint32
	codec       codec.Codec
}

// New creates a KeyGen with the given prefix and version codes.
// The JSON codec is used to encode key arguments.
func New(prefix string, codeVersion, sysVersion uint32) *KeyGen {
	return &KeyGen{
		prefix:      prefix,
		codeVersion: codeVersion,
		sysVersion:  sysVersion,
		codec:       codec.NewJSONCodec(),
	}
}

// Key generates the cache key for the given argument.
// The argument must be encodable by the codec, otherwise an error is returned.
func (kg *KeyGen) Key(arg interface{}) (string, error) {
	encoded, err := kg.codec.Encode(arg)
	if err != nil {
		return "", fmt.Errorf("encoding key argument: %w", err)
	}
	digest := sha256.Sum256(encoded)
	return fmt.Sprintf("%s:%d:%d:%s",
		kg.prefix, kg.codeVersion, kg.sysVersion, hex.EncodeToString(digest[:])), nil
}

// KeyOf is a convenience helper that generates a key for a store name and
// version without keeping a KeyGen around.
func KeyOf(store string, version uint32, arg interface{}) (string, error) {
	return New(store, version, 0).Key(arg)
}
