package lease

import (
	"crypto/rand"
)

const (
	tokenLength = 32
)

// generateToken creates a new unique owner token.
// The token is a random byte slice of 256 bits.
func generateToken() ([]byte, error) {
	randomBytes := make([]byte, tokenLength)
	_, err := rand.Read(randomBytes)
	return randomBytes, err
}
