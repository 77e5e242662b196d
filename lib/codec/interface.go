package codec

// Codec is the interface for all value encoders.
// Implementations must be deterministic: encoding the same value twice
// yields the same bytes, since cache keys are derived from encoded values.
type Codec interface {
	// Encode encodes a value into a byte array.
	// It returns the encoded byte array and an error if any
	Encode(v interface{}) ([]byte, error)
	// Decode decodes a byte array into the value pointed to by v.
	// It returns an error if any
	Decode(b []byte, v interface{}) error
}
