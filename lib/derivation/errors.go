package derivation

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

type ErrCode uint8

const (
	ErrCNotFound ErrCode = iota // 0: Commit, type or value does not exist.
	ErrCEncoding                // 1: Value or key argument could not be encoded.
	ErrCTimeout                 // 2: Wait or traversal bound exceeded.
	ErrCCompute                 // 3: Deriver computation failed.
)

func (c ErrCode) String() string {
	switch c {
	case ErrCNotFound:
		return "NotFound"
	case ErrCEncoding:
		return "EncodingError"
	case ErrCTimeout:
		return "Timeout"
	case ErrCCompute:
		return "ComputeError"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps an error code and a message,
// optionally chaining an underlying cause.
type Error struct {
	Code ErrCode // The error code
	Msg  string  // The error message
	Err  error   // Optional underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("DerivationError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("DerivationError (code %s): %s", e.Code, e.Msg)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// WrapError creates a new Error chaining an underlying cause.
func WrapError(code ErrCode, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

// IsCode reports whether err carries the given derivation error code.
func IsCode(err error, code ErrCode) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}
