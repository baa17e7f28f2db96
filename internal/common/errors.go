// Package common defines shared constants and sentinel errors used across
// tors components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Caller errors: malformed or empty request fields. Not retried.
	ErrInvalidInput = errors.New("invalid input")

	// Uniqueness violations (username taken, signing key already stored).
	ErrConflict = errors.New("user already exists")

	// Internal cryptographic failure while hashing or verifying a password.
	ErrHashingFailure = errors.New("hashing failure")

	// Database unreachable or failing.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
)
