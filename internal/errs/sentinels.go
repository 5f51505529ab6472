// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist or is no longer active.
	ErrNotFound = errors.New("not found")

	// ErrAccountDeleted indicates the user exists but has been soft-deleted.
	// It matches ErrNotFound so callers that only care about absence treat both alike.
	ErrAccountDeleted = fmt.Errorf("account has already been deleted: %w", ErrNotFound)

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrAlreadyRevoked indicates the token value is already present in the revocation store.
	ErrAlreadyRevoked = errors.New("token already revoked")

	// ErrValidation indicates malformed input rejected before any side effect.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidToken is the single failure reported for any bad, expired or malformed token.
	ErrInvalidToken = fmt.Errorf("invalid token: %w", ErrUnauthorized)

	// ErrForbidden indicates the actor is authenticated but may not perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
)

// ValidationError describes a single rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

// Invalid builds a ValidationError for field.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) hold for every ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
