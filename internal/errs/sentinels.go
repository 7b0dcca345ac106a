// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service/transport layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure (stale product version).
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates failed authentication (bad credentials, missing or expired token).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated caller touching another tenant's data.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (email or SKU taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates rejected input; concrete errors carry per-field details.
	ErrValidation = errors.New("validation failed")

	// ErrSessionMissing indicates a client call attempted without a usable account id.
	ErrSessionMissing = errors.New("session missing valid id, please re-login")
)
