// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a duplicate username at registration.
	ErrAlreadyExists = errors.New("already exists")

	// ErrEmailTaken indicates the email is already bound to another account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrSessionExpired indicates a missing, expired or revoked session token.
	ErrSessionExpired = errors.New("session expired or invalid")

	// ErrInsufficientStock indicates a purchase would drive stock negative.
	ErrInsufficientStock = errors.New("insufficient stock")
)
