package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session core
var (
	// Session store preconditions
	ErrInvalidSession  = errors.New("invalid session: user, access token and refresh token are required")
	ErrNoActiveSession = errors.New("no active session")
	ErrStaleSession    = errors.New("session generation is no longer current")

	// Terminal authorization failure
	ErrSessionExpired = errors.New("session expired")

	// Refresh protocol
	ErrRefreshRejected = errors.New("refresh rejected")
	ErrNoRefreshToken  = fmt.Errorf("%w: no refresh token", ErrRefreshRejected)

	// Repositories
	ErrNotFound = errors.New("not found")
)
