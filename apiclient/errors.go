package apiclient

import (
	"fmt"

	errs "github.com/jrsteele09/tutorhub-session/internal/errors"
)

var (
	// ErrSessionExpired matches every *SessionExpiredError.
	ErrSessionExpired = errs.ErrSessionExpired
	// ErrStaleSession is returned for requests whose session ended (logout or re-login) while in flight.
	ErrStaleSession = errs.ErrStaleSession
	// ErrRefreshRejected wraps a non-2xx or malformed refresh response.
	ErrRefreshRejected = errs.ErrRefreshRejected
	// ErrNoRefreshToken is a rejection raised before any request, when the session holds no refresh token.
	ErrNoRefreshToken = errs.ErrNoRefreshToken
)

// NetworkError means the server could not be reached. The session is never touched.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// SessionExpiredError is terminal: the refresh failed and the session has been logged out.
type SessionExpiredError struct {
	Cause error
}

func (e *SessionExpiredError) Error() string {
	if e.Cause == nil {
		return ErrSessionExpired.Error()
	}
	return fmt.Sprintf("%s: %v", ErrSessionExpired, e.Cause)
}

func (e *SessionExpiredError) Is(target error) bool {
	return target == ErrSessionExpired
}

func (e *SessionExpiredError) Unwrap() error {
	return e.Cause
}

// StatusError is returned by the JSON helpers for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}
