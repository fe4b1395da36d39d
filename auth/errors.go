package auth

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidUserType = errors.New("invalid user type")
	ErrMissingField    = errors.New("missing required field")
	ErrBadResponse     = errors.New("malformed auth response")
)

// APIError is a rejection reported by the auth endpoints, either as a non-2xx status
// or as a 2xx envelope with success=false.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth request rejected (status %d)", e.Status)
	}
	return fmt.Sprintf("auth request rejected (status %d): %s", e.Status, e.Message)
}
