package users

import (
	"time"

	errs "github.com/jrsteele09/tutorhub-session/internal/errors"
)

// ErrNotFound is returned by repositories for unknown users.
var ErrNotFound = errs.ErrNotFound

// UserRepo stores accounts for the development backend.
type UserRepo interface {
	Upsert(user *User) error
	GetByEmail(email string) (*User, error)
	GetByID(ID string) (*User, error)
	SetLastLogin(ID string, at time.Time) error
}
