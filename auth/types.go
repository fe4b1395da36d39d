package auth

import (
	"strings"

	"github.com/jrsteele09/tutorhub-session/users"
)

// Endpoint paths relative to the API base URL.
const (
	LoginPath    = "/auth/login"
	RegisterPath = "/auth/register/"
	LogoutPath   = "/auth/logout"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// SessionData is the data member of a successful login or registration.
type SessionData struct {
	User         *users.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

// Envelope is the response shape shared by the auth endpoints.
type Envelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    *SessionData `json:"data,omitempty"`
}

// UserType is the path segment of the registration endpoint.
type UserType string

const (
	UserTypeParent UserType = "parent"
	UserTypeCoach  UserType = "coach"
)

// ParseUserType accepts "parent" or "coach" in any case, or the matching role name.
func ParseUserType(s string) (UserType, error) {
	switch UserType(strings.ToLower(strings.TrimSpace(s))) {
	case UserTypeParent:
		return UserTypeParent, nil
	case UserTypeCoach:
		return UserTypeCoach, nil
	}
	return "", ErrInvalidUserType
}

// Role is the role a user registered under this type is given.
func (t UserType) Role() users.Role {
	if t == UserTypeCoach {
		return users.RoleCoach
	}
	return users.RoleParent
}

func (r RegisterRequest) validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return ErrMissingField
	}
	if r.Password == "" || strings.TrimSpace(r.FirstName) == "" || strings.TrimSpace(r.LastName) == "" {
		return ErrMissingField
	}
	return nil
}
