package users

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Role is the marketplace role a user signs in as.
type Role string

const (
	RoleParent Role = "PARENT"
	RoleCoach  Role = "COACH"
	RoleAdmin  Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleParent, RoleCoach, RoleAdmin:
		return true
	}
	return false
}

// ParseRole accepts a role in any case, e.g. "parent" or "COACH".
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Lower is the role in lower case, e.g. "parent".
func (r Role) Lower() string {
	return strings.ToLower(string(r))
}

// Title is the role capitalised for display, e.g. "Parent".
func (r Role) Title() string {
	l := r.Lower()
	if l == "" {
		return ""
	}
	return strings.ToUpper(l[:1]) + l[1:]
}

type User struct {
	ID           string     `json:"id"`                  // Unique identifier for the user
	Email        string     `json:"email,omitempty"`     // User's email address
	PasswordHash string     `json:"-"`                   // Only held by the development backend - never serialize
	FirstName    string     `json:"firstName,omitempty"` // First name of the user
	LastName     string     `json:"lastName,omitempty"`  // Last name of the user
	Role         Role       `json:"role"`                // PARENT, COACH or ADMIN
	IsVerified   bool       `json:"isVerified"`          // Has the user verified their email
	LastLogin    *time.Time `json:"lastLogin,omitempty"` // Last time the user logged in
}

// Clone returns a deep copy so callers never share the LastLogin pointer.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

// Valid reports whether the user carries the fields a session needs.
func (u *User) Valid() bool {
	return u != nil && strings.TrimSpace(u.ID) != "" && u.Role.Valid()
}

// Patch is a partial user update. Nil fields are left unchanged.
type Patch struct {
	Email      *string    `json:"email,omitempty"`
	FirstName  *string    `json:"firstName,omitempty"`
	LastName   *string    `json:"lastName,omitempty"`
	Role       *Role      `json:"role,omitempty"`
	IsVerified *bool      `json:"isVerified,omitempty"`
	LastLogin  *time.Time `json:"lastLogin,omitempty"`
}

// Apply shallow-merges p into a copy of u and returns the copy.
func (p Patch) Apply(u *User) (*User, error) {
	merged := u.Clone()
	if merged == nil {
		return nil, fmt.Errorf("cannot patch a nil user")
	}
	if p.Role != nil && !p.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q", *p.Role)
	}

	if p.Email != nil {
		merged.Email = *p.Email
	}
	if p.FirstName != nil {
		merged.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		merged.LastName = *p.LastName
	}
	if p.Role != nil {
		merged.Role = *p.Role
	}
	if p.IsVerified != nil {
		merged.IsVerified = *p.IsVerified
	}
	if p.LastLogin != nil {
		t := *p.LastLogin
		merged.LastLogin = &t
	}
	return merged, nil
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
