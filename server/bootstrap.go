package server

import (
	"fmt"

	"github.com/jrsteele09/tutorhub-session/users"
)

const demoEmailDomain = "tutorhub.dev"

// DemoEmail is the address of the seeded account for role, e.g. parent@tutorhub.dev.
func DemoEmail(role users.Role) string {
	return fmt.Sprintf("%s@%s", role.Lower(), demoEmailDomain)
}

// BootstrapDemoUsers creates one verified account per role, all sharing password.
// Accounts that already exist are left untouched.
func (s *Server) BootstrapDemoUsers(password string) error {
	if err := users.ValidatePasswordStrength(password); err != nil {
		return fmt.Errorf("[Server.BootstrapDemoUsers] demo password: %w", err)
	}
	hash, err := users.HashPassword(password)
	if err != nil {
		return fmt.Errorf("[Server.BootstrapDemoUsers] hash: %w", err)
	}

	for _, role := range []users.Role{users.RoleParent, users.RoleCoach, users.RoleAdmin} {
		email := DemoEmail(role)
		if existing, err := s.repos.Users.GetByEmail(email); err == nil && existing != nil {
			s.logger.Debug().Str("email", email).Msg("demo user already exists")
			continue
		}
		user := &users.User{
			Email:        email,
			PasswordHash: hash,
			FirstName:    "Demo",
			LastName:     role.Title(),
			Role:         role,
			IsVerified:   true,
		}
		if err := s.repos.Users.Upsert(user); err != nil {
			return fmt.Errorf("[Server.BootstrapDemoUsers] store %s: %w", email, err)
		}
		s.logger.Info().Str("email", email).Str("role", string(role)).Msg("created demo user")
	}
	return nil
}
