package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/tutorhub-session/auth"
	"github.com/jrsteele09/tutorhub-session/token/refresh"
	"github.com/jrsteele09/tutorhub-session/users"
	"github.com/pkg/errors"
)

// RefreshResponse is the flat body of a successful refresh. RefreshToken is only set
// when rotation is enabled.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.LoginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		user, err := s.repos.Users.GetByEmail(req.Email)
		if err != nil && !errors.Is(err, users.ErrNotFound) {
			s.logger.Err(err).Msg("failed to look up user")
			writeError(w, http.StatusInternalServerError, "login failed")
			return
		}
		if user == nil || !users.CheckPasswordHash(req.Password, user.PasswordHash) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}

		now := s.nowFunc()
		if err := s.repos.Users.SetLastLogin(user.ID, now); err != nil {
			s.logger.Err(err).Str("user_id", user.ID).Msg("failed to record last login")
		} else {
			user.LastLogin = &now
		}
		s.writeSession(w, http.StatusOK, user)
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userType, err := auth.ParseUserType(r.PathValue("userType"))
		if err != nil {
			writeError(w, http.StatusNotFound, "unknown user type")
			return
		}

		var req auth.RegisterRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" || strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
			writeError(w, http.StatusBadRequest, "email, first name and last name are required")
			return
		}
		if err := users.ValidatePasswordStrength(req.Password); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		existing, err := s.repos.Users.GetByEmail(req.Email)
		switch {
		case err != nil && !errors.Is(err, users.ErrNotFound):
			s.logger.Err(err).Msg("failed to look up user")
			writeError(w, http.StatusInternalServerError, "registration failed")
			return
		case existing != nil:
			writeError(w, http.StatusConflict, "email already registered")
			return
		}

		hash, err := users.HashPassword(req.Password)
		if err != nil {
			s.logger.Err(err).Msg("failed to hash password")
			writeError(w, http.StatusInternalServerError, "registration failed")
			return
		}
		user := &users.User{
			Email:        req.Email,
			PasswordHash: hash,
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
			Role:         userType.Role(),
		}
		if err := s.repos.Users.Upsert(user); err != nil {
			s.logger.Err(err).Msg("failed to store user")
			writeError(w, http.StatusInternalServerError, "registration failed")
			return
		}
		s.logger.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")
		s.writeSession(w, http.StatusCreated, user)
	}
}

// LogoutHandler revokes whatever the caller presents and always succeeds.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if raw := bearerToken(r); raw != "" {
			if err := s.issuer.Revoke(raw); err != nil {
				s.logger.Debug().Err(err).Msg("logout with unusable access token")
			}
		}

		var req auth.LogoutRequest
		if err := decodeJSON(r, &req); err == nil && req.RefreshToken != "" {
			if err := s.refresh.Delete(req.RefreshToken); err != nil {
				s.logger.Debug().Err(err).Msg("logout with unknown refresh token")
			}
		}
		writeJSON(w, http.StatusOK, auth.Envelope{Success: true})
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "refreshToken is required")
			return
		}

		stored, rotated, err := s.refresh.Redeem(req.RefreshToken)
		if err != nil {
			status := http.StatusUnauthorized
			if !errors.Is(err, refresh.ErrUnknownToken) && !errors.Is(err, refresh.ErrExpiredToken) {
				status = http.StatusInternalServerError
				s.logger.Err(err).Msg("refresh failed")
			}
			writeError(w, status, "invalid refresh token")
			return
		}

		user, err := s.repos.Users.GetByID(stored.UserID)
		if err != nil || user == nil {
			_ = s.refresh.Delete(req.RefreshToken)
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		access, err := s.issuer.CreateAccessToken(user)
		if err != nil {
			s.logger.Err(err).Str("user_id", user.ID).Msg("failed to create access token")
			writeError(w, http.StatusInternalServerError, "refresh failed")
			return
		}
		writeJSON(w, http.StatusOK, RefreshResponse{AccessToken: access, RefreshToken: rotated})
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())
		user, err := s.repos.Users.GetByID(claims.Subject)
		if err != nil || user == nil {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeJSON(w, http.StatusOK, auth.Envelope{Success: true, Data: &auth.SessionData{User: user}})
	}
}

func (s *Server) AdminPingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, auth.Envelope{Success: true, Message: "pong"})
	}
}

// writeSession issues a token pair for user and writes the login envelope.
func (s *Server) writeSession(w http.ResponseWriter, status int, user *users.User) {
	access, err := s.issuer.CreateAccessToken(user)
	if err != nil {
		s.logger.Err(err).Str("user_id", user.ID).Msg("failed to create access token")
		writeError(w, http.StatusInternalServerError, "could not issue tokens")
		return
	}
	refreshToken, err := s.refresh.Create(user.ID)
	if err != nil {
		s.logger.Err(err).Str("user_id", user.ID).Msg("failed to create refresh token")
		writeError(w, http.StatusInternalServerError, "could not issue tokens")
		return
	}
	writeJSON(w, status, auth.Envelope{Success: true, Data: &auth.SessionData{
		User:         user,
		AccessToken:  access,
		RefreshToken: refreshToken,
	}})
}
