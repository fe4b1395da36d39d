// Package auth runs the login, registration and logout calls and feeds their results
// into the session store.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/tutorhub-session/apiclient"
	"github.com/jrsteele09/tutorhub-session/session"
	"github.com/jrsteele09/tutorhub-session/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Client is the subset of apiclient.Client used by the service.
type Client interface {
	PostJSON(ctx context.Context, path string, in, out any) error
}

// Sessions is the subset of session.Manager used by the service.
type Sessions interface {
	Login(user *users.User, accessToken, refreshToken string) error
	Logout()
	SetLoading(loading bool)
	Snapshot() session.Session
}

var (
	_ Client   = (*apiclient.Client)(nil)
	_ Sessions = (*session.Manager)(nil)
)

type Service struct {
	client        Client
	sessions      Sessions
	logoutTimeout time.Duration
	logger        zerolog.Logger
}

type ServiceOption func(*Service)

// WithLogoutTimeout bounds the best-effort server logout call.
func WithLogoutTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.logoutTimeout = d
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(client Client, sessions Sessions, options ...ServiceOption) *Service {
	s := &Service{
		client:        client,
		sessions:      sessions,
		logoutTimeout: 5 * time.Second,
		logger:        log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Login authenticates with email and password and starts a session from the response.
func (s *Service) Login(ctx context.Context, email, password string) (session.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return session.Session{}, ErrMissingField
	}
	return s.authenticate(ctx, LoginPath, LoginRequest{Email: email, Password: password})
}

// Register creates a parent or coach account and starts a session for it.
func (s *Service) Register(ctx context.Context, userType string, req RegisterRequest) (session.Session, error) {
	t, err := ParseUserType(userType)
	if err != nil {
		return session.Session{}, errors.Wrapf(err, "[Service.Register] %q", userType)
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := req.validate(); err != nil {
		return session.Session{}, err
	}
	return s.authenticate(ctx, RegisterPath+string(t), req)
}

func (s *Service) authenticate(ctx context.Context, path string, body any) (session.Session, error) {
	s.sessions.SetLoading(true)
	defer s.sessions.SetLoading(false)

	var env Envelope
	err := s.client.PostJSON(apiclient.WithoutCredentials(ctx), path, body, &env)
	if err != nil {
		var statusErr *apiclient.StatusError
		if errors.As(err, &statusErr) {
			return session.Session{}, rejection(statusErr)
		}
		return session.Session{}, err
	}
	if !env.Success {
		return session.Session{}, &APIError{Status: http.StatusOK, Message: env.Message}
	}
	if env.Data == nil {
		return session.Session{}, errors.Wrap(ErrBadResponse, "no data")
	}

	if err := s.sessions.Login(env.Data.User, env.Data.AccessToken, env.Data.RefreshToken); err != nil {
		return session.Session{}, errors.Wrapf(err, "[Service.authenticate] %s", path)
	}
	snap := s.sessions.Snapshot()
	s.logger.Info().Str("user_id", snap.User.ID).Str("role", string(snap.User.Role)).Msg("logged in")
	return snap, nil
}

func rejection(statusErr *apiclient.StatusError) *APIError {
	apiErr := &APIError{Status: statusErr.StatusCode}
	var env Envelope
	if json.Unmarshal(statusErr.Body, &env) == nil {
		apiErr.Message = env.Message
	}
	return apiErr
}

// Logout tells the server the session is over, then always clears the local session.
// The returned error is the server call's, for logging only.
func (s *Service) Logout(ctx context.Context) error {
	defer s.sessions.Logout()

	snap := s.sessions.Snapshot()
	if !snap.IsAuthenticated {
		return nil
	}

	ctx, cancel := context.WithTimeout(apiclient.WithoutRefresh(ctx), s.logoutTimeout)
	defer cancel()
	err := s.client.PostJSON(ctx, LogoutPath, LogoutRequest{RefreshToken: snap.RefreshToken}, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("server logout failed, clearing local session anyway")
		return errors.Wrap(err, "[Service.Logout]")
	}
	return nil
}
