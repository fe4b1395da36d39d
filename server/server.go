// Package server is a development stand-in for the TutorHub auth backend. It serves the
// login, registration, logout and refresh endpoints plus a protected /api/me.
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/tutorhub-session/internal/config"
	"github.com/jrsteele09/tutorhub-session/token"
	"github.com/jrsteele09/tutorhub-session/token/refresh"
	"github.com/jrsteele09/tutorhub-session/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const tokenIssuer = "tutorhub-devserver"

// Config is the configuration the backend reads.
type Config interface {
	config.EnvConfig
	config.DevServerConfig
}

// Repos holds the storage the backend runs on.
type Repos struct {
	Users         users.UserRepo
	RefreshTokens refresh.Repo
}

type Server struct {
	env     string
	mux     *http.ServeMux
	routes  []string
	config  Config
	repos   Repos
	issuer  *token.Issuer
	refresh *refresh.Manager
	nowFunc func() time.Time
	logger  zerolog.Logger
}

type ServerOption func(*Server)

// WithNowFunc replaces the clock used for token issue and expiry, used by tests.
func WithNowFunc(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(cfg Config, repos Repos, options ...ServerOption) (*Server, error) {
	if repos.Users == nil || repos.RefreshTokens == nil {
		return nil, errors.New("[server.New] user and refresh token repos are required")
	}
	if cfg.GetTokenSecret() == "" {
		return nil, errors.New("[server.New] token secret is required")
	}

	s := &Server{
		env:     cfg.GetEnv(),
		mux:     http.NewServeMux(),
		config:  cfg,
		repos:   repos,
		nowFunc: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}

	s.issuer = token.NewIssuer(token.NewHMACSigner(cfg.GetTokenSecret()),
		token.WithIssuer(tokenIssuer),
		token.WithAccessTokenExpiry(cfg.GetAccessTokenExpiry()),
		token.WithNowFunc(s.nowFunc),
	)
	s.refresh = refresh.NewManager(repos.RefreshTokens, cfg).WithNowFunc(s.nowFunc)

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Issuer exposes the access token issuer, for housekeeping jobs.
func (s *Server) Issuer() *token.Issuer {
	return s.issuer
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	s.logger.Info().Msgf("[%-19s] %s", displayMethod, path)
}
