// Package session holds the authenticated client session: the single source of truth
// for the current user and credentials, persisted across restarts.
package session

import (
	"context"

	errs "github.com/jrsteele09/tutorhub-session/internal/errors"
	"github.com/jrsteele09/tutorhub-session/users"
	"golang.org/x/oauth2"
)

// StorageKey is the fixed namespace the persisted record lives under.
const StorageKey = "tutorhub-auth-storage"

var (
	ErrInvalidSession  = errs.ErrInvalidSession
	ErrNoActiveSession = errs.ErrNoActiveSession
	ErrStaleSession    = errs.ErrStaleSession
)

// Session is a point-in-time copy of the authentication state.
type Session struct {
	User            *users.User
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool
	IsLoading       bool
}

// Record is the persisted subset of a Session. IsLoading and refresh bookkeeping are never stored.
type Record struct {
	User            *users.User `json:"user"`
	AccessToken     string      `json:"accessToken,omitempty"`
	RefreshToken    string      `json:"refreshToken,omitempty"`
	IsAuthenticated bool        `json:"isAuthenticated"`
}

// complete reports whether all three authentication fields are present.
func (r Record) complete() bool {
	return r.User.Valid() && r.AccessToken != "" && r.RefreshToken != ""
}

// Storage is the durable backing for the persisted record.
// Load returns (nil, nil) when nothing has been stored yet.
type Storage interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, record Record) error
}

// Credentials is what the HTTP client needs to authenticate one request.
type Credentials struct {
	// Generation identifies the login the credentials belong to. Empty when logged out.
	Generation string
	// Context is cancelled when the generation ends (logout or re-login).
	Context context.Context
	Token   *oauth2.Token
}

// Authenticated reports whether there is a bearer token to attach.
func (c Credentials) Authenticated() bool {
	return c.Token != nil && c.Token.AccessToken != ""
}
