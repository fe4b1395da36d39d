package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/tutorhub-session/token"
	"github.com/jrsteele09/tutorhub-session/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

type generation struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

// Manager is the process-wide session store. Construct one at startup and pass it to
// the HTTP client and the access gate.
type Manager struct {
	storage        Storage
	logger         zerolog.Logger
	persistTimeout time.Duration
	newID          func() string

	// writeMu serialises mutations so storage writes land in the same order as memory updates.
	writeMu sync.Mutex

	mu      sync.RWMutex
	user    *users.User
	creds   *oauth2.Token
	loading bool
	gen     generation
	mutated bool // set by persisted mutations, a later hydrate result is then discarded

	hydrateStarted atomic.Bool
	hydrated       chan struct{}
	hydrateErr     error

	subMu  sync.Mutex
	subs   map[int]chan Session
	nextID int
}

type ManagerOption func(*Manager)

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithPersistTimeout bounds every storage call.
func WithPersistTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.persistTimeout = d
	}
}

// WithGenerationIDFunc replaces the uuid generator, used by tests.
func WithGenerationIDFunc(fn func() string) ManagerOption {
	return func(m *Manager) {
		m.newID = fn
	}
}

func New(storage Storage, options ...ManagerOption) *Manager {
	m := &Manager{
		storage:        storage,
		logger:         log.Logger,
		persistTimeout: 5 * time.Second,
		newID:          func() string { return uuid.New().String() },
		gen:            emptyGeneration(),
		hydrated:       make(chan struct{}),
		subs:           make(map[int]chan Session),
	}
	for _, opt := range options {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "session").Logger()
	return m
}

func emptyGeneration() generation {
	return generation{ctx: context.Background(), cancel: func() {}}
}

// Login replaces the session wholesale. All three values must be present, otherwise
// ErrInvalidSession is returned and the previous state is kept.
func (m *Manager) Login(user *users.User, accessToken, refreshToken string) error {
	accessToken = strings.TrimSpace(accessToken)
	refreshToken = strings.TrimSpace(refreshToken)
	if !user.Valid() || accessToken == "" || refreshToken == "" {
		return ErrInvalidSession
	}

	return m.mutate(func() error {
		m.endGenerationLocked()
		m.user = user.Clone()
		m.creds = token.NewOAuth2Token(accessToken, refreshToken)
		m.gen = m.startGenerationLocked()
		m.logger.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Str("generation", m.gen.id).Msg("session started")
		return nil
	}, true)
}

// Logout clears the session. It never waits on the network; in-flight requests of the
// ending generation are cancelled.
func (m *Manager) Logout() {
	_ = m.mutate(func() error {
		m.logoutLocked()
		return nil
	}, true)
}

func (m *Manager) logoutLocked() {
	if m.gen.id != "" {
		m.logger.Info().Str("generation", m.gen.id).Msg("session ended")
	}
	m.endGenerationLocked()
	m.user = nil
	m.creds = nil
	m.loading = false
}

// SetLoading flips the in-flight flag only. The persisted subset is unchanged so nothing is written.
func (m *Manager) SetLoading(loading bool) {
	_ = m.mutate(func() error {
		m.loading = loading
		return nil
	}, false)
}

// UpdateUser shallow-merges patch into the current user.
func (m *Manager) UpdateUser(patch users.Patch) error {
	return m.mutate(func() error {
		if m.user == nil {
			return ErrNoActiveSession
		}
		merged, err := patch.Apply(m.user)
		if err != nil {
			return errors.Wrap(err, "[Manager.UpdateUser]")
		}
		m.user = merged
		return nil
	}, true)
}

// ApplyRefresh stores a refreshed access token for generation gen. refreshToken is
// only replaced when the server rotated it.
func (m *Manager) ApplyRefresh(gen, accessToken, refreshToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return errors.Wrap(ErrInvalidSession, "[Manager.ApplyRefresh] empty access token")
	}
	return m.mutate(func() error {
		if gen == "" || gen != m.gen.id || m.creds == nil {
			return ErrStaleSession
		}
		rt := m.creds.RefreshToken
		if refreshToken != "" {
			rt = refreshToken
		}
		m.creds = token.NewOAuth2Token(accessToken, rt)
		return nil
	}, true)
}

// Expire logs out if gen is still the current generation. It reports whether it did,
// so concurrent failures of one generation clear the session exactly once.
func (m *Manager) Expire(gen string) bool {
	expired := false
	_ = m.mutate(func() error {
		if gen == "" || gen != m.gen.id {
			return ErrStaleSession
		}
		m.logger.Warn().Str("generation", gen).Msg("session expired")
		m.logoutLocked()
		expired = true
		return nil
	}, true)
	return expired
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Credentials returns the current bearer token bound to its generation.
func (m *Manager) Credentials() Credentials {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := Credentials{Generation: m.gen.id, Context: m.gen.ctx}
	if m.creds != nil {
		t := *m.creds
		c.Token = &t
	}
	return c
}

func (m *Manager) snapshotLocked() Session {
	s := Session{User: m.user.Clone(), IsLoading: m.loading}
	if m.creds != nil {
		s.AccessToken = m.creds.AccessToken
		s.RefreshToken = m.creds.RefreshToken
	}
	s.IsAuthenticated = s.User != nil && s.AccessToken != "" && s.RefreshToken != ""
	return s
}

func (m *Manager) recordLocked() Record {
	s := m.snapshotLocked()
	return Record{
		User:            s.User,
		AccessToken:     s.AccessToken,
		RefreshToken:    s.RefreshToken,
		IsAuthenticated: s.IsAuthenticated,
	}
}

func (m *Manager) startGenerationLocked() generation {
	ctx, cancel := context.WithCancel(context.Background())
	return generation{id: m.newID(), ctx: ctx, cancel: cancel}
}

func (m *Manager) endGenerationLocked() {
	m.gen.cancel()
	m.gen = emptyGeneration()
}

// mutate applies fn atomically, then persists (when persist is set) and notifies subscribers.
// Writes are serialised by writeMu; readers only ever wait on mu, never on I/O.
func (m *Manager) mutate(fn func() error, persist bool) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if err := fn(); err != nil {
		m.mu.Unlock()
		return err
	}
	if persist {
		m.mutated = true
	}
	record := m.recordLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if persist {
		m.save(record)
	}
	m.notify(snap)
	return nil
}

// save failures are logged; memory stays authoritative.
func (m *Manager) save(record Record) {
	ctx, cancel := context.WithTimeout(context.Background(), m.persistTimeout)
	defer cancel()
	if err := m.storage.Save(ctx, record); err != nil {
		m.logger.Err(err).Msg("failed to persist session")
	}
}
