package refresh

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/tutorhub-session/internal/config"
)

var (
	ErrUnknownToken = errors.New("unknown refresh token")
	ErrExpiredToken = errors.New("refresh token expired")
)

// Config is the part of the development backend configuration the manager needs.
type Config interface {
	GetRefreshTokenLength() int
	GetRefreshTokenExpiry() time.Duration
	GetRotateRefreshTokens() bool
}

var _ Config = config.DevServer{}

// Manager handles refresh token creation, validation, and rotation
type Manager struct {
	repo    Repo
	config  Config
	nowFunc func() time.Time

	// consume must be atomic so a rotated token can only be spent once.
	mu sync.Mutex
}

// NewManager creates a new refresh token manager
func NewManager(repo Repo, cfg Config) *Manager {
	return &Manager{
		repo:    repo,
		config:  cfg,
		nowFunc: time.Now,
	}
}

// WithNowFunc overrides the clock, used by tests.
func (m *Manager) WithNowFunc(now func() time.Time) *Manager {
	m.nowFunc = now
	return m
}

// Create generates a new refresh token and stores it
func (m *Manager) Create(userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(userID)
}

func (m *Manager) createLocked(userID string) (string, error) {
	// Delete existing refresh token for this user (single refresh token per user)
	if existingToken, err := m.repo.GetByUserID(userID); err == nil && existingToken != nil {
		if err := m.repo.Delete(existingToken.Token); err != nil {
			return "", fmt.Errorf("failed to delete existing refresh token: %w", err)
		}
	}

	tokenBytes := make([]byte, m.config.GetRefreshTokenLength())
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	tokenStr := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(&StoredRefreshToken{
		Token:  tokenStr,
		UserID: userID,
		Iat:    m.nowFunc(),
	}); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return tokenStr, nil
}

// Redeem validates a refresh token. When rotation is enabled the token is consumed
// and a replacement returned; otherwise rotated is empty and the token stays valid.
func (m *Manager) Redeem(token string) (stored *StoredRefreshToken, rotated string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rt, err := m.repo.Get(token)
	if err != nil || rt == nil {
		return nil, "", ErrUnknownToken
	}
	if m.IsExpired(rt) {
		_ = m.repo.Delete(token)
		return nil, "", ErrExpiredToken
	}
	if !m.config.GetRotateRefreshTokens() {
		return rt, "", nil
	}

	rotated, err = m.createLocked(rt.UserID)
	if err != nil {
		return nil, "", err
	}
	return rt, rotated, nil
}

// Delete removes a refresh token from storage
func (m *Manager) Delete(token string) error {
	return m.repo.Delete(token)
}

// IsExpired checks if a refresh token has expired
func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	return m.nowFunc().Sub(rt.Iat) > m.config.GetRefreshTokenExpiry()
}
