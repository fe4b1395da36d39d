package session

import (
	"context"

	"github.com/jrsteele09/tutorhub-session/token"
	"github.com/pkg/errors"
)

// Hydrate loads the persisted session. Only the first call touches storage; every call
// returns once hydration has finished (or ctx is done). A storage failure yields an empty
// session and is returned, but hydration still counts as complete.
func (m *Manager) Hydrate(ctx context.Context) (Session, error) {
	if m.hydrateStarted.CompareAndSwap(false, true) {
		m.hydrate(ctx)
	}

	select {
	case <-m.hydrated:
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}
	return m.Snapshot(), m.hydrateErr
}

func (m *Manager) hydrate(ctx context.Context) {
	loadCtx, cancel := context.WithTimeout(ctx, m.persistTimeout)
	record, err := m.storage.Load(loadCtx)
	cancel()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	var (
		snap    Session
		discard bool
	)
	switch {
	case err != nil:
		m.hydrateErr = errors.Wrap(err, "[Manager.Hydrate] load")
		m.logger.Err(err).Msg("session hydration failed, starting logged out")
	case m.mutated:
		// A login or logout won the race against storage; it is newer than anything stored.
		m.logger.Debug().Msg("discarding hydrated session, state changed during load")
	case record == nil:
	case !record.complete():
		discard = record.IsAuthenticated || record.User != nil
	default:
		m.user = record.User.Clone()
		m.creds = token.NewOAuth2Token(record.AccessToken, record.RefreshToken)
		m.gen = m.startGenerationLocked()
		m.logger.Info().Str("user_id", m.user.ID).Str("generation", m.gen.id).Msg("session restored")
	}
	snap = m.snapshotLocked()
	empty := m.recordLocked()
	m.mu.Unlock()

	if discard {
		m.logger.Warn().Msg("persisted session is incomplete, clearing it")
		m.save(empty)
	}

	close(m.hydrated)
	m.notify(snap)
}

// Hydrated is closed once hydration has completed.
func (m *Manager) Hydrated() <-chan struct{} {
	return m.hydrated
}

// IsHydrated reports whether hydration has completed.
func (m *Manager) IsHydrated() bool {
	select {
	case <-m.hydrated:
		return true
	default:
		return false
	}
}

// WaitHydrated blocks until hydration completes or ctx is done.
func (m *Manager) WaitHydrated(ctx context.Context) error {
	select {
	case <-m.hydrated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
