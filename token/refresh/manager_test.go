package refresh_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/tutorhub-session/token/refresh"
	refreshrepofake "github.com/jrsteele09/tutorhub-session/token/refresh/repofake"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	rotate bool
}

func (testConfig) GetRefreshTokenLength() int { return 16 }
func (testConfig) GetRefreshTokenExpiry() time.Duration { return time.Hour }
func (c testConfig) GetRotateRefreshTokens() bool { return c.rotate }

func TestManager_RedeemRotatesOnce(t *testing.T) {
	m := refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), testConfig{rotate: true})

	r1, err := m.Create("u1")
	require.NoError(t, err)
	require.Len(t, r1, 32)

	stored, r2, err := m.Redeem(r1)
	require.NoError(t, err)
	require.Equal(t, "u1", stored.UserID)
	require.NotEmpty(t, r2)
	require.NotEqual(t, r1, r2)

	// A rotated token is single use.
	_, _, err = m.Redeem(r1)
	require.ErrorIs(t, err, refresh.ErrUnknownToken)

	_, _, err = m.Redeem(r2)
	require.NoError(t, err)
}

func TestManager_RedeemWithoutRotation(t *testing.T) {
	m := refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), testConfig{rotate: false})

	r1, err := m.Create("u1")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, rotated, err := m.Redeem(r1)
		require.NoError(t, err)
		require.Empty(t, rotated)
	}
}

func TestManager_RedeemExpired(t *testing.T) {
	now := time.Now()
	m := refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), testConfig{rotate: true}).
		WithNowFunc(func() time.Time { return now })

	r1, err := m.Create("u1")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, _, err = m.Redeem(r1)
	require.ErrorIs(t, err, refresh.ErrExpiredToken)
}

func TestManager_CreateReplacesPreviousToken(t *testing.T) {
	m := refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), testConfig{rotate: false})

	r1, err := m.Create("u1")
	require.NoError(t, err)
	_, err = m.Create("u1")
	require.NoError(t, err)

	_, _, err = m.Redeem(r1)
	require.ErrorIs(t, err, refresh.ErrUnknownToken)
}
