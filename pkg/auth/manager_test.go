package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*TokenManager, *MemoryBlacklist) {
	t.Helper()
	bl := NewMemoryBlacklist()
	tm := NewTokenManager(Config{
		SecretKey:      []byte("test-secret-key-not-for-production"),
		Issuer:         "gatekeeper-test",
		Audience:       "gatekeeper-clients",
		AccessTTL:      time.Minute,
		RefreshTTL:     time.Hour,
		RefreshAllowed: true,
		Blacklist:      bl,
	})
	return tm, bl
}

func TestGenerateAndAuthenticate(t *testing.T) {
	tm, _ := newTestManager(t)
	principal := Principal{ID: "agent-1", Roles: []string{"reader"}}

	pair, err := tm.GenerateTokens(principal)
	require.NoError(t, err)
	require.True(t, pair.HasRefresh)

	got, err := tm.Authenticate(pair.Access.String())
	require.NoError(t, err)
	assert.Equal(t, "agent-1", got.ID)
	assert.Equal(t, []string{"reader"}, got.Roles)
}

func TestAuthenticateToken_TypeSafe(t *testing.T) {
	tm, _ := newTestManager(t)
	pair, err := tm.GenerateTokens(Principal{ID: "agent-1"})
	require.NoError(t, err)

	_, err = tm.AuthenticateToken(pair.Access)
	assert.NoError(t, err)
}

func TestAuthenticate_WrongTokenType(t *testing.T) {
	tm, _ := newTestManager(t)
	pair, err := tm.GenerateTokens(Principal{ID: "agent-1"})
	require.NoError(t, err)

	_, err = tm.Authenticate(pair.Refresh.String())
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestRevoke_BlacklistsAccessToken(t *testing.T) {
	tm, bl := newTestManager(t)
	pair, err := tm.GenerateTokens(Principal{ID: "agent-1"})
	require.NoError(t, err)

	require.NoError(t, tm.Revoke(pair.Access.String()))
	assert.Equal(t, 1, bl.Count())

	_, err = tm.Authenticate(pair.Access.String())
	assert.ErrorIs(t, err, ErrRevokedToken)
}

func TestRevoke_NoBlacklistConfigured(t *testing.T) {
	tm := NewTokenManager(Config{
		SecretKey: []byte("test-secret-key-not-for-production"),
		Issuer:    "gatekeeper-test",
		Audience:  "gatekeeper-clients",
		AccessTTL: time.Minute,
	})
	pair, err := tm.GenerateTokens(Principal{ID: "agent-1"})
	require.NoError(t, err)

	err = tm.Revoke(pair.Access.String())
	assert.Error(t, err)
}

func TestRefresh_DisabledManager(t *testing.T) {
	tm := NewTokenManager(Config{
		SecretKey: []byte("test-secret-key-not-for-production"),
		Issuer:    "gatekeeper-test",
		Audience:  "gatekeeper-clients",
		AccessTTL: time.Minute,
	})
	_, err := tm.Refresh("anything", time.Minute)
	assert.ErrorIs(t, err, ErrRefreshDisabled)
}

func TestRefresh_RotatesRefreshToken(t *testing.T) {
	tm, _ := newTestManager(t)
	pair, err := tm.GenerateTokens(Principal{ID: "agent-1", Roles: []string{"writer"}})
	require.NoError(t, err)

	newPair, err := tm.Refresh(pair.Refresh.String(), time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, pair.Access.String(), newPair.Access.String())

	_, err = tm.Refresh(pair.Refresh.String(), time.Hour)
	assert.Error(t, err, "rotated refresh token must not be reusable")
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	tm := NewTokenManager(Config{
		SecretKey: []byte("test-secret-key-not-for-production"),
		Issuer:    "gatekeeper-test",
		Audience:  "gatekeeper-clients",
		AccessTTL: -time.Second,
		Blacklist: NewMemoryBlacklist(),
	})
	pair, err := tm.GenerateTokens(Principal{ID: "agent-1"})
	require.NoError(t, err)

	_, err = tm.Authenticate(pair.Access.String())
	assert.ErrorIs(t, err, ErrExpiredToken)
}
