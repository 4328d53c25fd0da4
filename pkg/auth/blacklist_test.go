package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBlacklist_RevokeAndExpire(t *testing.T) {
	b := NewMemoryBlacklist()
	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Revoke("jti-1", time.Minute))
	assert.True(t, b.IsRevoked("jti-1"))
	assert.False(t, b.IsRevoked("jti-other"))
	assert.Equal(t, 1, b.Count())

	// Past the TTL the entry no longer counts as revoked even before a
	// sweep removes it.
	now = now.Add(2 * time.Minute)
	assert.False(t, b.IsRevoked("jti-1"))
	assert.Equal(t, 1, b.Count())

	b.Sweep()
	assert.Equal(t, 0, b.Count())
}

func TestMemoryBlacklist_NonPositiveTTLIsNoop(t *testing.T) {
	b := NewMemoryBlacklist()
	require.NoError(t, b.Revoke("jti-expired", 0))
	require.NoError(t, b.Revoke("jti-negative", -time.Minute))
	assert.Equal(t, 0, b.Count())
}

func TestMemoryBlacklist_SweeperStops(t *testing.T) {
	b := NewMemoryBlacklist()
	stop := make(chan struct{})
	b.StartSweeper(time.Millisecond, stop)
	require.NoError(t, b.Revoke("jti-1", time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	close(stop)
	assert.Equal(t, 0, b.Count())
}
