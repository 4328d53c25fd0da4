package reslimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		require.NoError(t, rl.CheckRateLimit("agent-1"), "request %d", i)
	}

	err := rl.CheckRateLimit("agent-1")
	var rerr *RateLimitError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "agent-1", rerr.Key)
	assert.Equal(t, 3, rerr.Requests)
	assert.Equal(t, 60, rerr.WindowSeconds)
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	require.NoError(t, rl.CheckRateLimit("a"))
	require.Error(t, rl.CheckRateLimit("a"))
	require.NoError(t, rl.CheckRateLimit("b"))
}

func TestRateLimiter_ForgetResetsBudget(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	require.NoError(t, rl.CheckRateLimit("a"))
	require.Error(t, rl.CheckRateLimit("a"))

	rl.Forget("a")
	require.NoError(t, rl.CheckRateLimit("a"))
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(50, 50*time.Millisecond)

	for i := 0; i < 50; i++ {
		require.NoError(t, rl.CheckRateLimit("a"))
	}
	require.Error(t, rl.CheckRateLimit("a"))

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, rl.CheckRateLimit("a"))
}
