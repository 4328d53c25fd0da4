package reslimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCpuPercent(t *testing.T) {
	cases := []struct {
		value float64
		ok    bool
	}{
		{0, true},
		{50, true},
		{100, true},
		{-0.1, false},
		{100.1, false},
	}
	for _, tc := range cases {
		cpu, ok := NewCpuPercent(tc.value)
		assert.Equal(t, tc.ok, ok, "value %v", tc.value)
		if ok {
			assert.Equal(t, tc.value, cpu.Value())
		} else {
			assert.Zero(t, cpu.Value())
		}
	}
}

func TestLimitError_Message(t *testing.T) {
	err := &LimitError{Kind: ErrMemoryLimitExceeded, Observed: 512, Limit: 256}
	assert.Contains(t, err.Error(), "memory_limit_exceeded")
	assert.Contains(t, err.Error(), "512")
	assert.Contains(t, err.Error(), "256")
}
