package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastStrategy() *RetryStrategy {
	return &RetryStrategy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	s := fastStrategy()
	attempts := 0
	err := s.Execute(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return status.Error(codes.Unavailable, "transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetriableFailsFast(t *testing.T) {
	s := fastStrategy()
	attempts := 0
	err := s.Execute(context.Background(), func() error {
		attempts++
		return status.Error(codes.InvalidArgument, "bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_PlainErrorsAreNotRetriedByDefault(t *testing.T) {
	s := fastStrategy()
	attempts := 0
	err := s.Execute(context.Background(), func() error {
		attempts++
		return errors.New("opaque")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_CustomClassifier(t *testing.T) {
	transient := errors.New("transient bus hiccup")
	s := fastStrategy()
	s.Retryable = func(err error) bool { return errors.Is(err, transient) }

	attempts := 0
	err := s.Execute(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return transient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetry_ExhaustionReturnsLastError(t *testing.T) {
	s := fastStrategy()
	attempts := 0
	err := s.Execute(context.Background(), func() error {
		attempts++
		return status.Error(codes.Unavailable, "still down")
	})
	require.Error(t, err)
	assert.Equal(t, 4, attempts) // 1 initial + 3 retries
	assert.Contains(t, err.Error(), "max retries")
}

func TestRetry_ContextCancellationStopsLoop(t *testing.T) {
	s := &RetryStrategy{
		MaxRetries: 10,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := s.Execute(ctx, func() error {
		attempts++
		return status.Error(codes.Unavailable, "down")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, attempts, 2)
}
