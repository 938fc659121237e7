package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ReturnsLastError(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(), func() (int, error) {
		calls++
		return 0, errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad request")
	cfg := fastRetry()
	cfg.ShouldRetry = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetry_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry()
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour

	calls := 0
	err := Retry(ctx, cfg, func() error {
		calls++
		cancel()
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, CalculateBackoff(0, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, 400*time.Millisecond, CalculateBackoff(2, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, time.Second, CalculateBackoff(10, 100*time.Millisecond, time.Second, 2))
}
