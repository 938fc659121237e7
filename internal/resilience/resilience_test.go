package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func fail(context.Context) error { return errUpstream }
func pass(context.Context) error { return nil }

func newTestBreaker(threshold int) (*Breaker, *time.Time) {
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	b := NewBreaker("model", BreakerConfig{FailureThreshold: threshold, SuccessThreshold: 1, Cooldown: time.Minute})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	b, now := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	}
	assert.Equal(t, CircuitOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	*now = now.Add(time.Minute)
	require.NoError(t, b.Execute(ctx, pass))
	assert.Equal(t, CircuitClosed, b.State())

	stats := b.Stats()
	assert.Equal(t, int64(4), stats.TotalCalls)
	assert.Equal(t, int64(3), stats.TotalFailures)
	assert.Equal(t, int64(1), stats.TotalRejected)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	require.Equal(t, CircuitOpen, b.State())

	*now = now.Add(time.Minute)
	assert.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	assert.Equal(t, CircuitOpen, b.State())
	assert.ErrorIs(t, b.Execute(ctx, pass), ErrCircuitOpen)
}

func TestBreakerHalfOpenAdmitsOneTrialCall(t *testing.T) {
	b, now := newTestBreaker(1)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	*now = now.Add(time.Minute)

	trialStarted := make(chan struct{})
	releaseTrial := make(chan struct{})
	trialDone := make(chan error, 1)
	go func() {
		trialDone <- b.Execute(ctx, func(context.Context) error {
			close(trialStarted)
			<-releaseTrial
			return nil
		})
	}()
	<-trialStarted
	require.Equal(t, CircuitHalfOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	close(releaseTrial)
	require.NoError(t, <-trialDone)
	assert.Equal(t, CircuitClosed, b.State())
	require.NoError(t, b.Execute(ctx, pass))
}

func TestBreakerCancelledTrialAllowsAnother(t *testing.T) {
	b, now := newTestBreaker(1)
	_ = b.Execute(context.Background(), fail)
	*now = now.Add(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, b.Execute(context.Background(), pass))
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	b, _ := newTestBreaker(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerDisabled(t *testing.T) {
	b, _ := newTestBreaker(0)
	for i := 0; i < 10; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	assert.Equal(t, CircuitClosed, b.State())
}

func TestExecuteWithResult(t *testing.T) {
	b, _ := newTestBreaker(2)
	out, err := ExecuteWithResult(context.Background(), b, func(context.Context) (string, error) {
		return "journaled", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "journaled", out)
}

// The circuit opens exactly when a run of consecutive failures reaches the
// threshold; a success in between resets the run.
func TestProperty_BreakerOpensOnConsecutiveFailures(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("open iff the failure run reached the threshold", prop.ForAll(
		func(outcomes []bool, threshold int) bool {
			b, _ := newTestBreaker(threshold)
			run := 0
			for _, ok := range outcomes {
				if b.State() == CircuitOpen {
					return run >= threshold
				}
				if ok {
					_ = b.Execute(context.Background(), pass)
					run = 0
				} else {
					_ = b.Execute(context.Background(), fail)
					run++
				}
			}
			return (b.State() == CircuitOpen) == (run >= threshold)
		},
		gen.SliceOf(gen.Bool()),
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}

func TestHealthMonitorAggregates(t *testing.T) {
	m := NewHealthMonitor(time.Second)
	m.Register("database", PingCheck(func(context.Context) error { return nil }, 0))

	health := m.Check(context.Background())
	assert.Equal(t, HealthStatusHealthy, health.Status)
	require.Len(t, health.Components, 1)
	assert.Equal(t, "database", health.Components[0].Name)

	b, _ := newTestBreaker(1)
	_ = b.Execute(context.Background(), fail)
	m.Register("model", BreakerCheck(b))
	health = m.Check(context.Background())
	assert.Equal(t, HealthStatusDegraded, health.Status)

	m.Register("redis", PingCheck(func(context.Context) error { return errUpstream }, 0))
	health = m.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, health.Status)
	require.Len(t, health.Components, 3)
	assert.Equal(t, "redis", health.Components[2].Name)
	assert.Contains(t, health.Components[2].Message, "upstream down")
}

func TestHealthMonitorRecoversPanics(t *testing.T) {
	m := NewHealthMonitor(time.Second)
	m.Register("broken", func(context.Context) ComponentHealth { panic("boom") })

	health := m.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, health.Status)
	assert.Contains(t, health.Components[0].Message, "boom")
}
