// Package resilience guards calls to flaky upstreams (the language model,
// Google APIs) and reports the health of the pieces the service depends on.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"    // calls flow
	CircuitOpen     CircuitState = "OPEN"      // calls rejected until the cooldown passes
	CircuitHalfOpen CircuitState = "HALF_OPEN" // trialing
)

// ErrCircuitOpen is returned without calling the upstream while the circuit
// is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Zero disables the breaker.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that close it.
	SuccessThreshold int
	// Cooldown is how long the circuit stays open before trialing.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the thresholds used for model calls.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Cooldown:         30 * time.Second,
	}
}

// Breaker is a consecutive-failure circuit breaker. Calls run on the
// caller's goroutine.
type Breaker struct {
	name   string
	config BreakerConfig
	now    func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	trialing  bool // a half-open trial call is in flight
	openedAt  time.Time
	stats     BreakerStats
}

// BreakerStats is a point-in-time view of a breaker.
type BreakerStats struct {
	Name            string       `json:"name"`
	State           CircuitState `json:"state"`
	TotalCalls      int64        `json:"total_calls"`
	TotalFailures   int64        `json:"total_failures"`
	TotalRejected   int64        `json:"total_rejected"`
	CurrentFailures int          `json:"current_failures"`
	LastFailure     time.Time    `json:"last_failure,omitempty"`
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, config BreakerConfig) *Breaker {
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &Breaker{
		name:   name,
		config: config,
		now:    time.Now,
		state:  CircuitClosed,
	}
}

// Execute runs fn unless the circuit is open. A cancelled caller context is
// not held against the upstream.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	trial, err := b.allow()
	if err != nil {
		return err
	}
	err = fn(ctx)
	switch {
	case err == nil:
		b.recordSuccess(trial)
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		b.release(trial)
	default:
		b.recordFailure()
	}
	return err
}

// ExecuteWithResult is Execute for calls that produce a value.
func ExecuteWithResult[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// allow admits a call. In the half-open state only one trial is in flight at
// a time; trial reports whether this call is it.
func (b *Breaker) allow() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.config.FailureThreshold <= 0 {
		b.stats.TotalCalls++
		return false, nil
	}
	if b.state == CircuitOpen {
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			b.stats.TotalRejected++
			return false, ErrCircuitOpen
		}
		b.transitionTo(CircuitHalfOpen)
	}
	if b.state == CircuitHalfOpen {
		if b.trialing {
			b.stats.TotalRejected++
			return false, ErrCircuitOpen
		}
		b.trialing = true
		trial = true
	}
	b.stats.TotalCalls++
	return trial, nil
}

func (b *Breaker) recordSuccess(trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitHalfOpen:
		if !trial {
			return
		}
		b.trialing = false
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.transitionTo(CircuitClosed)
		}
	default:
		b.failures = 0
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.TotalFailures++
	b.stats.LastFailure = b.now()
	if b.config.FailureThreshold <= 0 {
		return
	}

	switch b.state {
	case CircuitHalfOpen:
		b.transitionTo(CircuitOpen)
	default:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transitionTo(CircuitOpen)
		}
	}
}

// release undoes a half-open trial whose caller went away.
func (b *Breaker) release(trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if trial && b.state == CircuitHalfOpen {
		b.transitionTo(CircuitOpen)
		b.openedAt = b.now().Add(-b.config.Cooldown)
	}
}

func (b *Breaker) transitionTo(state CircuitState) {
	b.state = state
	b.failures = 0
	b.successes = 0
	b.trialing = false
	if state == CircuitOpen {
		b.openedAt = b.now()
	}
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Name() string { return b.name }

// Stats returns breaker counters.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Name = b.name
	s.State = b.state
	s.CurrentFailures = b.failures
	return s
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(CircuitClosed)
}
