package resilience

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name    string        `json:"name"`
	Status  HealthStatus  `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency_ns"`
}

// HealthCheck checks one component.
type HealthCheck func(ctx context.Context) ComponentHealth

// SystemHealth is the aggregate of every registered check.
type SystemHealth struct {
	Status     HealthStatus      `json:"status"`
	Uptime     string            `json:"uptime"`
	CheckedAt  time.Time         `json:"checked_at"`
	Components []ComponentHealth `json:"components"`
}

// HealthMonitor runs registered checks on demand.
type HealthMonitor struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheck
	startTime time.Time
	timeout   time.Duration
}

// NewHealthMonitor creates a monitor whose checks share the timeout.
func NewHealthMonitor(timeout time.Duration) *HealthMonitor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthMonitor{
		checks:    make(map[string]HealthCheck),
		startTime: time.Now(),
		timeout:   timeout,
	}
}

// Register adds or replaces a named check.
func (m *HealthMonitor) Register(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Check runs every check concurrently. Any unhealthy component makes the
// system unhealthy; a degraded one makes it degraded.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.mu.RLock()
	checks := make(map[string]HealthCheck, len(m.checks))
	for k, v := range m.checks {
		checks[k] = v
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan ComponentHealth, len(checks))
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results <- ComponentHealth{Name: name, Status: HealthStatusUnhealthy, Message: fmt.Sprintf("check panicked: %v", r)}
				}
			}()
			start := time.Now()
			h := check(ctx)
			h.Name = name
			if h.Latency == 0 {
				h.Latency = time.Since(start)
			}
			results <- h
		}(name, check)
	}
	wg.Wait()
	close(results)

	health := SystemHealth{
		Status:    HealthStatusHealthy,
		Uptime:    time.Since(m.startTime).Round(time.Second).String(),
		CheckedAt: time.Now().UTC(),
	}
	for h := range results {
		health.Components = append(health.Components, h)
		switch h.Status {
		case HealthStatusUnhealthy:
			health.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if health.Status == HealthStatusHealthy {
				health.Status = HealthStatusDegraded
			}
		}
	}
	sort.Slice(health.Components, func(i, j int) bool {
		return health.Components[i].Name < health.Components[j].Name
	})
	return health
}

// PingCheck reports a store unhealthy when its ping fails and degraded when
// it answers slower than slow.
func PingCheck(ping func(ctx context.Context) error, slow time.Duration) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		err := ping(ctx)
		h := ComponentHealth{Latency: time.Since(start)}
		switch {
		case err != nil:
			h.Status = HealthStatusUnhealthy
			h.Message = fmt.Sprintf("ping failed: %v", err)
		case slow > 0 && h.Latency > slow:
			h.Status = HealthStatusDegraded
			h.Message = fmt.Sprintf("slow: %v", h.Latency.Round(time.Millisecond))
		default:
			h.Status = HealthStatusHealthy
		}
		return h
	}
}

// BreakerCheck reports an open circuit as degraded: the service still
// answers but calls through the breaker fail fast.
func BreakerCheck(b *Breaker) HealthCheck {
	return func(context.Context) ComponentHealth {
		switch state := b.State(); state {
		case CircuitOpen:
			return ComponentHealth{Status: HealthStatusDegraded, Message: "circuit open"}
		case CircuitHalfOpen:
			return ComponentHealth{Status: HealthStatusDegraded, Message: "circuit probing"}
		default:
			return ComponentHealth{Status: HealthStatusHealthy}
		}
	}
}
