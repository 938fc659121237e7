// Package performance provides concurrency helpers: a bounded worker pool
// for background jobs and a token bucket for outbound API calls.
package performance

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// WorkerPool manages a pool of workers for concurrent task execution.
type WorkerPool struct {
	workers    int
	queueSize  int
	taskQueue  chan func()
	wg         sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	tasksTotal atomic.Uint64
	tasksDone  atomic.Uint64
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0, it defaults to runtime.NumCPU().
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &WorkerPool{
		workers:   workers,
		queueSize: workers * 100,
	}
}

// Start starts the worker pool. A stopped pool can be started again with a
// fresh queue.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.taskQueue = make(chan func(), p.queueSize)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(p.taskQueue)
	}
}

func (p *WorkerPool) worker(tasks <-chan func()) {
	defer p.wg.Done()

	for task := range tasks {
		task()
		p.tasksDone.Add(1)
	}
}

// Submit submits a task to the worker pool.
// Returns false if the pool is not running or the queue is full.
func (p *WorkerPool) Submit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return false
	}

	select {
	case p.taskQueue <- task:
		p.tasksTotal.Add(1)
		return true
	default:
		return false
	}
}

// Stop stops accepting tasks and waits for queued tasks to finish.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.taskQueue)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() PoolStats {
	p.mu.RLock()
	running := p.running
	queued := len(p.taskQueue)
	p.mu.RUnlock()
	return PoolStats{
		Workers:    p.workers,
		Running:    running,
		TasksTotal: p.tasksTotal.Load(),
		TasksDone:  p.tasksDone.Load(),
		QueueLen:   queued,
	}
}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Workers    int
	Running    bool
	TasksTotal uint64
	TasksDone  uint64
	QueueLen   int
}

// RateLimiter implements a token bucket rate limiter.
type RateLimiter struct {
	rate       float64 // tokens per second
	burst      int     // max tokens
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

// Allow checks if a request is allowed under the rate limit.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.lastUpdate = now

	r.tokens += elapsed * r.rate
	if r.tokens > float64(r.burst) {
		r.tokens = float64(r.burst)
	}

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// Wait waits until a request is allowed.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		if r.Allow() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond * 10):
		}
	}
}
