package performance

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BenchmarkWorkerPool benchmarks the worker pool performance.
func BenchmarkWorkerPool(b *testing.B) {
	pool := NewWorkerPool(4)
	pool.Start()
	defer pool.Stop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var wg sync.WaitGroup
		wg.Add(1)
		if !pool.Submit(func() { wg.Done() }) {
			wg.Done()
		}
		wg.Wait()
	}
}

func TestWorkerPoolRunsEverySubmittedTask(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Start()

	var counter int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.True(t, pool.Submit(func() {
			atomic.AddInt64(&counter, 1)
			wg.Done()
		}))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for tasks to complete")
	}

	pool.Stop()
	assert.Equal(t, int64(100), atomic.LoadInt64(&counter))

	stats := pool.Stats()
	assert.False(t, stats.Running)
	assert.Equal(t, uint64(100), stats.TasksDone)
}

func TestWorkerPoolStopDrainsQueue(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()

	release := make(chan struct{})
	var ran atomic.Int32
	require.True(t, pool.Submit(func() { <-release; ran.Add(1) }))
	require.True(t, pool.Submit(func() { ran.Add(1) }))

	close(release)
	pool.Stop()

	assert.Equal(t, int32(2), ran.Load())
	assert.False(t, pool.Submit(func() {}), "stopped pool rejects work")
}

func TestWorkerPoolRestartsAfterStop(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	pool.Stop()
	pool.Start()
	defer pool.Stop()

	done := make(chan struct{})
	require.True(t, pool.Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("restarted pool did not run the task")
	}
	assert.True(t, pool.Stats().Running)
}

func TestRateLimiterFunctionality(t *testing.T) {
	limiter := NewRateLimiter(100, 10) // 100 requests/sec, burst of 10

	allowed := 0
	for i := 0; i < 15; i++ {
		if limiter.Allow() {
			allowed++
		}
	}
	assert.GreaterOrEqual(t, allowed, 10)

	time.Sleep(100 * time.Millisecond)
	assert.True(t, limiter.Allow(), "expected refill")
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, limiter.Wait(ctx), context.DeadlineExceeded)
}
