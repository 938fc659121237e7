package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("session-%d", n)
	}
}

type sessionRecordStore interface {
	SessionStore
	RecordStore
}

func newSQLiteForTest(t *testing.T, clock *testClock) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"), Options{
		TTL:   15 * time.Minute,
		Now:   clock.Now,
		NewID: sequentialIDs(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newMemoryForTest(t *testing.T, clock *testClock) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(Options{TTL: 15 * time.Minute, Now: clock.Now, NewID: sequentialIDs()})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRedisForTest(t *testing.T, clock *testClock) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "test", Options{TTL: 15 * time.Minute, Now: clock.Now, NewID: sequentialIDs()})
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

// backends runs fn against each backend.
func backends(t *testing.T, fn func(t *testing.T, s sessionRecordStore, clock *testClock)) {
	t.Run("sqlite", func(t *testing.T) {
		clock := newTestClock()
		fn(t, newSQLiteForTest(t, clock), clock)
	})
	t.Run("memory", func(t *testing.T) {
		clock := newTestClock()
		fn(t, newMemoryForTest(t, clock), clock)
	})
	t.Run("redis", func(t *testing.T) {
		clock := newTestClock()
		s, _ := newRedisForTest(t, clock)
		fn(t, s, clock)
	})
}

func TestSessionLifecycle(t *testing.T) {
	backends(t, func(t *testing.T, s sessionRecordStore, clock *testClock) {
		ctx := context.Background()

		created, err := s.Create(ctx, "u1", Turn{
			Message:       "  bought AAPL  ",
			Structured:    models.Fields{Ticker: models.Some("AAPL")},
			MissingFields: []string{"pnl", "position_type"},
		})
		require.NoError(t, err)
		assert.Equal(t, "session-1", created.SessionID())
		assert.Equal(t, []string{"bought AAPL"}, created.Conversation())

		clock.Advance(time.Minute)
		updated, err := s.Update(ctx, created.SessionID(), Turn{
			Message:       "long, made 120",
			Structured:    models.Fields{PositionType: models.Some("long")},
			MissingFields: []string{"pnl"},
		})
		require.NoError(t, err)
		assert.Equal(t, clock.Now(), updated.UpdatedAt())

		got, err := s.Get(ctx, created.SessionID())
		require.NoError(t, err)
		assert.Equal(t, "u1", got.UserID())
		assert.Equal(t, []string{"bought AAPL", "long, made 120"}, got.Conversation())
		assert.Equal(t, []string{"pnl"}, got.MissingFields())
		assert.Equal(t, "AAPL", got.Structured().Ticker.OrZero())
		assert.Equal(t, "long", got.Structured().PositionType.OrZero())
		assert.True(t, got.CreatedAt().Equal(created.CreatedAt()))
		assert.True(t, got.UpdatedAt().Equal(clock.Now()))

		require.NoError(t, s.Delete(ctx, created.SessionID()))
		_, err = s.Get(ctx, created.SessionID())
		assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

		assert.NoError(t, s.Delete(ctx, created.SessionID()))
	})
}

func TestUpdateUnknownSession(t *testing.T) {
	backends(t, func(t *testing.T, s sessionRecordStore, _ *testClock) {
		_, err := s.Update(context.Background(), "nope", Turn{Message: "hello"})
		assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})
}

func TestGetActiveForUser(t *testing.T) {
	backends(t, func(t *testing.T, s sessionRecordStore, clock *testClock) {
		ctx := context.Background()

		_, err := s.GetActiveForUser(ctx, "u1")
		assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

		first, err := s.Create(ctx, "u1", Turn{Message: "first", MissingFields: []string{"pnl"}})
		require.NoError(t, err)

		clock.Advance(time.Second)
		_, err = s.Create(ctx, "u2", Turn{Message: "other user", MissingFields: []string{"ticker"}})
		require.NoError(t, err)

		active, err := s.GetActiveForUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, first.SessionID(), active.SessionID())

		// A newer complete session hides the older incomplete one.
		clock.Advance(time.Second)
		_, err = s.Create(ctx, "u1", Turn{Message: "complete"})
		require.NoError(t, err)

		_, err = s.GetActiveForUser(ctx, "u1")
		assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})
}

func TestPruneExpiresIdleSessions(t *testing.T) {
	backends(t, func(t *testing.T, s sessionRecordStore, clock *testClock) {
		ctx := context.Background()

		stale, err := s.Create(ctx, "u1", Turn{Message: "stale", MissingFields: []string{"pnl"}})
		require.NoError(t, err)

		clock.Advance(10 * time.Minute)
		fresh, err := s.Create(ctx, "u2", Turn{Message: "fresh", MissingFields: []string{"pnl"}})
		require.NoError(t, err)

		clock.Advance(6 * time.Minute)
		n, err := s.Prune(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.Get(ctx, stale.SessionID())
		assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		_, err = s.Get(ctx, fresh.SessionID())
		assert.NoError(t, err)
	})
}

func TestReadsSkipExpiredSessions(t *testing.T) {
	backends(t, func(t *testing.T, s sessionRecordStore, clock *testClock) {
		ctx := context.Background()

		created, err := s.Create(ctx, "u1", Turn{Message: "hello", MissingFields: []string{"pnl"}})
		require.NoError(t, err)

		clock.Advance(16 * time.Minute)
		_, err = s.Get(ctx, created.SessionID())
		assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		_, err = s.GetActiveForUser(ctx, "u1")
		assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})
}

func TestRecords(t *testing.T) {
	type token struct {
		AccessToken string    `json:"access_token"`
		Expiry      time.Time `json:"expiry"`
	}

	backends(t, func(t *testing.T, s sessionRecordStore, _ *testClock) {
		ctx := context.Background()
		pk := UserPK("u1")

		var out token
		err := s.GetRecord(ctx, pk, "google", &out)
		assert.ErrorIs(t, err, apperrors.ErrRecordNotFound)

		in := token{AccessToken: "abc", Expiry: time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)}
		require.NoError(t, s.PutRecord(ctx, pk, "google", in))
		require.NoError(t, s.GetRecord(ctx, pk, "google", &out))
		assert.Equal(t, in.AccessToken, out.AccessToken)
		assert.True(t, in.Expiry.Equal(out.Expiry))

		in.AccessToken = "def"
		require.NoError(t, s.PutRecord(ctx, pk, "google", in))
		require.NoError(t, s.GetRecord(ctx, pk, "google", &out))
		assert.Equal(t, "def", out.AccessToken)

		require.NoError(t, s.DeleteRecord(ctx, pk, "google"))
		err = s.GetRecord(ctx, pk, "google", &out)
		assert.ErrorIs(t, err, apperrors.ErrRecordNotFound)
	})
}

func TestUserPK(t *testing.T) {
	assert.Equal(t, "user#u1", UserPK("u1"))
}
