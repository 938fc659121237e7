package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
)

func TestRedisIndexesFollowSessions(t *testing.T) {
	clock := newTestClock()
	s, mr := newRedisForTest(t, clock)
	ctx := context.Background()

	created, err := s.Create(ctx, "u1", Turn{Message: "bought AAPL", MissingFields: []string{"pnl"}})
	require.NoError(t, err)
	id := created.SessionID()

	assert.True(t, mr.Exists("test:session:"+id))
	assert.Equal(t, "u1", mr.HGet("test:sessions:owner", id))
	score, err := mr.ZScore("test:sessions:updated", id)
	require.NoError(t, err)
	assert.Equal(t, float64(clock.Now().UnixMicro()), score)
	userScore, err := mr.ZScore("test:user:u1:sessions", id)
	require.NoError(t, err)
	assert.Equal(t, score, userScore)

	clock.Advance(time.Minute)
	_, err = s.Update(ctx, id, Turn{Message: "made 40", MissingFields: []string{"position_type"}})
	require.NoError(t, err)
	score, err = mr.ZScore("test:sessions:updated", id)
	require.NoError(t, err)
	assert.Equal(t, float64(clock.Now().UnixMicro()), score)

	require.NoError(t, s.Delete(ctx, id))
	assert.False(t, mr.Exists("test:session:"+id))
	assert.Empty(t, mr.HGet("test:sessions:owner", id))
	_, err = mr.ZScore("test:sessions:updated", id)
	assert.Error(t, err)
	_, err = mr.ZScore("test:user:u1:sessions", id)
	assert.Error(t, err)
}

func TestRedisPruneUnindexesExpiredSessions(t *testing.T) {
	clock := newTestClock()
	s, mr := newRedisForTest(t, clock)
	ctx := context.Background()

	stale, err := s.Create(ctx, "u1", Turn{Message: "stale", MissingFields: []string{"pnl"}})
	require.NoError(t, err)

	// Exactly at the TTL boundary a session is still alive.
	clock.Advance(15 * time.Minute)
	edge, err := s.Create(ctx, "u2", Turn{Message: "edge", MissingFields: []string{"pnl"}})
	require.NoError(t, err)
	n, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.Advance(time.Microsecond)
	n, err = s.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.False(t, mr.Exists("test:session:"+stale.SessionID()))
	assert.Empty(t, mr.HGet("test:sessions:owner", stale.SessionID()))
	_, err = mr.ZScore("test:user:u1:sessions", stale.SessionID())
	assert.Error(t, err)

	_, err = s.GetActiveForUser(ctx, "u1")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	active, err := s.GetActiveForUser(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, edge.SessionID(), active.SessionID())
}

func TestRedisRecordsAreNamespaced(t *testing.T) {
	s, mr := newRedisForTest(t, newTestClock())
	ctx := context.Background()

	require.NoError(t, s.PutRecord(ctx, UserPK("u1"), "oauth#google", map[string]string{"access_token": "enc"}))
	assert.True(t, mr.Exists("test:record:user#u1:oauth#google"))

	require.NoError(t, s.DeleteRecord(ctx, UserPK("u1"), "oauth#google"))
	assert.False(t, mr.Exists("test:record:user#u1:oauth#google"))
}
