package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

// RedisStore keeps sessions and records in Redis.
//
// Layout under the configured prefix:
//
//	<p>:session:<id>        session snapshot JSON
//	<p>:sessions:updated    ZSET of session ids scored by updated_at (unix µs)
//	<p>:sessions:owner      HASH session id -> user id
//	<p>:user:<uid>:sessions ZSET of the user's session ids scored by updated_at
//	<p>:record:<pk>:<sk>    record JSON
type RedisStore struct {
	client *redis.Client
	prefix string
	opts   Options
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string, opts Options) *RedisStore {
	if prefix == "" {
		prefix = "journalbot"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		opts:   opts.withDefaults(),
	}
}

// DialRedis opens a client and checks connectivity.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	opt, err := redis.ParseURL(addr)
	if err != nil {
		opt = &redis.Options{Addr: addr}
	}
	if password != "" {
		opt.Password = password
	}
	if db != 0 {
		opt.DB = db
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (r *RedisStore) sessionKey(id string) string { return r.prefix + ":session:" + id }
func (r *RedisStore) updatedKey() string          { return r.prefix + ":sessions:updated" }
func (r *RedisStore) ownerKey() string            { return r.prefix + ":sessions:owner" }
func (r *RedisStore) userKey(uid string) string   { return r.prefix + ":user:" + uid + ":sessions" }
func (r *RedisStore) recordKey(pk, sk string) string {
	return r.prefix + ":record:" + pk + ":" + sk
}

// Create allocates a new session seeded with the turn.
func (r *RedisStore) Create(ctx context.Context, userID string, turn Turn) (*models.CaptureSession, error) {
	if _, err := r.Prune(ctx); err != nil {
		return nil, err
	}
	session := models.NewCaptureSession(r.opts.NewID(), userID, r.opts.Now)
	turn.Apply(session)
	if err := r.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Get fetches a session by id.
func (r *RedisStore) Get(ctx context.Context, sessionID string) (*models.CaptureSession, error) {
	if _, err := r.Prune(ctx); err != nil {
		return nil, err
	}
	return r.load(ctx, sessionID)
}

// GetActiveForUser returns the user's most recent session if it still awaits
// fields.
func (r *RedisStore) GetActiveForUser(ctx context.Context, userID string) (*models.CaptureSession, error) {
	if _, err := r.Prune(ctx); err != nil {
		return nil, err
	}
	ids, err := r.client.ZRevRange(ctx, r.userKey(userID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read user index: %w", err)
	}
	if len(ids) == 0 {
		return nil, apperrors.ErrSessionNotFound
	}
	session, err := r.load(ctx, ids[0])
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, apperrors.ErrSessionNotFound
	}
	return session, nil
}

// Update applies the turn to an existing session.
func (r *RedisStore) Update(ctx context.Context, sessionID string, turn Turn) (*models.CaptureSession, error) {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	turn.Apply(session)
	if err := r.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Delete removes a session and its index entries.
func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	owner, err := r.client.HGet(ctx, r.ownerKey(), sessionID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read session owner: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		r.unindex(ctx, pipe, sessionID, owner)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Prune deletes sessions idle for longer than the TTL.
func (r *RedisStore) Prune(ctx context.Context) (int, error) {
	cutoff := strconv.FormatInt(r.opts.threshold().UnixMicro()-1, 10)
	ids, err := r.client.ZRangeByScore(ctx, r.updatedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read expiry index: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	owners, err := r.client.HMGet(ctx, r.ownerKey(), ids...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read session owners: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			owner, _ := owners[i].(string)
			r.unindex(ctx, pipe, id, owner)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return len(ids), nil
}

func (r *RedisStore) unindex(ctx context.Context, pipe redis.Pipeliner, sessionID, owner string) {
	pipe.Del(ctx, r.sessionKey(sessionID))
	pipe.ZRem(ctx, r.updatedKey(), sessionID)
	pipe.HDel(ctx, r.ownerKey(), sessionID)
	if owner != "" {
		pipe.ZRem(ctx, r.userKey(owner), sessionID)
	}
}

func (r *RedisStore) save(ctx context.Context, session *models.CaptureSession) error {
	data, err := json.Marshal(session.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	score := float64(session.UpdatedAt().UnixMicro())

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// Key expiry backs up Prune if the index is ever lost.
		pipe.Set(ctx, r.sessionKey(session.SessionID()), data, 2*r.opts.TTL)
		pipe.ZAdd(ctx, r.updatedKey(), redis.Z{Score: score, Member: session.SessionID()})
		pipe.ZAdd(ctx, r.userKey(session.UserID()), redis.Z{Score: score, Member: session.SessionID()})
		pipe.HSet(ctx, r.ownerKey(), session.SessionID(), session.UserID())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStore) load(ctx context.Context, sessionID string) (*models.CaptureSession, error) {
	data, err := r.client.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var snap models.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return models.RestoreCaptureSession(snap, r.opts.Now), nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// PutRecord stores v under (pk, sk).
func (r *RedisStore) PutRecord(ctx context.Context, pk, sk string, v any) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.recordKey(pk, sk), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

// GetRecord decodes the record under (pk, sk) into out.
func (r *RedisStore) GetRecord(ctx context.Context, pk, sk string, out any) error {
	data, err := r.client.Get(ctx, r.recordKey(pk, sk)).Bytes()
	if errors.Is(err, redis.Nil) {
		return apperrors.ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get record: %w", err)
	}
	return decodeRecord(data, out)
}

// DeleteRecord removes the record under (pk, sk).
func (r *RedisStore) DeleteRecord(ctx context.Context, pk, sk string) error {
	if err := r.client.Del(ctx, r.recordKey(pk, sk)).Err(); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}
