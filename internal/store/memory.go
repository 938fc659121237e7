package store

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

// MemoryStore keeps sessions and records in process memory. Entries are
// snapshots so callers never alias stored state.
type MemoryStore struct {
	sessions *cache.Cache
	records  *cache.Cache
	opts     Options

	// mu orders read-modify-write sequences across the two caches.
	mu  sync.Mutex
	seq uint64
}

// memoryEntry orders writes that share an updated_at.
type memoryEntry struct {
	snap models.SessionSnapshot
	seq  uint64
}

func (m *MemoryStore) put(session *models.CaptureSession) {
	m.seq++
	m.sessions.Set(session.SessionID(), memoryEntry{snap: session.Snapshot(), seq: m.seq}, cache.NoExpiration)
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(opts Options) *MemoryStore {
	opts = opts.withDefaults()
	return &MemoryStore{
		// Expiry is enforced against updated_at in Prune; the cache janitor
		// only reclaims memory.
		sessions: cache.New(cache.NoExpiration, 10*time.Minute),
		records:  cache.New(cache.NoExpiration, 0),
		opts:     opts,
	}
}

// Create allocates a new session seeded with the turn.
func (m *MemoryStore) Create(_ context.Context, userID string, turn Turn) (*models.CaptureSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prune()
	session := models.NewCaptureSession(m.opts.NewID(), userID, m.opts.Now)
	turn.Apply(session)
	m.put(session)
	return session, nil
}

// Get fetches a session by id.
func (m *MemoryStore) Get(_ context.Context, sessionID string) (*models.CaptureSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prune()
	return m.get(sessionID)
}

func (m *MemoryStore) get(sessionID string) (*models.CaptureSession, error) {
	x, found := m.sessions.Get(sessionID)
	if !found {
		return nil, apperrors.ErrSessionNotFound
	}
	return models.RestoreCaptureSession(x.(memoryEntry).snap, m.opts.Now), nil
}

// GetActiveForUser returns the user's most recent session if it still awaits
// fields.
func (m *MemoryStore) GetActiveForUser(_ context.Context, userID string) (*models.CaptureSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prune()
	var latest *memoryEntry
	for _, item := range m.sessions.Items() {
		entry := item.Object.(memoryEntry)
		if entry.snap.UserID != userID {
			continue
		}
		if latest == nil || newer(entry, *latest) {
			e := entry
			latest = &e
		}
	}
	if latest == nil || len(latest.snap.MissingFields) == 0 {
		return nil, apperrors.ErrSessionNotFound
	}
	return models.RestoreCaptureSession(latest.snap, m.opts.Now), nil
}

func newer(a, b memoryEntry) bool {
	if a.snap.UpdatedAt.Equal(b.snap.UpdatedAt) {
		return a.seq > b.seq
	}
	return a.snap.UpdatedAt.After(b.snap.UpdatedAt)
}

// Update applies the turn to an existing session.
func (m *MemoryStore) Update(_ context.Context, sessionID string, turn Turn) (*models.CaptureSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prune()
	session, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	turn.Apply(session)
	m.put(session)
	return session, nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.sessions.Delete(sessionID)
	return nil
}

// Prune deletes sessions idle for longer than the TTL.
func (m *MemoryStore) Prune(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prune(), nil
}

func (m *MemoryStore) prune() int {
	threshold := m.opts.threshold()
	removed := 0
	for id, item := range m.sessions.Items() {
		entry := item.Object.(memoryEntry)
		if entry.snap.UpdatedAt.Before(threshold) {
			m.sessions.Delete(id)
			removed++
		}
	}
	return removed
}

// Close drops all entries.
func (m *MemoryStore) Close() error {
	m.sessions.Flush()
	m.records.Flush()
	return nil
}

func recordKey(pk, sk string) string {
	return pk + "\x00" + sk
}

// PutRecord stores v under (pk, sk).
func (m *MemoryStore) PutRecord(_ context.Context, pk, sk string, v any) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}
	m.records.Set(recordKey(pk, sk), data, cache.NoExpiration)
	return nil
}

// GetRecord decodes the record under (pk, sk) into out.
func (m *MemoryStore) GetRecord(_ context.Context, pk, sk string, out any) error {
	x, found := m.records.Get(recordKey(pk, sk))
	if !found {
		return apperrors.ErrRecordNotFound
	}
	return decodeRecord(x.([]byte), out)
}

// DeleteRecord removes the record under (pk, sk).
func (m *MemoryStore) DeleteRecord(_ context.Context, pk, sk string) error {
	m.records.Delete(recordKey(pk, sk))
	return nil
}
