// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

// SessionStore persists capture sessions with TTL-based expiry.
//
// Every read and write first deletes sessions whose updated_at is older than
// the TTL. Absent or expired sessions are reported as ErrSessionNotFound.
// Callers serialise operations per user; the store only guarantees
// single-record atomicity.
type SessionStore interface {
	// Create allocates a new session seeded with the turn.
	Create(ctx context.Context, userID string, turn Turn) (*models.CaptureSession, error)
	// Get fetches a session by id.
	Get(ctx context.Context, sessionID string) (*models.CaptureSession, error)
	// GetActiveForUser returns the most recently updated session for the user
	// only if it still has missing fields.
	GetActiveForUser(ctx context.Context, userID string) (*models.CaptureSession, error)
	// Update applies the turn to an existing session.
	Update(ctx context.Context, sessionID string, turn Turn) (*models.CaptureSession, error)
	// Delete removes a session. Deleting an absent session is not an error.
	Delete(ctx context.Context, sessionID string) error
	// Prune deletes expired sessions and returns how many were removed.
	Prune(ctx context.Context) (int, error)
	// Close releases resources.
	Close() error
}

// RecordStore is a composite-key document store (partition key, sort key).
type RecordStore interface {
	PutRecord(ctx context.Context, pk, sk string, v any) error
	// GetRecord decodes the record into out or returns ErrRecordNotFound.
	GetRecord(ctx context.Context, pk, sk string, out any) error
	DeleteRecord(ctx context.Context, pk, sk string) error
}

// Turn is the data a capture turn writes into a session.
type Turn struct {
	Message       string
	Structured    models.Fields
	MissingFields []string
	Attachments   []models.Attachment
	Trade         *models.TradeDraft
}

// Apply writes the turn through the session setters: the message is
// appended, structured fields merged additively, missing fields replaced,
// attachments appended, and the draft replaced.
func (t Turn) Apply(s *models.CaptureSession) {
	s.AppendMessage(t.Message)
	s.MergeStructured(t.Structured)
	s.SetMissingFields(t.MissingFields)
	s.ExtendAttachments(t.Attachments)
	s.SetTrade(t.Trade)
}

// Options configures a session store.
type Options struct {
	TTL   time.Duration
	Now   func() time.Time
	NewID func() string
}

// DefaultTTL matches the default capture.session_ttl.
const DefaultTTL = 15 * time.Minute

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = newSessionID
	}
	return o
}

// threshold is the oldest updated_at that survives pruning.
func (o Options) threshold() time.Time {
	return o.Now().UTC().Add(-o.TTL)
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// UserPK is the partition key for a user's records.
func UserPK(userID string) string {
	return "user#" + userID
}

func encodeRecord(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}
