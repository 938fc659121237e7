package models

import (
	"strings"
	"time"
)

// CaptureSession is the per-user state of a trade still being captured.
// Fields are unexported; mutation goes through the setters so the
// additive-merge rule cannot be bypassed.
type CaptureSession struct {
	sessionID     string
	userID        string
	structured    Fields
	missingFields []string
	conversation  []string
	attachments   []Attachment
	trade         *TradeDraft
	createdAt     time.Time
	updatedAt     time.Time

	now func() time.Time
}

// NewCaptureSession returns an empty session stamped with now.
func NewCaptureSession(sessionID, userID string, now func() time.Time) *CaptureSession {
	if now == nil {
		now = time.Now
	}
	ts := now().UTC()
	return &CaptureSession{
		sessionID: sessionID,
		userID:    userID,
		createdAt: ts,
		updatedAt: ts,
		now:       now,
	}
}

// SessionSnapshot is the serialisable form of a CaptureSession.
type SessionSnapshot struct {
	SessionID     string       `json:"session_id"`
	UserID        string       `json:"user_id"`
	Structured    Fields       `json:"structured"`
	MissingFields []string     `json:"missing_fields"`
	Conversation  []string     `json:"conversation"`
	Attachments   []Attachment `json:"attachments"`
	Trade         *TradeDraft  `json:"trade,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// RestoreCaptureSession rebuilds a session from persisted state without
// touching its timestamps.
func RestoreCaptureSession(s SessionSnapshot, now func() time.Time) *CaptureSession {
	if now == nil {
		now = time.Now
	}
	return &CaptureSession{
		sessionID:     s.SessionID,
		userID:        s.UserID,
		structured:    s.Structured,
		missingFields: append([]string(nil), s.MissingFields...),
		conversation:  append([]string(nil), s.Conversation...),
		attachments:   append([]Attachment(nil), s.Attachments...),
		trade:         s.Trade,
		createdAt:     s.CreatedAt.UTC(),
		updatedAt:     s.UpdatedAt.UTC(),
		now:           now,
	}
}

// Snapshot returns a copy of the session state.
func (s *CaptureSession) Snapshot() SessionSnapshot {
	return SessionSnapshot{
		SessionID:     s.sessionID,
		UserID:        s.userID,
		Structured:    s.structured.clone(),
		MissingFields: s.MissingFields(),
		Conversation:  s.Conversation(),
		Attachments:   s.Attachments(),
		Trade:         s.trade,
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
	}
}

func (s *CaptureSession) SessionID() string { return s.sessionID }
func (s *CaptureSession) UserID() string    { return s.userID }
func (s *CaptureSession) Structured() Fields {
	return s.structured.clone()
}
func (s *CaptureSession) Trade() *TradeDraft   { return s.trade }
func (s *CaptureSession) CreatedAt() time.Time { return s.createdAt }
func (s *CaptureSession) UpdatedAt() time.Time { return s.updatedAt }

// MissingFields returns a copy of the outstanding required fields.
func (s *CaptureSession) MissingFields() []string {
	return append([]string{}, s.missingFields...)
}

// Conversation returns a copy of the transcript.
func (s *CaptureSession) Conversation() []string {
	return append([]string{}, s.conversation...)
}

// Attachments returns a copy of the accumulated attachments.
func (s *CaptureSession) Attachments() []Attachment {
	return append([]Attachment{}, s.attachments...)
}

// IsActive reports whether the session still awaits fields.
func (s *CaptureSession) IsActive() bool {
	return len(s.missingFields) > 0
}

// MergeStructured applies incoming non-blank values. A blank, declined, or
// unset slot never erases a prior value.
func (s *CaptureSession) MergeStructured(incoming Fields) {
	s.structured.MergeFrom(incoming)
	s.Touch()
}

// SetMissingFields replaces the outstanding fields wholesale.
func (s *CaptureSession) SetMissingFields(fields []string) {
	s.missingFields = append([]string{}, fields...)
	s.Touch()
}

// AppendMessage adds a trimmed message to the transcript. Empty messages only
// refresh the timestamp.
func (s *CaptureSession) AppendMessage(message string) {
	if m := strings.TrimSpace(message); m != "" {
		s.conversation = append(s.conversation, m)
	}
	s.Touch()
}

// ExtendAttachments appends new attachments.
func (s *CaptureSession) ExtendAttachments(attachments []Attachment) {
	if len(attachments) > 0 {
		s.attachments = append(s.attachments, attachments...)
	}
	s.Touch()
}

// SetTrade replaces the draft.
func (s *CaptureSession) SetTrade(trade *TradeDraft) {
	s.trade = trade
	s.Touch()
}

// Touch refreshes updated_at.
func (s *CaptureSession) Touch() {
	s.updatedAt = s.now().UTC()
}
