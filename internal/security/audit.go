package security

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	// Capture events
	AuditTradeCommitted AuditEventType = "TRADE_COMMITTED"
	AuditCommitFailed   AuditEventType = "COMMIT_FAILED"
	AuditSessionCleared AuditEventType = "SESSION_CLEARED"

	// Account events
	AuditOAuthConnected AuditEventType = "OAUTH_CONNECTED"
	AuditOAuthFailed    AuditEventType = "OAUTH_FAILED"
	AuditTokenRefreshed AuditEventType = "TOKEN_REFRESHED"

	// Analysis events
	AuditAnalysisQueued AuditEventType = "ANALYSIS_QUEUED"

	// Security events
	AuditWebhookRejected AuditEventType = "WEBHOOK_REJECTED"
	AuditInputValidation AuditEventType = "INPUT_VALIDATION"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp  time.Time              `json:"timestamp"`
	EventType  AuditEventType         `json:"event_type"`
	UserID     string                 `json:"user_id,omitempty"`
	Ticker     string                 `json:"ticker,omitempty"`
	RowID      string                 `json:"row_id,omitempty"`
	Action     string                 `json:"action,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Success    bool                   `json:"success"`
	ErrorMsg   string                 `json:"error,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	InstanceID string                 `json:"instance_id,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
}

type requestIDKey struct{}

// WithRequestID stores a request id for audit events.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	writer     io.WriteCloser
	mu         sync.Mutex
	instanceID string
	now        func() time.Time
}

// AuditConfig holds audit logger configuration.
type AuditConfig struct {
	Path       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultAuditConfig returns the default audit configuration for path.
func DefaultAuditConfig(path string) AuditConfig {
	return AuditConfig{
		Path:       path,
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365,
		Compress:   true,
	}
}

// NewAuditLogger creates an audit logger backed by a rotating file.
func NewAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	return NewAuditLoggerWithWriter(writer), nil
}

// NewAuditLoggerWithWriter creates an audit logger over any writer.
func NewAuditLoggerWithWriter(w io.WriteCloser) *AuditLogger {
	return &AuditLogger{
		writer:     w,
		instanceID: generateInstanceID(),
		now:        time.Now,
	}
}

// Log logs an audit event.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	event.Timestamp = al.now().UTC()
	event.InstanceID = al.instanceID
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		event.RequestID = reqID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}

	if _, err := al.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}

	return nil
}

// LogTradeCommitted logs a journaled trade.
func (al *AuditLogger) LogTradeCommitted(ctx context.Context, userID, sessionID, ticker, rowID, summary string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditTradeCommitted,
		UserID:    userID,
		SessionID: sessionID,
		Ticker:    ticker,
		RowID:     rowID,
		Success:   true,
		Details:   map[string]interface{}{"summary": summary},
	})
}

// LogCommitFailed logs a failed journal write. The session is kept.
func (al *AuditLogger) LogCommitFailed(ctx context.Context, userID, sessionID string, err error) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditCommitFailed,
		UserID:    userID,
		SessionID: sessionID,
		Success:   false,
		ErrorMsg:  errorString(err),
	})
}

// LogSessionCleared logs a user cancelling their capture session.
func (al *AuditLogger) LogSessionCleared(ctx context.Context, userID string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditSessionCleared,
		UserID:    userID,
		Action:    "cancel",
		Success:   true,
	})
}

// LogOAuthConnected logs the outcome of an OAuth callback.
func (al *AuditLogger) LogOAuthConnected(ctx context.Context, userID string, err error) error {
	event := AuditEvent{
		EventType: AuditOAuthConnected,
		UserID:    userID,
		Action:    "google",
		Success:   err == nil,
	}
	if err != nil {
		event.EventType = AuditOAuthFailed
		event.ErrorMsg = errorString(err)
	}
	return al.Log(ctx, event)
}

// LogTokenRefreshed logs a refreshed access token.
func (al *AuditLogger) LogTokenRefreshed(ctx context.Context, userID string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditTokenRefreshed,
		UserID:    userID,
		Action:    "google",
		Success:   true,
	})
}

// LogAnalysisQueued logs an enqueued analysis job.
func (al *AuditLogger) LogAnalysisQueued(ctx context.Context, userID, jobID string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditAnalysisQueued,
		UserID:    userID,
		Success:   true,
		Details:   map[string]interface{}{"job_id": jobID},
	})
}

// LogWebhookRejected logs a webhook call with a bad secret.
func (al *AuditLogger) LogWebhookRejected(ctx context.Context, source, remoteAddr string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditWebhookRejected,
		Action:    source,
		Success:   false,
		ErrorMsg:  "invalid webhook token",
		Details:   map[string]interface{}{"remote_addr": remoteAddr},
	})
}

// LogInputValidation logs an input validation failure.
func (al *AuditLogger) LogInputValidation(ctx context.Context, field, value, reason string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditInputValidation,
		Success:   false,
		ErrorMsg:  reason,
		Details: map[string]interface{}{
			"field": field,
			"value": MaskSensitive(value),
		},
	})
}

// Close closes the audit logger.
func (al *AuditLogger) Close() error {
	return al.writer.Close()
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return MaskSensitive(err.Error())
}

// generateInstanceID identifies this process in audit lines.
func generateInstanceID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}
