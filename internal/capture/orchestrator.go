// Package capture implements the multi-turn trade capture state machine.
//
// A user is either in no-session or awaiting-fields. Each submission is
// merged with the active session, run through extraction, and either
// persisted back with a follow-up question or committed, which deletes the
// session.
package capture

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/extraction"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/logging"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/store"
)

// Extractor produces a structured draft from a submission.
type Extractor interface {
	Extract(ctx context.Context, sub models.Submission) (*extraction.Result, error)
}

// Ingestor commits a complete draft to the journal.
type Ingestor interface {
	IngestTrade(ctx context.Context, draft *models.TradeDraft, dest models.Destination, attachments []models.Attachment) (*models.IngestionResult, error)
}

// AttachmentValidator rejects attachments before anything is persisted.
type AttachmentValidator interface {
	ValidateAttachments(attachments []models.Attachment) error
}

// Auditor records commit outcomes and cancellations.
type Auditor interface {
	LogTradeCommitted(ctx context.Context, userID, sessionID, ticker, rowID, summary string) error
	LogCommitFailed(ctx context.Context, userID, sessionID string, err error) error
	LogSessionCleared(ctx context.Context, userID string) error
}

// Orchestrator runs capture turns.
type Orchestrator struct {
	sessions  store.SessionStore
	extractor Extractor
	ingestor  Ingestor
	validator AttachmentValidator
	auditor   Auditor
	locks     *UserLocks
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithValidator validates new attachments up front.
func WithValidator(v AttachmentValidator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithAuditor records commits in an audit trail.
func WithAuditor(a Auditor) Option {
	return func(o *Orchestrator) { o.auditor = a }
}

// WithClock overrides the clock used for heuristic timestamp resolution.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator wires the state machine to its collaborators.
func NewOrchestrator(sessions store.SessionStore, extractor Extractor, ingestor Ingestor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sessions:  sessions,
		extractor: extractor,
		ingestor:  ingestor,
		locks:     NewUserLocks(),
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With().Str("component", "capture").Logger()
	return o
}

// Process runs one submission through the state machine.
//
// Errors matching ErrModelUnavailable, ErrInvalidAttachment, and
// ErrExtraction leave any session untouched. ErrCommitFailed means the draft
// was complete but the journal write failed; the session is kept so the user
// can retry.
func (o *Orchestrator) Process(ctx context.Context, sub models.Submission, dest models.Destination) (*models.SubmissionResult, error) {
	unlock := o.locks.Lock(sub.UserID)
	defer unlock()

	logger := logging.WithUser(o.logger, sub.UserID)

	if o.validator != nil && len(sub.Attachments) > 0 {
		if err := o.validator.ValidateAttachments(sub.Attachments); err != nil {
			return nil, err
		}
	}

	session, err := o.resolveSession(ctx, sub)
	if err != nil {
		return nil, err
	}

	var (
		inferred models.Fields
		ack      string
	)
	overrides := sub.Overrides
	effective := sub
	if session != nil {
		logger = logging.WithSession(logger, session.SessionID())
		inferred = Infer(session.MissingFields(), sub.Content, o.now())
		overrides = inferred.Overlay(sub.Overrides)
		ack = Acknowledge(inferred)

		effective.SessionID = session.SessionID()
		effective.Content = joinConversation(session.Conversation(), sub.Content)
		effective.Attachments = append(session.Attachments(), sub.Attachments...)
		effective.Overrides = overrides.FallbackTo(session.Structured())
	}

	result, err := o.extractor.Extract(ctx, effective)
	if err != nil {
		return nil, err
	}

	if !result.Complete() {
		return o.suspend(ctx, logger, sub, session, result, inferred, ack)
	}
	return o.commit(ctx, logger, sub, session, effective.Attachments, dest, result, inferred, ack)
}

// resolveSession loads the explicit session when one is named, otherwise the
// user's active session. Nil means no-session.
func (o *Orchestrator) resolveSession(ctx context.Context, sub models.Submission) (*models.CaptureSession, error) {
	var (
		session *models.CaptureSession
		err     error
	)
	if sub.SessionID != "" {
		session, err = o.sessions.Get(ctx, sub.SessionID)
		if err == nil && session.UserID() != sub.UserID {
			return nil, apperrors.Wrap(apperrors.ErrForbidden, "session belongs to another user")
		}
	} else {
		session, err = o.sessions.GetActiveForUser(ctx, sub.UserID)
	}
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load capture session")
	}
	return session, nil
}

func (o *Orchestrator) suspend(ctx context.Context, logger zerolog.Logger, sub models.Submission, session *models.CaptureSession, result *extraction.Result, inferred models.Fields, ack string) (*models.SubmissionResult, error) {
	turn := store.Turn{
		Message:       sub.Content,
		Structured:    result.Structured,
		MissingFields: result.MissingFields,
		Attachments:   sub.Attachments,
		Trade:         result.Trade,
	}

	var err error
	if session == nil {
		session, err = o.sessions.Create(ctx, sub.UserID, turn)
	} else {
		var updated *models.CaptureSession
		updated, err = o.sessions.Update(ctx, session.SessionID(), turn)
		if errors.Is(err, apperrors.ErrSessionNotFound) {
			// Expired between load and write; carry the full context into a
			// fresh session.
			turn.Message = joinConversation(session.Conversation(), sub.Content)
			turn.Structured = session.Structured()
			turn.Structured.MergeFrom(result.Structured)
			turn.Attachments = append(session.Attachments(), sub.Attachments...)
			updated, err = o.sessions.Create(ctx, sub.UserID, turn)
		}
		session = updated
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to persist capture session")
	}

	logging.LogCapture(logger, sub.UserID, session.SessionID(), string(models.StatusNeedsMoreInfo), result.MissingFields)

	return &models.SubmissionResult{
		Status:          models.StatusNeedsMoreInfo,
		SessionID:       session.SessionID(),
		MissingFields:   result.MissingFields,
		Prompt:          FollowUpPrompt(session.Structured(), result.MissingFields),
		PartialTrade:    result.Trade,
		Structured:      session.Structured(),
		Acknowledgement: ack,
		Inferred:        inferred,
	}, nil
}

func (o *Orchestrator) commit(ctx context.Context, logger zerolog.Logger, sub models.Submission, session *models.CaptureSession, attachments []models.Attachment, dest models.Destination, result *extraction.Result, inferred models.Fields, ack string) (*models.SubmissionResult, error) {
	sessionID := ""
	if session != nil {
		sessionID = session.SessionID()
	}

	ingestion, err := o.ingestor.IngestTrade(ctx, result.Trade, dest, attachments)
	if err != nil {
		logger.Error().Err(err).Str("session_id", sessionID).Msg("Trade commit failed")
		if o.auditor != nil {
			if aerr := o.auditor.LogCommitFailed(ctx, sub.UserID, sessionID, err); aerr != nil {
				logger.Warn().Err(aerr).Msg("Failed to write audit event")
			}
		}
		if errors.Is(err, apperrors.ErrInvalidAttachment) || errors.Is(err, apperrors.ErrNotConnected) {
			return nil, err
		}
		return nil, apperrors.NewCommitError(sub.UserID, sessionID, err)
	}

	if session != nil {
		if err := o.sessions.Delete(ctx, sessionID); err != nil {
			logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to delete completed session")
		}
	}

	summary := RenderSummary(result.Trade)
	if o.auditor != nil {
		if err := o.auditor.LogTradeCommitted(ctx, sub.UserID, sessionID, result.Trade.Ticker, ingestion.RowID, summary); err != nil {
			logger.Warn().Err(err).Msg("Failed to write audit event")
		}
	}
	logging.LogCommit(logger, sub.UserID, result.Trade.Ticker, ingestion.RowID)
	logging.LogCapture(logger, sub.UserID, sessionID, string(models.StatusCompleted), nil)

	return &models.SubmissionResult{
		Status:          models.StatusCompleted,
		SessionID:       sessionID,
		Structured:      result.Structured,
		Trade:           result.Trade,
		Ingestion:       ingestion,
		Summary:         summary,
		Acknowledgement: ack,
		Inferred:        inferred,
	}, nil
}

// Cancel discards the user's active session, if any. It reports whether a
// session was discarded.
func (o *Orchestrator) Cancel(ctx context.Context, userID string) (bool, error) {
	unlock := o.locks.Lock(userID)
	defer unlock()

	session, err := o.sessions.GetActiveForUser(ctx, userID)
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := o.sessions.Delete(ctx, session.SessionID()); err != nil {
		return false, err
	}
	logger := logging.WithSession(logging.WithUser(o.logger, userID), session.SessionID())
	if o.auditor != nil {
		if err := o.auditor.LogSessionCleared(ctx, userID); err != nil {
			logger.Warn().Err(err).Msg("Failed to write audit event")
		}
	}
	logger.Info().Msg("Capture session cancelled")
	return true, nil
}

// History returns the transcript of the user's active session.
func (o *Orchestrator) History(ctx context.Context, userID string) []string {
	session, err := o.sessions.GetActiveForUser(ctx, userID)
	if err != nil {
		return nil
	}
	return session.Conversation()
}

func joinConversation(history []string, message string) string {
	parts := make([]string, 0, len(history)+1)
	parts = append(parts, history...)
	if m := strings.TrimSpace(message); m != "" {
		parts = append(parts, m)
	}
	return strings.Join(parts, "\n")
}
