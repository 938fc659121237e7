// Package ingestion persists committed trades: attachments are uploaded and
// a row is appended to the user's journal.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/store"
)

// File is a decoded attachment ready for upload.
type File struct {
	Name     string
	MimeType string
	Data     []byte
	Tags     []string
}

// FileUploader stores attachment bytes and returns a shareable link.
type FileUploader interface {
	Upload(ctx context.Context, userID string, file File) (*models.UploadedFile, error)
}

// JournalWriter appends a trade row to a journal.
type JournalWriter interface {
	AppendEntry(ctx context.Context, dest models.Destination, entry models.JournalEntry) (string, error)
}

// JournalReader lists trade rows from a journal.
type JournalReader interface {
	ListEntries(ctx context.Context, filter store.JournalFilter) ([]models.JournalEntry, error)
}

// Journal reads and writes trade rows.
type Journal interface {
	JournalWriter
	JournalReader
}

// Service commits trades to storage.
type Service struct {
	validator *Validator
	uploader  FileUploader
	journal   JournalWriter
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService creates an ingestion service.
func NewService(validator *Validator, uploader FileUploader, journal JournalWriter, logger zerolog.Logger) *Service {
	if validator == nil {
		validator = NewValidator(DefaultMaxBytes, nil)
	}
	return &Service{
		validator: validator,
		uploader:  uploader,
		journal:   journal,
		now:       time.Now,
		logger:    logger.With().Str("component", "ingestion").Logger(),
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ValidateAttachments checks a batch without uploading it.
func (s *Service) ValidateAttachments(attachments []models.Attachment) error {
	return s.validator.ValidateAttachments(attachments)
}

// IngestTrade uploads attachments and appends the trade row. Every attachment
// is validated before the first upload so a bad file leaves nothing behind.
func (s *Service) IngestTrade(ctx context.Context, draft *models.TradeDraft, dest models.Destination, attachments []models.Attachment) (*models.IngestionResult, error) {
	if draft == nil {
		return nil, apperrors.NewValidationError("trade", nil, "draft is required")
	}

	files := make([]File, 0, len(attachments))
	for _, a := range attachments {
		data, err := s.validator.Decode(a)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: a.Filename, MimeType: normalizeMime(a.MimeType), Data: data, Tags: a.Tags})
	}

	result := &models.IngestionResult{}
	if len(files) > 0 {
		if s.uploader == nil {
			return nil, fmt.Errorf("no file uploader configured for %d attachment(s)", len(files))
		}
		for _, f := range files {
			uploaded, err := s.uploader.Upload(ctx, draft.UserID, f)
			if err != nil {
				return nil, fmt.Errorf("upload %s: %w", f.Name, err)
			}
			result.UploadedFiles = append(result.UploadedFiles, *uploaded)
		}
	}

	entry := EntryFromDraft(draft, result.Links(), s.now())
	rowID, err := s.journal.AppendEntry(ctx, dest, entry)
	if err != nil {
		return nil, fmt.Errorf("append journal row: %w", err)
	}
	result.RowID = rowID

	s.logger.Info().
		Str("user_id", draft.UserID).
		Str("ticker", entry.Ticker).
		Str("row_id", rowID).
		Int("attachments", len(result.UploadedFiles)).
		Msg("Trade journaled")

	return result, nil
}
