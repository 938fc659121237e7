package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/store"
)

// ClientProvider returns an authorised HTTP client for a user. It returns
// ErrNotConnected when the user has not linked a Google account.
type ClientProvider interface {
	Client(ctx context.Context, userID string) (*http.Client, error)
}

// journalColumns is the column span read back from a journal sheet.
const journalColumns = "A:H"

// DriveUploader stores attachments in the user's Google Drive.
type DriveUploader struct {
	clients  ClientProvider
	folderID string
	opts     []option.ClientOption
}

// NewDriveUploader creates a Drive uploader. Extra options are applied after
// the per-user HTTP client.
func NewDriveUploader(clients ClientProvider, folderID string, opts ...option.ClientOption) *DriveUploader {
	return &DriveUploader{clients: clients, folderID: folderID, opts: opts}
}

// Upload creates the file with a multipart upload.
func (d *DriveUploader) Upload(ctx context.Context, userID string, file File) (*models.UploadedFile, error) {
	httpClient, err := d.clients.Client(ctx, userID)
	if err != nil {
		return nil, err
	}
	srv, err := drive.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(httpClient)}, d.opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	meta := &drive.File{Name: file.Name, MimeType: file.MimeType}
	if d.folderID != "" {
		meta.Parents = []string{d.folderID}
	}
	if len(file.Tags) > 0 {
		meta.Description = "Tags: " + strings.Join(file.Tags, ", ")
		meta.Properties = map[string]string{"tags": strings.Join(file.Tags, ",")}
	}

	created, err := srv.Files.Create(meta).
		Media(bytes.NewReader(file.Data), googleapi.ContentType(file.MimeType)).
		Fields("id", "webViewLink", "mimeType").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("drive upload failed: %w", err)
	}

	link := created.WebViewLink
	if link == "" {
		link = fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id)
	}
	mime := created.MimeType
	if mime == "" {
		mime = file.MimeType
	}
	return &models.UploadedFile{ID: created.Id, Link: link, MimeType: mime}, nil
}

// SheetsJournal keeps the journal in a Google Sheet.
type SheetsJournal struct {
	clients ClientProvider
	opts    []option.ClientOption
}

// NewSheetsJournal creates a Sheets-backed journal.
func NewSheetsJournal(clients ClientProvider, opts ...option.ClientOption) *SheetsJournal {
	return &SheetsJournal{clients: clients, opts: opts}
}

func (s *SheetsJournal) service(ctx context.Context, userID string) (*sheets.Service, error) {
	httpClient, err := s.clients.Client(ctx, userID)
	if err != nil {
		return nil, err
	}
	srv, err := sheets.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(httpClient)}, s.opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return srv, nil
}

// AppendEntry appends one row and returns the updated range as its id.
func (s *SheetsJournal) AppendEntry(ctx context.Context, dest models.Destination, entry models.JournalEntry) (string, error) {
	if strings.TrimSpace(dest.SheetID) == "" {
		return "", apperrors.NewValidationError("sheet_id", dest.SheetID, "is required")
	}
	srv, err := s.service(ctx, entry.UserID)
	if err != nil {
		return "", err
	}

	values := &sheets.ValueRange{Values: [][]interface{}{BuildRow(entry)}}
	resp, err := srv.Spreadsheets.Values.Append(dest.SheetID, dest.RangeOrDefault(), values).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("sheets append failed: %w", err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return resp.TableRange, nil
}

// ListEntries reads the journal sheet and filters rows in memory. Rows that
// do not parse, such as a header, are skipped.
func (s *SheetsJournal) ListEntries(ctx context.Context, filter store.JournalFilter) ([]models.JournalEntry, error) {
	if strings.TrimSpace(filter.SheetID) == "" {
		return nil, apperrors.NewValidationError("sheet_id", filter.SheetID, "is required")
	}
	srv, err := s.service(ctx, filter.UserID)
	if err != nil {
		return nil, err
	}

	sheet := sheetName(filter.Range)
	resp, err := srv.Spreadsheets.Values.Get(filter.SheetID, qualify(sheet, journalColumns)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets read failed: %w", err)
	}

	var entries []models.JournalEntry
	for i, row := range resp.Values {
		entry, err := ParseRow(row)
		if err != nil {
			continue
		}
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		if !filter.StartDate.IsZero() && entry.EntryTimestamp.Before(filter.StartDate) {
			continue
		}
		if !filter.EndDate.IsZero() && entry.EntryTimestamp.After(filter.EndDate) {
			continue
		}
		entry.RowID = qualify(sheet, fmt.Sprintf("A%d", i+1))
		entries = append(entries, entry)
		if filter.Limit > 0 && len(entries) >= filter.Limit {
			break
		}
	}
	return entries, nil
}

// sheetName extracts the tab name from an A1 range such as "Journal!A1".
func sheetName(rng string) string {
	if rng == "" {
		rng = models.DefaultSheetRange
	}
	if i := strings.IndexByte(rng, '!'); i >= 0 {
		return rng[:i]
	}
	return ""
}

func qualify(sheet, cells string) string {
	if sheet == "" {
		return cells
	}
	return sheet + "!" + cells
}
