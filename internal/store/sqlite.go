package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

// SQLiteStore implements SessionStore, RecordStore and the local journal on
// a single SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	opts Options
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string, opts Options) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:   db,
		opts: opts.withDefaults(),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Conversational capture sessions
	CREATE TABLE IF NOT EXISTS trade_capture_sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		structured TEXT,
		missing_fields TEXT,
		conversation TEXT,
		attachments TEXT,
		trade TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_capture_user_updated ON trade_capture_sessions(user_id, updated_at);
	CREATE INDEX IF NOT EXISTS idx_capture_updated ON trade_capture_sessions(updated_at);

	-- Composite-key records (oauth tokens, analysis jobs)
	CREATE TABLE IF NOT EXISTS records (
		pk TEXT NOT NULL,
		sk TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (pk, sk)
	);

	-- Local trade journal
	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		sheet_id TEXT,
		sheet_range TEXT,
		user_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		position_type TEXT NOT NULL,
		pnl TEXT NOT NULL,
		entry_timestamp DATETIME NOT NULL,
		exit_timestamp DATETIME NOT NULL,
		notes TEXT,
		links TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_journal_user ON journal_entries(user_id, entry_timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for components sharing the database.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// ============================================================================
// Capture Sessions
// ============================================================================

// Create allocates a new session seeded with the turn.
func (s *SQLiteStore) Create(ctx context.Context, userID string, turn Turn) (*models.CaptureSession, error) {
	if _, err := s.Prune(ctx); err != nil {
		return nil, err
	}
	session := models.NewCaptureSession(s.opts.NewID(), userID, s.opts.Now)
	turn.Apply(session)
	if err := s.saveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Get fetches a session by id.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*models.CaptureSession, error) {
	if _, err := s.Prune(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, structured, missing_fields, conversation, attachments, trade, created_at, updated_at
		FROM trade_capture_sessions WHERE session_id = ?
	`, sessionID)
	return s.scanSession(row)
}

// GetActiveForUser returns the user's most recent session if it still awaits
// fields.
func (s *SQLiteStore) GetActiveForUser(ctx context.Context, userID string) (*models.CaptureSession, error) {
	if _, err := s.Prune(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, structured, missing_fields, conversation, attachments, trade, created_at, updated_at
		FROM trade_capture_sessions WHERE user_id = ?
		ORDER BY updated_at DESC, rowid DESC LIMIT 1
	`, userID)
	session, err := s.scanSession(row)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, apperrors.ErrSessionNotFound
	}
	return session, nil
}

// Update applies the turn to an existing session.
func (s *SQLiteStore) Update(ctx context.Context, sessionID string, turn Turn) (*models.CaptureSession, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	turn.Apply(session)
	if err := s.saveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Delete removes a session.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM trade_capture_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Prune deletes sessions idle for longer than the TTL.
func (s *SQLiteStore) Prune(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM trade_capture_sessions WHERE updated_at < ?`,
		s.opts.threshold().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListSessions returns all live sessions for a user, most recent first.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]*models.CaptureSession, error) {
	if _, err := s.Prune(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, user_id, structured, missing_fields, conversation, attachments, trade, created_at, updated_at
		FROM trade_capture_sessions WHERE user_id = ?
		ORDER BY updated_at DESC, rowid DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.CaptureSession
	for rows.Next() {
		session, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func (s *SQLiteStore) saveSession(ctx context.Context, session *models.CaptureSession) error {
	snap := session.Snapshot()

	structured, err := json.Marshal(snap.Structured)
	if err != nil {
		return fmt.Errorf("failed to encode structured fields: %w", err)
	}
	missing, _ := json.Marshal(snap.MissingFields)
	conversation, _ := json.Marshal(snap.Conversation)
	attachments, err := json.Marshal(snap.Attachments)
	if err != nil {
		return fmt.Errorf("failed to encode attachments: %w", err)
	}
	var trade sql.NullString
	if snap.Trade != nil {
		b, err := json.Marshal(snap.Trade)
		if err != nil {
			return fmt.Errorf("failed to encode trade: %w", err)
		}
		trade = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trade_capture_sessions (session_id, user_id, structured, missing_fields, conversation, attachments, trade, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			structured = excluded.structured,
			missing_fields = excluded.missing_fields,
			conversation = excluded.conversation,
			attachments = excluded.attachments,
			trade = excluded.trade,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, snap.SessionID, snap.UserID, string(structured), string(missing), string(conversation),
		string(attachments), trade, snap.CreatedAt.UnixNano(), snap.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLiteStore) scanSession(row rowScanner) (*models.CaptureSession, error) {
	var snap models.SessionSnapshot
	var structured, missing, conversation, attachments, trade sql.NullString
	var createdAt, updatedAt int64
	err := row.Scan(&snap.SessionID, &snap.UserID, &structured, &missing, &conversation,
		&attachments, &trade, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if err := decodeColumn(structured, &snap.Structured); err != nil {
		return nil, fmt.Errorf("failed to decode structured fields: %w", err)
	}
	if err := decodeColumn(missing, &snap.MissingFields); err != nil {
		return nil, fmt.Errorf("failed to decode missing fields: %w", err)
	}
	if err := decodeColumn(conversation, &snap.Conversation); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	if err := decodeColumn(attachments, &snap.Attachments); err != nil {
		return nil, fmt.Errorf("failed to decode attachments: %w", err)
	}
	if trade.Valid && trade.String != "" {
		snap.Trade = &models.TradeDraft{}
		if err := json.Unmarshal([]byte(trade.String), snap.Trade); err != nil {
			return nil, fmt.Errorf("failed to decode trade: %w", err)
		}
	}
	snap.CreatedAt = time.Unix(0, createdAt).UTC()
	snap.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return models.RestoreCaptureSession(snap, s.opts.Now), nil
}

func decodeColumn(col sql.NullString, out interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), out)
}

// ============================================================================
// Records
// ============================================================================

// PutRecord upserts a JSON document under (pk, sk).
func (s *SQLiteStore) PutRecord(ctx context.Context, pk, sk string, v any) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (pk, sk, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(pk, sk) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, pk, sk, string(data), s.opts.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

// GetRecord decodes the record under (pk, sk) into out.
func (s *SQLiteStore) GetRecord(ctx context.Context, pk, sk string, out any) error {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM records WHERE pk = ? AND sk = ?`, pk, sk).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get record: %w", err)
	}
	return decodeRecord([]byte(data), out)
}

// DeleteRecord removes the record under (pk, sk).
func (s *SQLiteStore) DeleteRecord(ctx context.Context, pk, sk string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE pk = ? AND sk = ?`, pk, sk)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// ============================================================================
// Journal
// ============================================================================

// AppendEntry writes a committed trade to the local journal and returns its
// row id.
func (s *SQLiteStore) AppendEntry(ctx context.Context, dest models.Destination, entry models.JournalEntry) (string, error) {
	id := entry.RowID
	if id == "" {
		id = uuid.New().String()
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = s.opts.Now().UTC()
	}
	links, _ := json.Marshal(entry.Links)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_entries (id, sheet_id, sheet_range, user_id, ticker, position_type, pnl, entry_timestamp, exit_timestamp, notes, links, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, dest.SheetID, dest.RangeOrDefault(), entry.UserID, entry.Ticker, entry.PositionType,
		entry.PnL.String(), entry.EntryTimestamp.UTC(), entry.ExitTimestamp.UTC(), entry.Notes,
		string(links), created)
	if err != nil {
		return "", fmt.Errorf("failed to append journal entry: %w", err)
	}
	return id, nil
}

// JournalFilter narrows journal queries.
type JournalFilter struct {
	UserID    string
	SheetID   string
	Range     string // sheet range, ignored by the local journal
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// ListEntries returns journal entries matching the filter, oldest first.
func (s *SQLiteStore) ListEntries(ctx context.Context, filter JournalFilter) ([]models.JournalEntry, error) {
	query := "SELECT id, user_id, ticker, position_type, pnl, entry_timestamp, exit_timestamp, notes, links, created_at FROM journal_entries WHERE 1=1"
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.SheetID != "" {
		query += " AND sheet_id = ?"
		args = append(args, filter.SheetID)
	}
	if !filter.StartDate.IsZero() {
		query += " AND entry_timestamp >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND entry_timestamp <= ?"
		args = append(args, filter.EndDate.UTC())
	}

	query += " ORDER BY entry_timestamp ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		var pnl string
		var notes, linksJSON sql.NullString
		if err := rows.Scan(&e.RowID, &e.UserID, &e.Ticker, &e.PositionType, &pnl,
			&e.EntryTimestamp, &e.ExitTimestamp, &notes, &linksJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.PnL, _ = decimal.NewFromString(pnl)
		e.Notes = notes.String
		if linksJSON.Valid && strings.TrimSpace(linksJSON.String) != "" {
			_ = json.Unmarshal([]byte(linksJSON.String), &e.Links)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal: %w", err)
	}

	return entries, nil
}
