package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
)

const (
	// MaxTickerLength bounds the ticker symbol.
	MaxTickerLength = 12
	// MaxPositionTypeLength bounds the free-form position type.
	MaxPositionTypeLength = 32
)

// TradeDraft is a fully structured trade ready to be journaled.
type TradeDraft struct {
	UserID         string          `json:"user_id"`
	Ticker         string          `json:"ticker"`
	PnL            decimal.Decimal `json:"pnl"`
	PositionType   string          `json:"position_type"`
	EntryTimestamp time.Time       `json:"entry_timestamp"`
	ExitTimestamp  time.Time       `json:"exit_timestamp"`
	Notes          string          `json:"notes"`
}

// Validate checks the draft against its schema bounds.
func (d *TradeDraft) Validate() error {
	if strings.TrimSpace(d.UserID) == "" {
		return apperrors.NewExtractionError(string(FieldUserID), d.UserID, "must not be empty")
	}
	if strings.TrimSpace(d.Ticker) == "" {
		return apperrors.NewExtractionError(string(FieldTicker), d.Ticker, "must not be empty")
	}
	if len(d.Ticker) > MaxTickerLength {
		return apperrors.NewExtractionError(string(FieldTicker), d.Ticker,
			fmt.Sprintf("must be at most %d characters", MaxTickerLength))
	}
	if strings.TrimSpace(d.PositionType) == "" {
		return apperrors.NewExtractionError(string(FieldPositionType), d.PositionType, "must not be empty")
	}
	if len(d.PositionType) > MaxPositionTypeLength {
		return apperrors.NewExtractionError(string(FieldPositionType), d.PositionType,
			fmt.Sprintf("must be at most %d characters", MaxPositionTypeLength))
	}
	if d.EntryTimestamp.IsZero() {
		return apperrors.NewExtractionError(string(FieldEntryTimestamp), d.EntryTimestamp, "must be set")
	}
	if d.ExitTimestamp.IsZero() {
		return apperrors.NewExtractionError(string(FieldExitTimestamp), d.ExitTimestamp, "must be set")
	}
	return nil
}

// Fields returns the draft as a set of present slots.
func (d *TradeDraft) Fields() Fields {
	return Fields{
		Ticker:         Some(d.Ticker),
		PnL:            Some(d.PnL),
		PositionType:   Some(d.PositionType),
		EntryTimestamp: Some(d.EntryTimestamp),
		ExitTimestamp:  Some(d.ExitTimestamp),
		Notes:          Some(d.Notes),
	}
}

// DraftFromRaw strictly decodes a merged field map into a draft. Every
// required field must be present and well-formed; a malformed value yields an
// ExtractionError.
func DraftFromRaw(raw map[string]any) (*TradeDraft, error) {
	d := &TradeDraft{}

	userID, err := coerceString(raw[string(FieldUserID)])
	if err != nil {
		return nil, apperrors.NewExtractionError(string(FieldUserID), raw[string(FieldUserID)], err.Error())
	}
	d.UserID = userID

	ticker, err := coerceString(raw[string(FieldTicker)])
	if err != nil {
		return nil, apperrors.NewExtractionError(string(FieldTicker), raw[string(FieldTicker)], err.Error())
	}
	d.Ticker = strings.ToUpper(strings.TrimSpace(ticker))

	pnl, err := coercePnL(raw[string(FieldPnL)])
	if err != nil {
		return nil, apperrors.NewExtractionError(string(FieldPnL), raw[string(FieldPnL)], err.Error())
	}
	d.PnL = pnl

	position, err := coerceString(raw[string(FieldPositionType)])
	if err != nil {
		return nil, apperrors.NewExtractionError(string(FieldPositionType), raw[string(FieldPositionType)], err.Error())
	}
	d.PositionType = strings.TrimSpace(position)

	entry, err := coerceTime(raw[string(FieldEntryTimestamp)])
	if err != nil {
		return nil, apperrors.NewExtractionError(string(FieldEntryTimestamp), raw[string(FieldEntryTimestamp)], err.Error())
	}
	d.EntryTimestamp = entry

	exit, err := coerceTime(raw[string(FieldExitTimestamp)])
	if err != nil {
		return nil, apperrors.NewExtractionError(string(FieldExitTimestamp), raw[string(FieldExitTimestamp)], err.Error())
	}
	d.ExitTimestamp = exit

	if notes, ok := raw[string(FieldNotes)]; ok && notes != nil {
		s, err := coerceString(notes)
		if err != nil {
			return nil, apperrors.NewExtractionError(string(FieldNotes), notes, err.Error())
		}
		d.Notes = s
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// JournalEntry is a committed trade row as read back from a journal.
type JournalEntry struct {
	RowID          string          `json:"row_id"`
	UserID         string          `json:"user_id"`
	Ticker         string          `json:"ticker"`
	PositionType   string          `json:"position_type"`
	PnL            decimal.Decimal `json:"pnl"`
	EntryTimestamp time.Time       `json:"entry_timestamp"`
	ExitTimestamp  time.Time       `json:"exit_timestamp"`
	Notes          string          `json:"notes"`
	Links          []string        `json:"links,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
