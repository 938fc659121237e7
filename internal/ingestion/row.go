package ingestion

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

// Column order of a journal row.
const (
	colUserID = iota
	colTicker
	colPositionType
	colPnL
	colEntry
	colExit
	colNotes
	colLinks
	rowWidth
)

// linkSeparator joins attachment links into a single cell.
const linkSeparator = ", "

// EntryFromDraft builds the journal entry for a committed draft.
func EntryFromDraft(draft *models.TradeDraft, links []string, now time.Time) models.JournalEntry {
	return models.JournalEntry{
		UserID:         draft.UserID,
		Ticker:         strings.ToUpper(draft.Ticker),
		PositionType:   draft.PositionType,
		PnL:            draft.PnL,
		EntryTimestamp: draft.EntryTimestamp.UTC(),
		ExitTimestamp:  draft.ExitTimestamp.UTC(),
		Notes:          draft.Notes,
		Links:          links,
		CreatedAt:      now.UTC(),
	}
}

// BuildRow renders an entry as a spreadsheet row.
func BuildRow(entry models.JournalEntry) []interface{} {
	row := make([]interface{}, rowWidth)
	row[colUserID] = entry.UserID
	row[colTicker] = strings.ToUpper(entry.Ticker)
	row[colPositionType] = entry.PositionType
	row[colPnL] = entry.PnL.String()
	row[colEntry] = entry.EntryTimestamp.UTC().Format(time.RFC3339)
	row[colExit] = entry.ExitTimestamp.UTC().Format(time.RFC3339)
	row[colNotes] = entry.Notes
	row[colLinks] = strings.Join(entry.Links, linkSeparator)
	return row
}

// ParseRow reads a spreadsheet row back into an entry. Short rows are
// padded; a header row or malformed numbers yield an error.
func ParseRow(row []interface{}) (models.JournalEntry, error) {
	cells := make([]string, rowWidth)
	for i := 0; i < rowWidth && i < len(row); i++ {
		cells[i] = strings.TrimSpace(fmt.Sprint(row[i]))
	}

	entry := models.JournalEntry{
		UserID:       cells[colUserID],
		Ticker:       strings.ToUpper(cells[colTicker]),
		PositionType: cells[colPositionType],
		Notes:        cells[colNotes],
	}

	pnl, err := decimal.NewFromString(strings.ReplaceAll(cells[colPnL], ",", ""))
	if err != nil {
		return entry, fmt.Errorf("pnl %q: %w", cells[colPnL], err)
	}
	entry.PnL = pnl

	if entry.EntryTimestamp, err = parseCellTime(cells[colEntry]); err != nil {
		return entry, fmt.Errorf("entry timestamp: %w", err)
	}
	if entry.ExitTimestamp, err = parseCellTime(cells[colExit]); err != nil {
		return entry, fmt.Errorf("exit timestamp: %w", err)
	}

	if cells[colLinks] != "" {
		for _, link := range strings.Split(cells[colLinks], ",") {
			if link = strings.TrimSpace(link); link != "" {
				entry.Links = append(entry.Links, link)
			}
		}
	}
	return entry, nil
}

func parseCellTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
