package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

var fieldQuestions = map[string]string{
	string(models.FieldTicker):         "Which ticker or symbol did you trade?",
	string(models.FieldPnL):            "What was the profit or loss on this trade?",
	string(models.FieldPositionType):   "Was this a long, short, call, or put position?",
	string(models.FieldEntryTimestamp): "When did you enter the trade?",
	string(models.FieldExitTimestamp):  "When did you exit the trade?",
}

// summaryTimeLayout renders trade times in summaries.
const summaryTimeLayout = "2006-01-02 15:04 UTC"

// HumanizeField turns a field name into words.
func HumanizeField(name string) string {
	switch models.FieldName(name) {
	case models.FieldPnL:
		return "PnL"
	case models.FieldEntryTimestamp:
		return "entry time"
	case models.FieldExitTimestamp:
		return "exit time"
	}
	return strings.ReplaceAll(name, "_", " ")
}

// FollowUpPrompt builds the question for the first missing field, prefixed by
// what is already known and followed by a light reminder of the rest.
func FollowUpPrompt(known models.Fields, missing []string) string {
	if len(missing) == 0 {
		return ""
	}

	var parts []string
	if clause := knownClause(known); clause != "" {
		parts = append(parts, clause)
	}

	first := missing[0]
	question, ok := fieldQuestions[first]
	if !ok {
		question = fmt.Sprintf("Please share the %s.", HumanizeField(first))
	}
	parts = append(parts, question)

	if rest := missing[1:]; len(rest) > 0 {
		names := make([]string, 0, len(rest))
		for _, name := range rest {
			names = append(names, HumanizeField(name))
		}
		parts = append(parts, fmt.Sprintf("After that I'll still need: %s.", strings.Join(names, ", ")))
	}
	return strings.Join(parts, " ")
}

func knownClause(known models.Fields) string {
	var bits []string
	if ticker, ok := known.Ticker.Get(); ok && ticker != "" {
		bits = append(bits, "ticker "+ticker)
	}
	if position, ok := known.PositionType.Get(); ok && position != "" {
		bits = append(bits, position)
	}
	if known.Has(models.FieldPnL) {
		bits = append(bits, "PnL "+known.PnL.OrZero().String())
	}
	if len(bits) == 0 {
		return ""
	}
	return "I have this so far: " + strings.Join(bits, ", ") + "."
}

// RenderSummary is the one-sentence description of a committed trade.
func RenderSummary(d *models.TradeDraft) string {
	if d == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Logged a %s trade on %s from %s to %s with PnL %s.",
		d.PositionType,
		d.Ticker,
		formatSummaryTime(d.EntryTimestamp),
		formatSummaryTime(d.ExitTimestamp),
		d.PnL.String(),
	)
	if notes := strings.TrimSpace(d.Notes); notes != "" {
		sb.WriteString(" Notes: ")
		sb.WriteString(notes)
	} else {
		sb.WriteString(" No additional notes.")
	}
	return sb.String()
}

func formatSummaryTime(t time.Time) string {
	return t.UTC().Format(summaryTimeLayout)
}

// Acknowledge describes what was understood from the latest message, or ""
// when nothing was inferred.
func Acknowledge(inferred models.Fields) string {
	var understood, declined []string
	for _, name := range models.KnownFields {
		if inferred.IsDeclined(name) {
			declined = append(declined, HumanizeField(string(name)))
			continue
		}
		if name == models.FieldNotes || !inferred.Has(name) {
			continue
		}
		v, _ := inferred.Get(name)
		understood = append(understood, fmt.Sprintf("%s %s", HumanizeField(string(name)), ackValue(v)))
	}

	var parts []string
	if len(understood) > 0 {
		parts = append(parts, "Got it: "+strings.Join(understood, ", ")+".")
	}
	if len(declined) > 0 {
		parts = append(parts, fmt.Sprintf("Noted, you'd rather not share the %s.", strings.Join(declined, " or ")))
	}
	return strings.Join(parts, " ")
}

func ackValue(v any) string {
	if t, ok := v.(time.Time); ok {
		return formatSummaryTime(t)
	}
	return fmt.Sprint(v)
}
