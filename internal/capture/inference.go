package capture

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

// CommandPrefix marks chat commands, which are never mined for fields.
const CommandPrefix = "/"

var (
	positionRe  = regexp.MustCompile(`(?i)\b(long|short|call|put)\b`)
	numberRe    = regexp.MustCompile(`[-+]?\$?\d+(?:,\d{3})*(?:\.\d+)?`)
	isoRe       = regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}:\d{2})?)?`)
	clock12Re   = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	clock24Re   = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)
	wordRe      = regexp.MustCompile(`[A-Za-z]+`)
	negationRe  = regexp.MustCompile(`(?i)\b(no|not|isn't|isn’t|isnt|never|nah|nope)\b`)
	tickerRefRe = regexp.MustCompile(`(?i)\b(ticker|symbol)\b`)
	exitLegRe   = regexp.MustCompile(`(?i)\b(exit|exited|close|closed)\b`)
	entryLegRe  = regexp.MustCompile(`(?i)\b(entry|entered|open|opened)\b`)
)

const (
	minTickerLen = 2
	maxTickerLen = 10
)

var stopWords = toSet(
	// filler
	"a", "an", "the", "and", "or", "but", "so", "then", "just", "also", "like",
	"i", "im", "ive", "me", "my", "mine", "we", "our", "you", "your", "it", "its",
	"he", "she", "they", "them", "their", "this", "that", "these", "those", "there", "here",
	"is", "was", "were", "be", "been", "am", "are", "do", "did", "does", "done", "dont", "don",
	"didn", "doesn", "wasn", "isn", "isnt", "have", "has", "had", "will", "would", "should",
	"could", "can", "cant", "ll", "re", "ve",
	"at", "on", "in", "of", "to", "for", "with", "from", "by", "up", "down", "out", "off",
	"about", "around", "into", "over", "after", "before", "again",
	"yes", "yeah", "yep", "no", "not", "nah", "nope", "never", "ok", "okay", "sure", "fine",
	"thanks", "thank", "please", "hi", "hello", "hey", "what", "when", "which", "where",
	"how", "why", "who", "some", "any", "all", "more", "less", "very", "really", "got", "get",
	"today", "yesterday", "tomorrow", "morning", "afternoon", "evening", "night", "now",
	"pm", "utc", "est", "et",
	// domain
	"trade", "trades", "traded", "trading", "position", "long", "short", "call", "calls",
	"put", "puts", "entry", "entered", "enter", "exit", "exited", "open", "opened", "close",
	"closed", "pnl", "profit", "loss", "lost", "lose", "made", "make", "gain", "gained",
	"win", "won", "ticker", "symbol", "bought", "sold", "buy", "sell", "share", "shares",
	"stock", "stocks", "option", "options", "contract", "contracts", "dollars", "dollar",
	"usd", "bucks", "notes", "note", "time", "hour", "hours", "minute", "minutes", "mins",
	"green", "red", "plus", "minus", "breakout", "setup",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Infer proposes values for pending fields from a raw utterance without
// calling the model. Only fields listed in missing are inspected. Commands and
// empty text yield an empty result.
func Infer(missing []string, text string, now time.Time) models.Fields {
	var out models.Fields
	text = strings.TrimSpace(text)
	if text == "" || strings.HasPrefix(text, CommandPrefix) {
		return out
	}

	pending := make(map[models.FieldName]bool, len(missing))
	for _, name := range missing {
		pending[models.FieldName(name)] = true
	}

	if pending[models.FieldPositionType] {
		if m := positionRe.FindStringSubmatch(text); m != nil {
			out.PositionType = models.Some(strings.ToLower(m[1]))
		}
	}

	if pending[models.FieldPnL] {
		if pnl, ok := inferPnL(text); ok {
			out.PnL = models.Some(pnl)
		}
	}

	entryPending := pending[models.FieldEntryTimestamp]
	exitPending := pending[models.FieldExitTimestamp]
	if entryPending || exitPending {
		inferTimestamps(&out, text, now, entryPending, exitPending)
	}

	if pending[models.FieldTicker] {
		if negationRe.MatchString(text) && tickerRefRe.MatchString(text) {
			out.Ticker = models.Declined[string]()
		} else if ticker, ok := inferTicker(text); ok {
			out.Ticker = models.Some(ticker)
		}
	}

	if pending[models.FieldNotes] {
		out.Notes = models.Some(text)
	}
	return out
}

// inferPnL returns the first number in text that is not part of a date or a
// clock time.
func inferPnL(text string) (decimal.Decimal, bool) {
	blanked := isoRe.ReplaceAllString(text, " ")
	blanked = clock12Re.ReplaceAllString(blanked, " ")
	blanked = clock24Re.ReplaceAllString(blanked, " ")

	raw := numberRe.FindString(blanked)
	if raw == "" {
		return decimal.Decimal{}, false
	}
	pnl, err := models.ParsePnL(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return pnl, true
}

func inferTimestamps(out *models.Fields, text string, now time.Time, entryPending, exitPending bool) {
	values := findTimestamps(text, now)
	if len(values) == 0 {
		return
	}

	switch {
	case entryPending && exitPending:
		if len(values) >= 2 {
			out.EntryTimestamp = models.Some(values[0])
			out.ExitTimestamp = models.Some(values[1])
			return
		}
		if exitLegRe.MatchString(text) && !entryLegRe.MatchString(text) {
			out.ExitTimestamp = models.Some(values[0])
			return
		}
		out.EntryTimestamp = models.Some(values[0])
	case entryPending:
		out.EntryTimestamp = models.Some(values[0])
	case exitPending:
		out.ExitTimestamp = models.Some(values[len(values)-1])
	}
}

// findTimestamps returns explicit ISO timestamps when any are present,
// otherwise 12-hour clock times resolved against now's UTC date.
func findTimestamps(text string, now time.Time) []time.Time {
	var values []time.Time
	for _, token := range isoRe.FindAllString(text, -1) {
		if t, err := models.ParseTimestamp(strings.Replace(token, " ", "T", 1)); err == nil {
			values = append(values, t)
		}
	}
	if len(values) > 0 {
		return values
	}
	for _, m := range clock12Re.FindAllStringSubmatch(text, -1) {
		if t, ok := ResolveClock(m[1], m[2], m[3], now); ok {
			values = append(values, t)
		}
	}
	return values
}

// ResolveClock turns a 12-hour clock reading into a UTC time on now's UTC
// date.
func ResolveClock(hour, minute, meridiem string, now time.Time) (time.Time, bool) {
	h, err := strconv.Atoi(hour)
	if err != nil || h < 1 || h > 12 {
		return time.Time{}, false
	}
	m := 0
	if minute != "" {
		m, err = strconv.Atoi(minute)
		if err != nil || m > 59 {
			return time.Time{}, false
		}
	}
	h %= 12
	if strings.EqualFold(meridiem, "pm") {
		h += 12
	}
	day := now.UTC()
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, time.UTC), true
}

// inferTicker takes the last alphabetic token that is not a stop word.
func inferTicker(text string) (string, bool) {
	tokens := wordRe.FindAllString(text, -1)
	for i := len(tokens) - 1; i >= 0; i-- {
		tok := tokens[i]
		if len(tok) < minTickerLen || len(tok) > maxTickerLen {
			continue
		}
		if _, stop := stopWords[strings.ToLower(tok)]; stop {
			continue
		}
		return strings.ToUpper(tok), true
	}
	return "", false
}
