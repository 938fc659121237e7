package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601-like timestamp. Values without a zone are
// taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// ParsePnL parses a profit/loss amount, tolerating currency symbols and
// comma group separators.
func ParsePnL(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.Replace(cleaned, "$", "", 1)
	return decimal.NewFromString(cleaned)
}

func coerceString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	case json.Number:
		return t.String(), nil
	case float64, int, int64:
		return fmt.Sprint(t), nil
	}
	return "", fmt.Errorf("expected string, got %T", v)
}

func coercePnL(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		return ParsePnL(t)
	}
	return decimal.Zero, fmt.Errorf("expected number, got %T", v)
}

func coerceTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return ParseTimestamp(t)
	}
	return time.Time{}, fmt.Errorf("expected timestamp, got %T", v)
}

// IsFalsy reports whether a raw field value counts as absent: nil, empty or
// blank strings, zero numbers, zero times, and empty sequences.
func IsFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case float32:
		return t == 0
	case int:
		return t == 0
	case int64:
		return t == 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case decimal.Decimal:
		return t.IsZero()
	case time.Time:
		return t.IsZero()
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
