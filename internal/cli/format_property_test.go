package cli

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

// FormatAmount keeps the value, uses two decimals and groups digits in threes.
func TestProperty_AmountFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("FormatAmount preserves value", prop.ForAll(
		func(cents int64) bool {
			amount := decimal.New(cents, -2)
			formatted := FormatAmount(amount)

			parsed, err := decimal.NewFromString(strings.ReplaceAll(formatted, ",", ""))
			if err != nil {
				t.Logf("unparseable %q: %v", formatted, err)
				return false
			}
			return parsed.Equal(amount)
		},
		gen.Int64Range(-1_000_000_000_000, 1_000_000_000_000),
	))

	properties.Property("FormatAmount has two decimals and 3-digit groups", prop.ForAll(
		func(cents int64) bool {
			formatted := strings.TrimPrefix(FormatAmount(decimal.New(cents, -2)), "-")

			parts := strings.Split(formatted, ".")
			if len(parts) != 2 || len(parts[1]) != 2 {
				return false
			}
			groups := strings.Split(parts[0], ",")
			if len(groups[0]) < 1 || len(groups[0]) > 3 {
				return false
			}
			for _, g := range groups[1:] {
				if len(g) != 3 {
					return false
				}
			}
			return true
		},
		gen.Int64Range(-1_000_000_000_000, 1_000_000_000_000),
	))

	properties.Property("FormatPnL signs gains only", prop.ForAll(
		func(cents int64) bool {
			pnl := decimal.New(cents, -2)
			formatted := FormatPnL(pnl)
			switch {
			case cents > 0:
				return strings.HasPrefix(formatted, "+")
			case cents < 0:
				return strings.HasPrefix(formatted, "-")
			default:
				return formatted == "0.00"
			}
		},
		gen.Int64Range(-1_000_000, 1_000_000),
	))

	properties.TestingRun(t)
}

// TruncateString never exceeds the limit and leaves short strings alone.
func TestProperty_TruncateString(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("TruncateString respects the limit", prop.ForAll(
		func(s string, maxLen int) bool {
			out := TruncateString(s, maxLen)
			if utf8.RuneCountInString(s) <= maxLen {
				return out == s
			}
			return utf8.RuneCountInString(out) == maxLen
		},
		gen.AnyString(),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

func TestFormatAmountExamples(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"12.5", "12.50"},
		{"999.999", "1,000.00"},
		{"1234567.891", "1,234,567.89"},
		{"-0.5", "-0.50"},
		{"-100000", "-100,000.00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAmount(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestFormatDurationExamples(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "2m 5s", FormatDuration(2*time.Minute+5*time.Second))
	assert.Equal(t, "3h 20m", FormatDuration(3*time.Hour+20*time.Minute))
	assert.Equal(t, "2d 4h", FormatDuration(52*time.Hour))
	assert.Equal(t, "45s", FormatDuration(-45*time.Second))
}

func TestFormatFields(t *testing.T) {
	assert.Equal(t, "-", FormatFields(models.Fields{}))

	fields := models.Fields{
		Ticker:         models.Some("AAPL"),
		EntryTimestamp: models.Some(time.Date(2026, 10, 1, 13, 30, 0, 0, time.UTC)),
	}
	assert.Equal(t, "entry_timestamp=2026-10-01T13:30:00Z ticker=AAPL", FormatFields(fields))
}

func TestFormatDateTime(t *testing.T) {
	assert.Equal(t, "-", FormatDateTime(time.Time{}))
	loc := time.FixedZone("UTC+2", 2*60*60)
	assert.Equal(t, "2026-10-01 08:00", FormatDateTime(time.Date(2026, 10, 1, 10, 0, 0, 0, loc)))
}
