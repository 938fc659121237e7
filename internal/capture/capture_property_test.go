package capture

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

// Property: resolving the same 12-hour clock reading twice within one UTC day
// yields the same time, and "3pm" is always hour 15.
func TestProperty_ClockResolutionIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	dayGen := gen.Int64Range(0, 20000)
	offsetGen := gen.Int64Range(0, int64(24*time.Hour-time.Second))

	properties.Property("3pm resolves to hour 15 on the same day", prop.ForAll(
		func(day, offsetA, offsetB int64) bool {
			midnight := time.Unix(0, 0).UTC().Add(time.Duration(day) * 24 * time.Hour)
			a := Infer([]string{"entry_timestamp"}, "3pm", midnight.Add(time.Duration(offsetA)))
			b := Infer([]string{"entry_timestamp"}, "3pm", midnight.Add(time.Duration(offsetB)))

			ta, okA := a.EntryTimestamp.Get()
			tb, okB := b.EntryTimestamp.Get()
			return okA && okB && ta.Equal(tb) && ta.Hour() == 15 && ta.Minute() == 0
		},
		dayGen, offsetGen, offsetGen,
	))

	properties.TestingRun(t)
}

// Property: inference never proposes a value for a field that is not pending.
func TestProperty_InferenceOnlyTouchesPendingFields(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	fieldNames := []string{"ticker", "pnl", "position_type", "entry_timestamp", "exit_timestamp", "notes"}
	tickers := []string{"NVDA", "AAPL", "Gold", "spy", "TSLA"}
	positions := []string{"long", "short", "call", "put"}
	now := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)

	properties.Property("unset unless pending", prop.ForAll(
		func(mask uint8, tickerIdx, positionIdx, pnl, hour int) bool {
			var pending []string
			for i, name := range fieldNames {
				if mask&(1<<uint(i)) != 0 {
					pending = append(pending, name)
				}
			}
			text := fmt.Sprintf("%s %s %d at %dpm", tickers[tickerIdx%len(tickers)], positions[positionIdx%len(positions)], pnl, hour)
			got := Infer(pending, text, now)

			isPending := make(map[string]bool, len(pending))
			for _, p := range pending {
				isPending[p] = true
			}
			for _, name := range models.KnownFields {
				_, present := got.Get(name)
				if (present || got.IsDeclined(name)) && !isPending[string(name)] {
					return false
				}
			}
			return true
		},
		gen.UInt8Range(0, 63),
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
		gen.IntRange(-5000, 5000),
		gen.IntRange(1, 12),
	))

	properties.TestingRun(t)
}
