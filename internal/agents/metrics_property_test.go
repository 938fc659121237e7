package agents

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

func genEntries() gopter.Gen {
	return gen.SliceOf(gopter.CombineGens(
		gen.OneConstOf("AAPL", "MSFT", "tsla", "NVDA", "amd", "META", "GOOG"),
		gen.OneConstOf("long", "short"),
		gen.Int64Range(-50_000, 50_000),
	).Map(func(v []interface{}) models.JournalEntry {
		return entry(v[0].(string), v[1].(string), decimal.New(v[2].(int64), -2).String(), time.Hour)
	}))
}

// Aggregates are consistent with each other whatever the journal holds.
func TestProperty_MetricsConsistency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("per-ticker and per-position totals sum to the total", prop.ForAll(
		func(entries []models.JournalEntry) bool {
			m := ComputeMetrics(entries)
			byTicker, byPosition := decimal.Zero, decimal.Zero
			for _, v := range m.PnLByTicker {
				byTicker = byTicker.Add(v)
			}
			for _, v := range m.PnLByPosition {
				byPosition = byPosition.Add(v)
			}
			return byTicker.Equal(m.TotalPnL) && byPosition.Equal(m.TotalPnL)
		},
		genEntries(),
	))

	properties.Property("counts and extremes are bounded", prop.ForAll(
		func(entries []models.JournalEntry) bool {
			m := ComputeMetrics(entries)
			if m.Trades != len(entries) || m.Wins+m.Losses > m.Trades {
				return false
			}
			if m.WinRate < 0 || m.WinRate > 100 || len(m.TopTickers) > 5 {
				return false
			}
			if m.Trades == 0 {
				return true
			}
			return !m.BestTrade.LessThan(m.WorstTrade) &&
				!m.AveragePnL.GreaterThan(m.BestTrade) &&
				!m.AveragePnL.LessThan(m.WorstTrade)
		},
		genEntries(),
	))

	properties.TestingRun(t)
}
