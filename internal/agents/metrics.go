package agents

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

// JournalMetrics summarises a set of journal entries.
type JournalMetrics struct {
	Trades          int                        `json:"trades"`
	Wins            int                        `json:"wins"`
	Losses          int                        `json:"losses"`
	WinRate         float64                    `json:"win_rate"`
	TotalPnL        decimal.Decimal            `json:"total_pnl"`
	AveragePnL      decimal.Decimal            `json:"average_pnl"`
	BestTrade       decimal.Decimal            `json:"best_trade"`
	WorstTrade      decimal.Decimal            `json:"worst_trade"`
	AvgHoldDuration string                     `json:"avg_hold_duration"`
	PnLByTicker     map[string]decimal.Decimal `json:"pnl_by_ticker"`
	PnLByPosition   map[string]decimal.Decimal `json:"pnl_by_position"`
	TopTickers      []string                   `json:"top_tickers"`
}

// ComputeMetrics aggregates entries. An empty slice yields zero metrics.
func ComputeMetrics(entries []models.JournalEntry) JournalMetrics {
	m := JournalMetrics{
		PnLByTicker:   make(map[string]decimal.Decimal),
		PnLByPosition: make(map[string]decimal.Decimal),
	}
	if len(entries) == 0 {
		return m
	}

	var hold time.Duration
	counts := make(map[string]int)
	for i, e := range entries {
		m.Trades++
		switch e.PnL.Sign() {
		case 1:
			m.Wins++
		case -1:
			m.Losses++
		}
		m.TotalPnL = m.TotalPnL.Add(e.PnL)
		if i == 0 || e.PnL.GreaterThan(m.BestTrade) {
			m.BestTrade = e.PnL
		}
		if i == 0 || e.PnL.LessThan(m.WorstTrade) {
			m.WorstTrade = e.PnL
		}
		if e.ExitTimestamp.After(e.EntryTimestamp) {
			hold += e.ExitTimestamp.Sub(e.EntryTimestamp)
		}

		ticker := strings.ToUpper(e.Ticker)
		m.PnLByTicker[ticker] = m.PnLByTicker[ticker].Add(e.PnL)
		counts[ticker]++
		position := strings.ToLower(e.PositionType)
		m.PnLByPosition[position] = m.PnLByPosition[position].Add(e.PnL)
	}

	n := decimal.NewFromInt(int64(m.Trades))
	m.AveragePnL = m.TotalPnL.Div(n).Round(2)
	m.WinRate = float64(m.Wins) / float64(m.Trades) * 100
	m.AvgHoldDuration = (hold / time.Duration(m.Trades)).Round(time.Minute).String()

	for ticker := range counts {
		m.TopTickers = append(m.TopTickers, ticker)
	}
	sort.Slice(m.TopTickers, func(i, j int) bool {
		a, b := m.TopTickers[i], m.TopTickers[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return a < b
	})
	if len(m.TopTickers) > 5 {
		m.TopTickers = m.TopTickers[:5]
	}
	return m
}
