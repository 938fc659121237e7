package agents

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/config"
	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/store"
)

type toolCall struct {
	name string
	args string
}

// fakeLLM answers every call with reply. With tool calls set it runs them
// through the executor first, like the real tool loop.
type fakeLLM struct {
	reply     string
	err       error
	toolCalls []toolCall

	system      string
	prompt      string
	tools       []openai.Tool
	toolResults []string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func (f *fakeLLM) CompleteWithSystem(_ context.Context, system, prompt string) (string, error) {
	f.system, f.prompt = system, prompt
	return f.reply, f.err
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, system, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, system, prompt)
}

func (f *fakeLLM) CompleteWithTools(ctx context.Context, system, prompt string, tools []openai.Tool, executor ToolExecutorInterface) (string, error) {
	f.system, f.prompt, f.tools = system, prompt, tools
	if f.err != nil {
		return "", f.err
	}
	for _, call := range f.toolCalls {
		out, err := executor.ExecuteTool(ctx, call.name, json.RawMessage(call.args))
		if err != nil {
			return "", err
		}
		f.toolResults = append(f.toolResults, out)
	}
	return f.reply, nil
}

type fakeJournal struct {
	entries []models.JournalEntry
	filters []store.JournalFilter
}

func (j *fakeJournal) ListEntries(_ context.Context, filter store.JournalFilter) ([]models.JournalEntry, error) {
	j.filters = append(j.filters, filter)
	return j.entries, nil
}

func entry(ticker, position, pnl string, hold time.Duration) models.JournalEntry {
	start := time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC)
	return models.JournalEntry{
		UserID:         "u1",
		Ticker:         ticker,
		PositionType:   position,
		PnL:            decimal.RequireFromString(pnl),
		EntryTimestamp: start,
		ExitTimestamp:  start.Add(hold),
	}
}

func TestComputeMetrics(t *testing.T) {
	m := ComputeMetrics([]models.JournalEntry{
		entry("aapl", "Long", "120", 2*time.Hour),
		entry("AAPL", "long", "-20", time.Hour),
		entry("TSLA", "short", "0", 3*time.Hour),
		entry("NVDA", "short", "50.5", 2*time.Hour),
	})

	assert.Equal(t, 4, m.Trades)
	assert.Equal(t, 2, m.Wins)
	assert.Equal(t, 1, m.Losses)
	assert.InDelta(t, 50.0, m.WinRate, 0.0001)
	assert.True(t, m.TotalPnL.Equal(decimal.RequireFromString("150.5")))
	assert.True(t, m.AveragePnL.Equal(decimal.RequireFromString("37.63")))
	assert.True(t, m.BestTrade.Equal(decimal.NewFromInt(120)))
	assert.True(t, m.WorstTrade.Equal(decimal.NewFromInt(-20)))
	assert.Equal(t, "2h0m0s", m.AvgHoldDuration)
	assert.True(t, m.PnLByTicker["AAPL"].Equal(decimal.NewFromInt(100)))
	assert.True(t, m.PnLByPosition["short"].Equal(decimal.RequireFromString("50.5")))
	assert.Equal(t, []string{"AAPL", "NVDA", "TSLA"}, m.TopTickers)
}

func TestComputeMetrics_Empty(t *testing.T) {
	m := ComputeMetrics(nil)
	assert.Zero(t, m.Trades)
	assert.True(t, m.TotalPnL.IsZero())
	assert.NotNil(t, m.PnLByTicker)
}

func TestTradeExtractor(t *testing.T) {
	llm := &fakeLLM{reply: "```json\n{\"ticker\": \"AAPL\", \"pnl\": 120.5, \"notes\": null}\n```"}
	extractor := NewTradeExtractor(llm)

	out, err := extractor.ExtractTradeDetails(context.Background(), "bought apple",
		[]models.AttachmentMeta{{Filename: "chart.png", MimeType: "image/png"}},
		map[string]any{"position_type": "long"})
	require.NoError(t, err)

	assert.Equal(t, "AAPL", out["ticker"])
	assert.Equal(t, json.Number("120.5"), out["pnl"])
	assert.Nil(t, out["notes"])
	assert.Contains(t, llm.prompt, `"position_type":"long"`)
	assert.Contains(t, llm.prompt, "chart.png")
	assert.Contains(t, llm.prompt, "bought apple")
}

func TestTradeExtractor_PassesModelErrors(t *testing.T) {
	llm := &fakeLLM{err: apperrors.NewGatewayError("complete_json", errors.New("429"))}
	_, err := NewTradeExtractor(llm).ExtractTradeDetails(context.Background(), "x", nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrModelUnavailable)
}

func TestParseJSONObject(t *testing.T) {
	assert.Equal(t, map[string]any{}, parseJSONObject("  "))
	assert.Equal(t, map[string]any{"raw": "not json"}, parseJSONObject("not json"))
	assert.Equal(t, map[string]any{"raw": "[1,2]"}, parseJSONObject("[1,2]"))
	assert.Equal(t, "x", parseJSONObject("```\n{\"a\": \"x\"}\n```")["a"])
}

func TestAnalyst_GenerateReport(t *testing.T) {
	journal := &fakeJournal{entries: []models.JournalEntry{
		entry("AAPL", "long", "120", time.Hour),
		entry("TSLA", "short", "-30", time.Hour),
	}}
	llm := &fakeLLM{
		reply: `{"performance_overview": {"summary": "Solid month", "key_metrics": ["Win rate 50%"]},
			"behavioural_patterns": ["Cuts losers fast"],
			"opportunities": ["Size up on A setups"],
			"action_plan": [{"title": "Review TSLA shorts", "detail": "Two of three stopped out"}]}`,
		toolCalls: []toolCall{
			{name: "journal_metrics", args: `{"ticker": "aapl"}`},
			{name: "read_trading_journal", args: `{"limit": 1}`},
		},
	}
	analyst := NewAnalyst(llm, journal)

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	report, err := analyst.GenerateReport(context.Background(), models.AnalysisRequest{
		UserID:    "u1",
		SheetID:   "sheet-1",
		StartDate: &start,
		Prompt:    "Am I cutting winners early?",
	})
	require.NoError(t, err)

	assert.Equal(t, "Solid month", report.PerformanceOverview.Summary)
	assert.Equal(t, []string{"Cuts losers fast"}, report.BehaviouralPatterns)
	require.Len(t, report.ActionPlan, 1)
	assert.Equal(t, "Review TSLA shorts", report.ActionPlan[0].Title)
	assert.Empty(t, report.Raw)

	require.NotEmpty(t, journal.filters)
	assert.Equal(t, "u1", journal.filters[0].UserID)
	assert.Equal(t, "sheet-1", journal.filters[0].SheetID)
	assert.True(t, journal.filters[0].StartDate.Equal(start))

	assert.Contains(t, llm.prompt, "Am I cutting winners early?")
	assert.Contains(t, llm.prompt, "Period: 2026-09-01 to now")
	assert.Len(t, llm.tools, 2)

	require.Len(t, llm.toolResults, 2)
	var metrics JournalMetrics
	require.NoError(t, json.Unmarshal([]byte(llm.toolResults[0]), &metrics))
	assert.Equal(t, 1, metrics.Trades)
	var recent []models.JournalEntry
	require.NoError(t, json.Unmarshal([]byte(llm.toolResults[1]), &recent))
	require.Len(t, recent, 1)
	assert.Equal(t, "TSLA", recent[0].Ticker)
}

func TestAnalyst_NonJSONReplyIsKeptRaw(t *testing.T) {
	llm := &fakeLLM{reply: "You trade too often."}
	report, err := NewAnalyst(llm, &fakeJournal{}).GenerateReport(context.Background(), models.AnalysisRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "You trade too often.", report.Raw)
	assert.Contains(t, llm.prompt, "Review my recent trading")
}

func TestJournalToolExecutor_UnknownTool(t *testing.T) {
	executor := &journalToolExecutor{journal: &fakeJournal{}}
	_, err := executor.ExecuteTool(context.Background(), "place_order", nil)
	assert.Error(t, err)

	_, err = executor.ExecuteTool(context.Background(), "journal_metrics", json.RawMessage(`{bad`))
	assert.Error(t, err)
}

func TestReplyComposer(t *testing.T) {
	pending := &models.SubmissionResult{
		Status:        models.StatusNeedsMoreInfo,
		MissingFields: []string{"pnl"},
		Prompt:        "What was the profit?",
		Structured:    models.Fields{Ticker: models.Some("AAPL")},
	}

	t.Run("model reply", func(t *testing.T) {
		llm := &fakeLLM{reply: "  Nice AAPL trade! How much did you make?  "}
		reply, err := NewReplyComposer(llm).Compose(context.Background(), ReplyContext{
			UserMessage: "bought AAPL",
			History:     []string{"bought AAPL"},
			Result:      pending,
		})
		require.NoError(t, err)
		assert.Equal(t, "Nice AAPL trade! How much did you make?", reply)
		assert.Equal(t, replySystemPrompt, llm.system)
		assert.Contains(t, llm.prompt, `"suggested_reply":"What was the profit?"`)
		assert.Contains(t, llm.prompt, `"missing_fields":["pnl"]`)
	})

	t.Run("empty reply falls back", func(t *testing.T) {
		reply, err := NewReplyComposer(&fakeLLM{}).Compose(context.Background(), ReplyContext{Result: pending})
		require.NoError(t, err)
		assert.Equal(t, "What was the profit?", reply)
	})

	t.Run("model error is returned", func(t *testing.T) {
		_, err := NewReplyComposer(&fakeLLM{err: apperrors.ErrModelUnavailable}).Compose(context.Background(), ReplyContext{Result: pending})
		assert.ErrorIs(t, err, apperrors.ErrModelUnavailable)
	})
}

func TestFallbackReply(t *testing.T) {
	assert.Equal(t, PendingFallback, FallbackReply(nil))
	assert.Equal(t, PendingFallback, FallbackReply(&models.SubmissionResult{Status: models.StatusNeedsMoreInfo}))
	assert.Equal(t, "Got it. Which ticker?", FallbackReply(&models.SubmissionResult{
		Status:          models.StatusNeedsMoreInfo,
		Acknowledgement: "Got it.",
		Prompt:          "Which ticker?",
	}))
	assert.Equal(t, CompletedFallback, FallbackReply(&models.SubmissionResult{Status: models.StatusCompleted}))
	assert.Equal(t, "Logged AAPL", FallbackReply(&models.SubmissionResult{Status: models.StatusCompleted, Summary: "Logged AAPL"}))
}

func TestNewOpenAIClient_WithoutKeyIsUnavailable(t *testing.T) {
	c := NewOpenAIClient(config.LLMConfig{Model: "extract-model"})
	_, err := c.Complete(context.Background(), "hello")
	assert.ErrorIs(t, err, apperrors.ErrModelUnavailable)
	assert.Equal(t, "reply-model", c.WithModel("reply-model").GetModel())
	assert.Equal(t, "extract-model", c.WithModel("").GetModel())
}
