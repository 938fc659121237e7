package extraction

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/resilience"
)

type stubExtractor struct {
	out       map[string]any
	err       error
	block     bool
	overrides map[string]any
	metas     []models.AttachmentMeta
}

func (s *stubExtractor) ExtractTradeDetails(ctx context.Context, _ string, metas []models.AttachmentMeta, overrides map[string]any) (map[string]any, error) {
	s.overrides = overrides
	s.metas = metas
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.out, s.err
}

func TestGateway_OverridesWinAndUserIsStamped(t *testing.T) {
	stub := &stubExtractor{out: map[string]any{"ticker": "AAPL", "pnl": 10.0}}
	g := NewGateway(stub, 0, zerolog.Nop())

	res, err := g.Extract(context.Background(), models.Submission{
		UserID:    "u1",
		Content:   "bought apple",
		Overrides: models.Fields{Ticker: models.Some("MSFT")},
		Attachments: []models.Attachment{
			{Filename: "chart.png", MimeType: "image/png", Content: "AAAA"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "MSFT", res.Raw["ticker"])
	assert.Equal(t, "u1", res.Raw["user_id"])
	assert.Equal(t, "", res.Raw["notes"])
	assert.Equal(t, []string{"position_type", "entry_timestamp", "exit_timestamp"}, res.MissingFields)
	assert.Nil(t, res.Trade)
	assert.Equal(t, map[string]any{"ticker": "MSFT"}, stub.overrides)
	assert.Equal(t, []models.AttachmentMeta{{Filename: "chart.png", MimeType: "image/png"}}, stub.metas)

	ticker, _ := res.Structured.Ticker.Get()
	assert.Equal(t, "MSFT", ticker)
}

func TestGateway_CompleteDraft(t *testing.T) {
	stub := &stubExtractor{out: map[string]any{
		"ticker":          "nvda",
		"pnl":             "1,250.50",
		"position_type":   "long",
		"entry_timestamp": "2025-11-01T09:30:00Z",
		"exit_timestamp":  "2025-11-01T15:45:00+00:00",
		"setup":           "opening range",
	}}
	g := NewGateway(stub, 0, zerolog.Nop())

	res, err := g.Extract(context.Background(), models.Submission{UserID: "u1", Content: "x"})
	require.NoError(t, err)
	require.True(t, res.Complete())
	require.NotNil(t, res.Trade)

	assert.Equal(t, "NVDA", res.Trade.Ticker)
	assert.True(t, decimal.RequireFromString("1250.50").Equal(res.Trade.PnL))
	assert.Equal(t, time.Date(2025, 11, 1, 15, 45, 0, 0, time.UTC), res.Trade.ExitTimestamp)
	assert.Equal(t, "", res.Trade.Notes)
	assert.Equal(t, "opening range", res.Structured.Extra["setup"])
}

func TestGateway_ZeroPnLCountsAsMissing(t *testing.T) {
	stub := &stubExtractor{out: map[string]any{
		"ticker":          "NVDA",
		"pnl":             0,
		"position_type":   "long",
		"entry_timestamp": "2025-11-01T09:30:00Z",
		"exit_timestamp":  "2025-11-01T15:45:00Z",
	}}
	g := NewGateway(stub, 0, zerolog.Nop())

	res, err := g.Extract(context.Background(), models.Submission{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pnl"}, res.MissingFields)
}

func TestGateway_MalformedValueIsExtractionError(t *testing.T) {
	stub := &stubExtractor{out: map[string]any{
		"ticker":          "NVDA",
		"pnl":             "lots",
		"position_type":   "long",
		"entry_timestamp": "2025-11-01T09:30:00Z",
		"exit_timestamp":  "2025-11-01T15:45:00Z",
	}}
	g := NewGateway(stub, 0, zerolog.Nop())

	_, err := g.Extract(context.Background(), models.Submission{UserID: "u1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrExtraction)

	var extractionErr *apperrors.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, "pnl", extractionErr.Field)
}

func TestGateway_IncompleteDraftLogsDroppedValues(t *testing.T) {
	stub := &stubExtractor{out: map[string]any{"pnl": "lots", "position_type": "long"}}
	var buf bytes.Buffer
	g := NewGateway(stub, 0, zerolog.New(&buf).Level(zerolog.DebugLevel))

	res, err := g.Extract(context.Background(), models.Submission{UserID: "u1"})
	require.NoError(t, err)

	// The raw value is not falsy, so pnl is not reported missing even though
	// it could not be decoded.
	assert.Equal(t, []string{"ticker", "entry_timestamp", "exit_timestamp"}, res.MissingFields)
	assert.True(t, res.Structured.PnL.IsUnset())
	assert.Equal(t, "long", res.Structured.PositionType.OrZero())

	logs := buf.String()
	assert.Contains(t, logs, "Dropped malformed field value")
	assert.Contains(t, logs, `"field":"pnl"`)
	assert.Contains(t, logs, `"value":"lots"`)
}

func TestDecodeFieldsChecked(t *testing.T) {
	fields, dropped := models.DecodeFieldsChecked(map[string]any{
		"ticker":          "aapl",
		"entry_timestamp": "yesterday-ish",
		"notes":           nil,
	})
	assert.Equal(t, "AAPL", fields.Ticker.OrZero())
	assert.True(t, fields.Notes.IsDeclined())
	require.Len(t, dropped, 1)
	assert.Error(t, dropped[models.FieldEntryTimestamp])
}

func TestGateway_TickerTooLongIsExtractionError(t *testing.T) {
	stub := &stubExtractor{out: map[string]any{
		"ticker":          "SUPERCALIFRAGILISTIC",
		"pnl":             5,
		"position_type":   "long",
		"entry_timestamp": "2025-11-01T09:30:00Z",
		"exit_timestamp":  "2025-11-01T15:45:00Z",
	}}
	g := NewGateway(stub, 0, zerolog.Nop())

	_, err := g.Extract(context.Background(), models.Submission{UserID: "u1"})
	assert.ErrorIs(t, err, apperrors.ErrExtraction)
}

func TestGateway_FailuresAreModelUnavailable(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		g := NewGateway(&stubExtractor{err: errors.New("boom")}, 0, zerolog.Nop())
		_, err := g.Extract(context.Background(), models.Submission{UserID: "u1"})
		assert.ErrorIs(t, err, apperrors.ErrModelUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		g := NewGateway(&stubExtractor{block: true}, 10*time.Millisecond, zerolog.Nop())
		_, err := g.Extract(context.Background(), models.Submission{UserID: "u1"})
		assert.ErrorIs(t, err, apperrors.ErrModelUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestGateway_OpenBreakerFailsFast(t *testing.T) {
	stub := &stubExtractor{err: errors.New("503")}
	breaker := resilience.NewBreaker("model", resilience.BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})
	g := NewGateway(stub, 0, zerolog.Nop()).WithBreaker(breaker)

	for i := 0; i < 2; i++ {
		_, err := g.Extract(context.Background(), models.Submission{UserID: "u1"})
		assert.ErrorIs(t, err, apperrors.ErrModelUnavailable)
	}
	require.Equal(t, resilience.CircuitOpen, breaker.State())

	stub.err = nil
	stub.out = map[string]any{"ticker": "AAPL"}
	_, err := g.Extract(context.Background(), models.Submission{UserID: "u1"})
	assert.ErrorIs(t, err, apperrors.ErrModelUnavailable)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}
