// Package extraction turns everything known about a conversation into a
// structured trade draft and classifies it as complete or incomplete.
package extraction

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/resilience"
)

// Extractor is the model call. It returns a best-effort field map and may
// fail with an error matching ErrModelUnavailable.
type Extractor interface {
	ExtractTradeDetails(ctx context.Context, content string, attachments []models.AttachmentMeta, overrides map[string]any) (map[string]any, error)
}

// Result is the outcome of one extraction.
type Result struct {
	// Trade is set only when no required field is missing.
	Trade      *models.TradeDraft
	Structured models.Fields
	// MissingFields follows models.RequiredFields order.
	MissingFields []string
	// Raw is the merged map the result was built from.
	Raw map[string]any
}

// Complete reports whether every required field was found.
func (r *Result) Complete() bool {
	return len(r.MissingFields) == 0
}

// Gateway wraps the extractor call with merging and validation.
type Gateway struct {
	extractor Extractor
	timeout   time.Duration
	breaker   *resilience.Breaker
	logger    zerolog.Logger
}

// NewGateway creates a gateway. A zero timeout leaves the call unbounded.
func NewGateway(extractor Extractor, timeout time.Duration, logger zerolog.Logger) *Gateway {
	return &Gateway{
		extractor: extractor,
		timeout:   timeout,
		logger:    logger.With().Str("component", "extraction").Logger(),
	}
}

// WithBreaker guards model calls with b. While the circuit is open calls
// fail fast as model-unavailable.
func (g *Gateway) WithBreaker(b *resilience.Breaker) *Gateway {
	g.breaker = b
	return g
}

// Extract calls the model with the submission content, attachment metadata,
// and non-blank overrides, then merges with overrides winning.
func (g *Gateway) Extract(ctx context.Context, sub models.Submission) (*Result, error) {
	metas := models.AttachmentMetas(sub.Attachments)
	overrides := sub.Overrides.Raw()

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	call := func(ctx context.Context) (map[string]any, error) {
		return g.extractor.ExtractTradeDetails(ctx, sub.Content, metas, overrides)
	}
	var modelOutput map[string]any
	var err error
	if g.breaker != nil {
		modelOutput, err = resilience.ExecuteWithResult(callCtx, g.breaker, call)
	} else {
		modelOutput, err = call(callCtx)
	}
	if err != nil {
		g.logger.Warn().Err(err).Str("user_id", sub.UserID).Dur("duration", time.Since(start)).Msg("Extraction call failed")
		if errors.Is(err, apperrors.ErrModelUnavailable) {
			return nil, err
		}
		// Timeouts and transport failures alike mean the model is unavailable.
		return nil, apperrors.NewGatewayError("extract", err)
	}
	g.logger.Debug().Str("user_id", sub.UserID).Dur("duration", time.Since(start)).Msg("Extraction call completed")

	merged := make(map[string]any, len(modelOutput)+len(overrides)+2)
	for k, v := range modelOutput {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	merged[string(models.FieldUserID)] = sub.UserID
	if models.IsFalsy(merged[string(models.FieldNotes)]) {
		merged[string(models.FieldNotes)] = ""
	}

	missing := MissingFields(merged)
	structured, dropped := models.DecodeFieldsChecked(merged)
	for name, derr := range dropped {
		g.logger.Debug().
			Str("user_id", sub.UserID).
			Str("field", string(name)).
			Interface("value", merged[string(name)]).
			Err(derr).
			Msg("Dropped malformed field value")
	}
	result := &Result{
		Structured:    structured,
		MissingFields: missing,
		Raw:           merged,
	}
	if len(missing) > 0 {
		return result, nil
	}

	draft, err := models.DraftFromRaw(merged)
	if err != nil {
		return nil, err
	}
	result.Trade = draft
	result.Structured = draft.Fields().Overlay(extraOnly(result.Structured))
	return result, nil
}

// MissingFields lists the required fields that are absent or falsy in raw,
// in the fixed required order.
func MissingFields(raw map[string]any) []string {
	missing := make([]string, 0, len(models.RequiredFields))
	for _, name := range models.RequiredFields {
		if models.IsFalsy(raw[string(name)]) {
			missing = append(missing, string(name))
		}
	}
	return missing
}

func extraOnly(f models.Fields) models.Fields {
	return models.Fields{Extra: f.Extra}
}
