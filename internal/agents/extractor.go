package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

const extractionSystemPrompt = `You are a trading journal assistant. Analyse the user's description and return a single JSON object with keys:
ticker (string), pnl (number), position_type (string), entry_timestamp (ISO8601 string), exit_timestamp (ISO8601 string), notes (string).
Use null for anything the user has not told you. Do not invent values.`

// TradeExtractor turns free text into a best-effort trade field map.
type TradeExtractor struct {
	llm LLMClient
}

// NewTradeExtractor creates an extractor backed by the given client.
func NewTradeExtractor(llm LLMClient) *TradeExtractor {
	return &TradeExtractor{llm: llm}
}

// ExtractTradeDetails asks the model for the trade fields. Overrides are
// passed along as values the model should prefer; the caller still applies
// them on top of whatever comes back.
func (e *TradeExtractor) ExtractTradeDetails(ctx context.Context, content string, attachments []models.AttachmentMeta, overrides map[string]any) (map[string]any, error) {
	prompt, err := buildExtractionPrompt(content, attachments, overrides)
	if err != nil {
		return nil, err
	}
	reply, err := e.llm.CompleteJSON(ctx, extractionSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	return parseJSONObject(reply), nil
}

func buildExtractionPrompt(content string, attachments []models.AttachmentMeta, overrides map[string]any) (string, error) {
	if attachments == nil {
		attachments = []models.AttachmentMeta{}
	}
	if overrides == nil {
		overrides = map[string]any{}
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return "", fmt.Errorf("failed to encode attachment metadata: %w", err)
	}
	overridesJSON, err := json.Marshal(overrides)
	if err != nil {
		return "", fmt.Errorf("failed to encode overrides: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Use attachment metadata when relevant: ")
	sb.Write(attachmentsJSON)
	sb.WriteString("\nPrefer using explicit overrides when provided: ")
	sb.Write(overridesJSON)
	sb.WriteString("\nUser submission:\n")
	sb.WriteString(content)
	return sb.String(), nil
}
