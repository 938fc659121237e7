package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

const replySystemPrompt = `You are a friendly Telegram trading journal assistant. Maintain a
concise, supportive tone while guiding the trader to provide any
missing information required to log the trade. Incorporate new
details the trader confirms, acknowledge changes, and avoid repeating
the same question verbatim when the user declines to answer.

Requirements:
- Never mention internal schemas or JSON structures to the user.
- Ask for one missing field at a time, while reminding them of any
  other outstanding items gently.
- If the trade is fully captured (no missing fields) respond with a
  short celebratory summary and next steps.
- If the user says they do not want to provide a field, acknowledge
  that and move on.
- Keep replies under 3 short paragraphs.
- Use the conversation history to avoid repeating yourself and to
  maintain context.`

const (
	// CompletedFallback is sent when a trade was captured and neither the
	// model nor a summary is available.
	CompletedFallback = "✅ Trade captured! I'll keep an eye out for your next update."
	// PendingFallback is sent when fields are still missing and the model
	// is unavailable.
	PendingFallback = "I'm still listening, let me know the remaining details when you're ready."
	// UnavailableReply is sent when extraction itself could not run.
	UnavailableReply = "I'm having trouble reaching the trade assistant right now. Please try again shortly."
)

// ReplyComposer writes conversational chat replies for capture turns.
type ReplyComposer struct {
	llm LLMClient
}

// NewReplyComposer creates a composer backed by the given client.
func NewReplyComposer(llm LLMClient) *ReplyComposer {
	return &ReplyComposer{llm: llm}
}

// ReplyContext is everything the composer knows about a turn.
type ReplyContext struct {
	UserMessage string
	History     []string
	Result      *models.SubmissionResult
}

type replyPayload struct {
	KnownFields        models.Fields `json:"known_fields"`
	MissingFields      []string      `json:"missing_fields"`
	History            []string      `json:"history"`
	LatestUserMessage  string        `json:"latest_user_message"`
	TradeStatus        string        `json:"trade_status"`
	IngestionSummary   string        `json:"ingestion_summary"`
	Acknowledgement    string        `json:"acknowledgement,omitempty"`
	DeterministicReply string        `json:"suggested_reply,omitempty"`
}

// Compose asks the model for a reply. Model errors are returned so the
// caller can pick a fallback; an empty model reply falls back here.
func (r *ReplyComposer) Compose(ctx context.Context, rc ReplyContext) (string, error) {
	prompt, err := buildReplyPrompt(rc)
	if err != nil {
		return "", err
	}
	reply, err := r.llm.CompleteWithSystem(ctx, replySystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	if reply = strings.TrimSpace(reply); reply != "" {
		return reply, nil
	}
	return FallbackReply(rc.Result), nil
}

func buildReplyPrompt(rc ReplyContext) (string, error) {
	res := rc.Result
	if res == nil {
		res = &models.SubmissionResult{}
	}
	known := res.Structured
	if res.Trade != nil {
		known = res.Trade.Fields()
	}
	known = known.Overlay(res.Inferred)

	payload := replyPayload{
		KnownFields:       known,
		MissingFields:     append([]string{}, res.MissingFields...),
		History:           append([]string{}, rc.History...),
		LatestUserMessage: rc.UserMessage,
		TradeStatus:       string(res.Status),
		IngestionSummary:  res.Summary,
		Acknowledgement:   res.Acknowledgement,
	}
	if !res.Completed() {
		payload.DeterministicReply = res.Prompt
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode reply context: %w", err)
	}
	return "Context:\n" + string(data), nil
}

// FallbackReply is the deterministic reply used when the model cannot help.
func FallbackReply(res *models.SubmissionResult) string {
	if res == nil {
		return PendingFallback
	}
	if res.Completed() {
		if res.Summary != "" {
			return res.Summary
		}
		return CompletedFallback
	}
	if res.Prompt != "" {
		if res.Acknowledgement != "" {
			return res.Acknowledgement + " " + res.Prompt
		}
		return res.Prompt
	}
	return PendingFallback
}
