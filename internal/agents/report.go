package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/store"
)

const analystSystemPrompt = `You are a trading performance coach reviewing a trader's journal.
Use the tools to read journal entries and aggregate metrics before drawing conclusions.
When web research is available, use it for market context only; never let it override the journal data.
Use bullet-point style statements, call out recurring behaviours, and end with 2-3 prioritized action items.
Respond strictly in JSON with the schema: {"performance_overview": {"summary": string, "key_metrics": [string]}, "behavioural_patterns": [string], "opportunities": [string], "action_plan": [{"title": string, "detail": string}]}.
Do not include prose outside the JSON object.`

// promptEntryLimit bounds how many entries are inlined into the first prompt.
const promptEntryLimit = 50

// JournalReader lists committed journal entries.
type JournalReader interface {
	ListEntries(ctx context.Context, filter store.JournalFilter) ([]models.JournalEntry, error)
}

// Analyst produces coaching reports from a user's journal.
type Analyst struct {
	llm     LLMClient
	journal JournalReader
	search  WebSearchClient
}

// NewAnalyst creates an analyst.
func NewAnalyst(llm LLMClient, journal JournalReader) *Analyst {
	return &Analyst{llm: llm, journal: journal}
}

// WithWebSearch enables the web_research tool and up-front research on the
// request prompt.
func (a *Analyst) WithWebSearch(search WebSearchClient) *Analyst {
	a.search = search
	return a
}

// GenerateReport reads the journal for the request and asks the model for a
// structured report. A reply that is not valid JSON is kept in Raw.
func (a *Analyst) GenerateReport(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisReport, error) {
	filter := store.JournalFilter{UserID: req.UserID, SheetID: req.SheetID, Range: req.Range}
	if req.StartDate != nil {
		filter.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		filter.EndDate = *req.EndDate
	}

	entries, err := a.journal.ListEntries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	prompt, err := buildAnalysisPrompt(req, entries)
	if err != nil {
		return nil, err
	}
	tools := journalTools()
	if a.search != nil {
		prompt += a.research(ctx, req.Prompt)
		tools = append(tools, researchTool())
	}
	executor := &journalToolExecutor{journal: a.journal, filter: filter, search: a.search}
	reply, err := a.llm.CompleteWithTools(ctx, analystSystemPrompt, prompt, tools, executor)
	if err != nil {
		return nil, err
	}
	return parseReport(reply), nil
}

func buildAnalysisPrompt(req models.AnalysisRequest, entries []models.JournalEntry) (string, error) {
	metrics := ComputeMetrics(entries)
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return "", fmt.Errorf("failed to encode metrics: %w", err)
	}
	sample := entries
	if len(sample) > promptEntryLimit {
		sample = sample[len(sample)-promptEntryLimit:]
	}
	entriesJSON, err := json.Marshal(sample)
	if err != nil {
		return "", fmt.Errorf("failed to encode journal entries: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("User Request:\n")
	if strings.TrimSpace(req.Prompt) != "" {
		sb.WriteString(req.Prompt)
	} else {
		sb.WriteString("Review my recent trading and tell me what to improve.")
	}
	if req.StartDate != nil || req.EndDate != nil {
		sb.WriteString("\n\nPeriod: ")
		sb.WriteString(formatPeriod(req.StartDate, req.EndDate))
	}
	sb.WriteString("\n\nJournal Metrics:\n")
	sb.Write(metricsJSON)
	sb.WriteString(fmt.Sprintf("\n\nJournal Entries (latest %d of %d):\n", len(sample), len(entries)))
	sb.Write(entriesJSON)
	return sb.String(), nil
}

// research searches the web for the request prompt and renders the results
// as a prompt section. A failed search is noted rather than failing the report.
func (a *Analyst) research(ctx context.Context, query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}
	results, err := a.search.Search(ctx, query, 5)
	if err != nil {
		return "\n\nWeb Research: unavailable (" + err.Error() + ")"
	}
	data, err := json.Marshal(results)
	if err != nil {
		return ""
	}
	return "\n\nWeb Research:\n" + string(data)
}

func formatPeriod(start, end *time.Time) string {
	from, to := "beginning", "now"
	if start != nil {
		from = start.UTC().Format("2006-01-02")
	}
	if end != nil {
		to = end.UTC().Format("2006-01-02")
	}
	return from + " to " + to
}

func parseReport(reply string) *models.AnalysisReport {
	payload := stripFences(reply)
	var report models.AnalysisReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return &models.AnalysisReport{Raw: payload}
	}
	return &report
}

func journalTools() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "read_trading_journal",
				Description: "Fetch entries from the trader's journal, oldest first. Optionally narrow to one ticker.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"ticker": {"type": "string", "description": "Ticker symbol to filter on"},
						"limit": {"type": "integer", "description": "Maximum number of most recent entries", "default": 50}
					}
				}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "journal_metrics",
				Description: "Aggregate win rate, PnL totals, and hold times across the journal. Optionally narrow to one ticker or position type.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"ticker": {"type": "string"},
						"position_type": {"type": "string"}
					}
				}`),
			},
		},
	}
}

func researchTool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        "web_research",
			Description: "Search the web for market context on a ticker, event, or trading concept. Returns title, link, and snippet per result.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Search query"},
					"num_results": {"type": "integer", "description": "Number of results", "default": 5}
				},
				"required": ["query"]
			}`),
		},
	}
}

// journalToolExecutor serves the analyst's tool calls from the journal and,
// when configured, the web.
type journalToolExecutor struct {
	journal JournalReader
	filter  store.JournalFilter
	search  WebSearchClient
}

type journalToolArgs struct {
	Ticker       string `json:"ticker"`
	PositionType string `json:"position_type"`
	Limit        int    `json:"limit"`
	Query        string `json:"query"`
	NumResults   int    `json:"num_results"`
}

// ExecuteTool runs a single tool call.
func (e *journalToolExecutor) ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) (string, error) {
	var a journalToolArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}

	if toolName == "web_research" {
		return e.webResearch(ctx, a)
	}

	entries, err := e.journal.ListEntries(ctx, e.filter)
	if err != nil {
		return "", err
	}
	entries = filterEntries(entries, a.Ticker, a.PositionType)

	var out any
	switch toolName {
	case "read_trading_journal":
		limit := a.Limit
		if limit <= 0 || limit > 200 {
			limit = promptEntryLimit
		}
		if len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}
		out = entries
	case "journal_metrics":
		out = ComputeMetrics(entries)
	default:
		return "", fmt.Errorf("unknown tool: %s", toolName)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (e *journalToolExecutor) webResearch(ctx context.Context, a journalToolArgs) (string, error) {
	if e.search == nil {
		return "", fmt.Errorf("unknown tool: web_research")
	}
	if strings.TrimSpace(a.Query) == "" {
		return "", fmt.Errorf("web_research needs a query")
	}
	results, err := e.search.Search(ctx, a.Query, a.NumResults)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(results)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func filterEntries(entries []models.JournalEntry, ticker, position string) []models.JournalEntry {
	if ticker == "" && position == "" {
		return entries
	}
	out := make([]models.JournalEntry, 0, len(entries))
	for _, e := range entries {
		if ticker != "" && !strings.EqualFold(e.Ticker, ticker) {
			continue
		}
		if position != "" && !strings.EqualFold(e.PositionType, position) {
			continue
		}
		out = append(out, e)
	}
	return out
}
