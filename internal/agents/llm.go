// Package agents provides the model-backed collaborators of the journal:
// trade extraction, reply composition, and coaching reports.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/config"
	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
)

// LLMClient is the chat-completion surface the agents depend on.
type LLMClient interface {
	// Complete sends a prompt to the LLM and returns the response.
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteWithSystem sends a prompt with a system message.
	CompleteWithSystem(ctx context.Context, system, prompt string) (string, error)
	// CompleteJSON asks for a single JSON object in the response.
	CompleteJSON(ctx context.Context, system, prompt string) (string, error)
	// CompleteWithTools sends a prompt with tools and handles tool calls.
	CompleteWithTools(ctx context.Context, system, prompt string, tools []openai.Tool, executor ToolExecutorInterface) (string, error)
}

var errNotConfigured = errors.New("llm api key not configured")

// OpenAIClient implements LLMClient against any OpenAI-compatible endpoint.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIClient creates a client from the llm config section. Without an
// API key every call fails as model-unavailable.
func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	c := &OpenAIClient{model: cfg.Model, timeout: cfg.Timeout}
	if cfg.APIKey == "" {
		return c
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	c.client = openai.NewClientWithConfig(clientCfg)
	return c
}

// WithModel returns a copy of the client that talks to another model.
func (c *OpenAIClient) WithModel(model string) *OpenAIClient {
	if model == "" {
		return c
	}
	cp := *c
	cp.model = model
	return &cp
}

// Complete sends a prompt to the LLM and returns the response.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, "complete", openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
}

// CompleteWithSystem sends a prompt with system message to the LLM.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.chat(ctx, "complete", openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
}

// CompleteJSON is CompleteWithSystem in JSON-object response mode.
func (c *OpenAIClient) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.chat(ctx, "complete_json", openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
}

func (c *OpenAIClient) chat(ctx context.Context, op string, req openai.ChatCompletionRequest) (string, error) {
	if c.client == nil {
		return "", apperrors.NewGatewayError(op, errNotConfigured)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req.Model = c.model
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", apperrors.NewGatewayError(op, fmt.Errorf("openai completion failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewGatewayError(op, fmt.Errorf("no response from model"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// ToolCallLog represents a single tool call in the chain of thought.
type ToolCallLog struct {
	ToolName  string
	Arguments string
	Result    string
}

// ChainOfThought captures the model's tool calls and final answer.
type ChainOfThought struct {
	ToolCalls []ToolCallLog
	Response  string
}

// ToolExecutorInterface executes tool calls requested by the model.
type ToolExecutorInterface interface {
	ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) (string, error)
}

// maxToolRounds bounds the tool-call loop.
const maxToolRounds = 6

// CompleteWithTools sends a prompt with tools and returns the final response
// after executing any tool calls.
func (c *OpenAIClient) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []openai.Tool, executor ToolExecutorInterface) (string, error) {
	cot, err := c.CompleteWithToolsVerbose(ctx, systemPrompt, userPrompt, tools, executor)
	if err != nil {
		return "", err
	}
	return cot.Response, nil
}

// CompleteWithToolsVerbose sends a prompt with tools and returns the full chain of thought.
func (c *OpenAIClient) CompleteWithToolsVerbose(ctx context.Context, systemPrompt, userPrompt string, tools []openai.Tool, executor ToolExecutorInterface) (*ChainOfThought, error) {
	if c.client == nil {
		return nil, apperrors.NewGatewayError("complete_tools", errNotConfigured)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: userPrompt},
	}
	cot := &ChainOfThought{ToolCalls: make([]ToolCallLog, 0)}

	for i := 0; i < maxToolRounds; i++ {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    c.model,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return nil, apperrors.NewGatewayError("complete_tools", fmt.Errorf("openai completion failed: %w", err))
		}
		if len(resp.Choices) == 0 {
			return nil, apperrors.NewGatewayError("complete_tools", fmt.Errorf("no response from model"))
		}

		choice := resp.Choices[0]
		if len(choice.Message.ToolCalls) == 0 {
			cot.Response = choice.Message.Content
			return cot, nil
		}

		messages = append(messages, choice.Message)
		for _, toolCall := range choice.Message.ToolCalls {
			result, err := executor.ExecuteTool(ctx, toolCall.Function.Name, json.RawMessage(toolCall.Function.Arguments))
			if err != nil {
				result = fmt.Sprintf("Error executing tool %s: %v", toolCall.Function.Name, err)
			}
			cot.ToolCalls = append(cot.ToolCalls, ToolCallLog{
				ToolName:  toolCall.Function.Name,
				Arguments: toolCall.Function.Arguments,
				Result:    result,
			})
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: toolCall.ID,
			})
		}
	}

	return nil, fmt.Errorf("exceeded maximum tool call iterations")
}

// GetModel returns the model name.
func (c *OpenAIClient) GetModel() string {
	return c.model
}

// parseJSONObject decodes a model reply into a map. Code fences are
// stripped; anything that is not a JSON object comes back as {"raw": payload}.
func parseJSONObject(payload string) map[string]any {
	payload = stripFences(payload)
	if payload == "" {
		return map[string]any{}
	}
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil || out == nil {
		return map[string]any{"raw": payload}
	}
	return out
}

func stripFences(payload string) string {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, "```") {
		return payload
	}
	payload = strings.TrimPrefix(payload, "```")
	if nl := strings.IndexByte(payload, '\n'); nl >= 0 {
		// Drop the language tag line.
		payload = payload[nl+1:]
	}
	payload = strings.TrimSuffix(strings.TrimSpace(payload), "```")
	return strings.TrimSpace(payload)
}
