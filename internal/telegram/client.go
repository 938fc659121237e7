package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/logging"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/performance"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/security"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/pkg/utils"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// MaxDownloadBytes is the largest file the Bot API serves to bots.
const MaxDownloadBytes = 20 * 1024 * 1024

// APIError is a non-OK Bot API response.
type APIError struct {
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram API error %d: %s", e.StatusCode, e.Description)
}

// Temporary reports whether the call may succeed when retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client talks to the Telegram Bot API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *performance.RateLimiter
	retry   utils.RetryConfig
	logger  zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg utils.RetryConfig) ClientOption {
	return func(c *Client) { c.retry = cfg }
}

// WithRateLimiter overrides the outbound rate limiter.
func WithRateLimiter(l *performance.RateLimiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// NewClient creates a Bot API client. An empty baseURL uses DefaultBaseURL.
func NewClient(token, baseURL string, logger zerolog.Logger, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	retry := utils.DefaultRetryConfig()
	retry.ShouldRetry = shouldRetry

	c := &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: performance.NewRateLimiter(30, 30),
		retry:   retry,
		logger:  logger.With().Str("component", "telegram_client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

// SendMessage sends a plain-text message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := call[json.RawMessage](ctx, c, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}

// GetFile resolves a file id to a downloadable path.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	file, err := call[File](ctx, c, "getFile", map[string]string{"file_id": fileID})
	if err != nil {
		return nil, fmt.Errorf("resolving telegram file: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("resolving telegram file: no file_path for %s", fileID)
	}
	return &file, nil
}

// DownloadFile fetches the content of a file id.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.FileSize > MaxDownloadBytes {
		return nil, fmt.Errorf("telegram file %s is %d bytes, over the %d byte limit", fileID, file.FileSize, MaxDownloadBytes)
	}

	fileURL := c.baseURL + "/file/bot" + c.token + "/" + strings.TrimLeft(file.FilePath, "/")
	data, err := utils.RetryWithResult(ctx, c.retry, func() ([]byte, error) {
		return c.download(ctx, fileURL)
	})
	if err != nil {
		return nil, fmt.Errorf("downloading telegram file: %w", c.scrub(err))
	}
	return data, nil
}

func (c *Client) download(ctx context.Context, fileURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Description: http.StatusText(resp.StatusCode)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxDownloadBytes {
		return nil, fmt.Errorf("telegram file exceeds %d bytes", MaxDownloadBytes)
	}
	return data, nil
}

// call invokes a Bot API method with a JSON body.
func call[T any](ctx context.Context, c *Client, method string, body any) (T, error) {
	var zero T
	payload, err := json.Marshal(body)
	if err != nil {
		return zero, fmt.Errorf("marshaling %s payload: %w", method, err)
	}
	endpoint := c.baseURL + "/bot" + c.token + "/" + method

	start := time.Now()
	result, err := utils.RetryWithResult(ctx, c.retry, func() (T, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, err
		}
		return do[T](ctx, c.http, endpoint, payload)
	})
	err = c.scrub(err)
	logging.LogAPICall(logging.WithOperation(c.logger, method), http.MethodPost, method, time.Since(start), err)
	return result, err
}

func do[T any](ctx context.Context, hc *http.Client, endpoint string, payload []byte) (T, error) {
	var zero T
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return zero, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	var out apiResponse[T]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return zero, &APIError{StatusCode: resp.StatusCode, Description: http.StatusText(resp.StatusCode)}
		}
		return zero, fmt.Errorf("decoding telegram response: %w", err)
	}
	if !out.OK {
		code := out.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return zero, &APIError{StatusCode: code, Description: out.Description}
	}
	return out.Result, nil
}

// scrub removes the bot token from errors, which *url.Error embeds via the
// request URL.
func (c *Client) scrub(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = strings.ReplaceAll(urlErr.URL, c.token, "<redacted>")
		return urlErr
	}
	msg := security.MaskSensitive(err.Error())
	if c.token != "" {
		msg = strings.ReplaceAll(msg, c.token, "<redacted>")
	}
	if msg == err.Error() {
		return err
	}
	return errors.New(msg)
}
