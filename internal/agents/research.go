package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/pkg/utils"
)

// DefaultSearchURL is the SerpAPI search endpoint.
const DefaultSearchURL = "https://serpapi.com/search.json"

// researchResultLimit bounds results per query.
const researchResultLimit = 10

// WebSearchClient defines the interface for web search operations.
type WebSearchClient interface {
	// Search performs a web search and returns results.
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// SearchResult represents a single organic search result.
type SearchResult struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

// SearchError is a non-OK search API response.
type SearchError struct {
	StatusCode int
	Message    string
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search API error %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the call may succeed when retried.
func (e *SearchError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// SerpAPIClient searches the web through SerpAPI.
type SerpAPIClient struct {
	apiKey  string
	engine  string
	baseURL string
	http    *http.Client
	retry   utils.RetryConfig
}

// SearchOption configures a SerpAPIClient.
type SearchOption func(*SerpAPIClient)

// WithSearchURL overrides the endpoint.
func WithSearchURL(u string) SearchOption {
	return func(c *SerpAPIClient) { c.baseURL = u }
}

// WithSearchRetry overrides the retry policy.
func WithSearchRetry(cfg utils.RetryConfig) SearchOption {
	return func(c *SerpAPIClient) { c.retry = cfg }
}

// NewSerpAPIClient creates a search client. An empty engine means "google".
func NewSerpAPIClient(apiKey, engine string, opts ...SearchOption) *SerpAPIClient {
	if engine == "" {
		engine = "google"
	}
	retry := utils.DefaultRetryConfig()
	retry.ShouldRetry = retrySearch
	c := &SerpAPIClient{
		apiKey:  apiKey,
		engine:  engine,
		baseURL: DefaultSearchURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		retry:   retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func retrySearch(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var searchErr *SearchError
	if errors.As(err, &searchErr) {
		return searchErr.Temporary()
	}
	return true
}

type serpResponse struct {
	Error          string         `json:"error"`
	OrganicResults []SearchResult `json:"organic_results"`
}

// Search returns up to maxResults organic results for query.
func (c *SerpAPIClient) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if maxResults <= 0 || maxResults > researchResultLimit {
		maxResults = 5
	}
	params := url.Values{}
	params.Set("engine", c.engine)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(maxResults))
	params.Set("api_key", c.apiKey)
	endpoint := c.baseURL + "?" + params.Encode()

	results, err := utils.RetryWithResult(ctx, c.retry, func() ([]SearchResult, error) {
		return c.fetch(ctx, endpoint)
	})
	if err != nil {
		return nil, c.scrub(err)
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

func (c *SerpAPIClient) fetch(ctx context.Context, endpoint string) ([]SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out serpResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &SearchError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding search response: %w", decodeErr)
	}
	if out.Error != "" {
		return nil, &SearchError{StatusCode: resp.StatusCode, Message: out.Error}
	}
	return out.OrganicResults, nil
}

// scrub keeps the API key out of errors; *url.Error carries the request URL.
func (c *SerpAPIClient) scrub(err error) error {
	if c.apiKey == "" {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = strings.ReplaceAll(urlErr.URL, url.QueryEscape(c.apiKey), "<redacted>")
		urlErr.URL = strings.ReplaceAll(urlErr.URL, c.apiKey, "<redacted>")
	}
	return err
}
