// Package search implements the SearchClient port against a Perplexity-compatible
// chat completions endpoint.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/cotflow/internal/ports/secondary"
)

const (
	// DefaultBaseURL is the Perplexity API root.
	DefaultBaseURL = "https://api.perplexity.ai"
	// DefaultModel is the online search model.
	DefaultModel = "sonar"
	// DefaultTimeout bounds one Search call including internal retries.
	DefaultTimeout = 120 * time.Second
	// DefaultMaxRetries is the number of extra attempts after the first.
	DefaultMaxRetries = 3

	maxBodyBytes = 4 * 1024 * 1024
)

// ErrNoAPIKey is returned when the client is used without credentials.
var ErrNoAPIKey = errors.New("search provider: API key not configured")

// Config holds client settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	// BaseBackoff is the first retry pause; later pauses double.
	BaseBackoff time.Duration
}

// DefaultConfig returns settings for the public endpoint.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:      apiKey,
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		Timeout:     DefaultTimeout,
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: time.Second,
	}
}

// Client calls the search provider.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a search client.
func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.Named("search"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// statusError carries a non-2xx response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

// Search runs one query. Errors are prefixed with "search provider:" so the
// recovery classifier files them under SEARCH_PROVIDER_ERROR.
func (c *Client) Search(ctx context.Context, req secondary.SearchRequest) (*secondary.SearchResponse, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(req.Intent)},
			{Role: "user", Content: req.Query},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search provider: failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			pause := c.cfg.BaseBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("search provider: timeout waiting to retry: %w", ctx.Err())
			case <-time.After(pause):
			}
		}

		resp, err := c.do(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && se.code >= 400 && se.code < 500 && se.code != http.StatusTooManyRequests {
			break
		}
		if ctx.Err() != nil {
			break
		}
		c.log.Debug("search attempt failed",
			zap.Int("attempt", attempt+1),
			zap.String("query", req.Query),
			zap.Error(err))
	}
	return nil, fmt.Errorf("search provider: %w", lastErr)
}

func (c *Client) do(ctx context.Context, body []byte) (*secondary.SearchResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		msg := "rate limit exceeded (429)"
		if after := resp.Header.Get("Retry-After"); after != "" {
			msg += ", retry after " + after + " seconds"
		}
		return nil, &statusError{code: resp.StatusCode, body: msg}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("empty response: no choices returned")
	}

	return &secondary.SearchResponse{
		Content:   StripHTML(parsed.Choices[0].Message.Content),
		Citations: parsed.Citations,
	}, nil
}

func systemPrompt(intent string) string {
	base := "You are a research assistant. Answer concisely with verifiable facts and cite sources."
	if intent == "" {
		return base
	}
	return base + " Focus: " + intent
}

// Ensure Client implements the interface
var _ secondary.SearchClient = (*Client)(nil)
