package anthropic

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

	"github.com/chetcli/chet/internal/llm"
	"go.uber.org/zap"
)

// apiVersion is the anthropic-version header sent with every request.
const apiVersion = "2023-06-01"

// DefaultBaseURL is the production Messages API endpoint.
const DefaultBaseURL = "https://api.anthropic.com"

// Client is the Anthropic Messages API provider. It owns authentication,
// retry, and streaming; the agent loop only sees the Provider interface.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	retry      RetryConfig
	log        *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithRetryConfig overrides the default retry schedule.
func WithRetryConfig(config RetryConfig) Option {
	return func(c *Client) { c.retry = config }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithLogger attaches a logger for debug output.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient constructs a Messages API client.
func NewClient(apiKey string, baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &Client{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		retry:      DefaultRetryConfig(),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Name identifies the provider.
func (c *Client) Name() string {
	return "anthropic"
}

// Stream sends a streaming Messages API request and returns the event
// stream. Transient failures are retried here, per attempt, up to the
// configured budget; callers observe only the final stream or terminal
// error. Failures after the stream is established are not retried.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &llm.APIError{
			Kind:    llm.ErrKindBadRequest,
			Message: fmt.Sprintf("serialize request: %v", err),
		}
	}

	for attempt := 0; ; attempt++ {
		stream, err := c.send(ctx, body)
		if err == nil {
			return stream, nil
		}
		if !retryable(err) || attempt >= c.retry.MaxRetries {
			return nil, err
		}

		var retryAfter time.Duration
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) {
			retryAfter = apiErr.RetryAfter
		}
		delay := calculateDelay(c.retry, attempt, retryAfter)
		c.log.Debug("retrying request",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// send performs a single request attempt.
func (c *Client) send(ctx context.Context, body []byte) (llm.Stream, error) {
	url := c.baseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &llm.APIError{Kind: llm.ErrKindNetwork, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	c.log.Debug("POST", zap.String("url", url))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var urlErr interface{ Timeout() bool }
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, &llm.APIError{Kind: llm.ErrKindTimeout, Message: err.Error()}
		}
		return nil, &llm.APIError{Kind: llm.ErrKindNetwork, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, classifyStatus(resp.StatusCode, errBody, parseRetryAfter(resp.Header))
	}

	return newMessageStream(ctx, resp.Body, c.log), nil
}

// classifyStatus maps an HTTP error response to a typed API error.
func classifyStatus(status int, body []byte, retryAfter time.Duration) *llm.APIError {
	message := serverMessage(body)
	switch {
	case status == 401:
		return &llm.APIError{Kind: llm.ErrKindAuth, Status: status, Message: message}
	case status == 400:
		return &llm.APIError{Kind: llm.ErrKindBadRequest, Status: status, Message: message}
	case status == 429:
		return &llm.APIError{Kind: llm.ErrKindRateLimited, Status: status, Message: message, RetryAfter: retryAfter}
	case status == 529:
		return &llm.APIError{Kind: llm.ErrKindOverloaded, Status: status, Message: message, RetryAfter: retryAfter}
	case status >= 500:
		return &llm.APIError{Kind: llm.ErrKindServer, Status: status, Message: message, RetryAfter: retryAfter}
	default:
		return &llm.APIError{Kind: llm.ErrKindServer, Status: status, Message: message}
	}
}

// serverMessage extracts the error message from an API error body, falling
// back to the raw body text.
func serverMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(body))
}
