// Package anthropic implements ports.BackendClient for the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	APIVersion     = "2023-06-01"
	// APIKeyEnv is the environment variable holding the API key.
	APIKeyEnv = "ANTHROPIC_API_KEY"
)

// ErrAuthentication is returned for rejected credentials. It is never retried.
var ErrAuthentication = errors.New("authentication failed")

// Client calls POST /v1/messages.
type Client struct {
	apiKey         string
	baseURL        string
	httpClient     *http.Client
	maxTries       uint
	initialBackoff time.Duration
	logger         *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithRetries sets the number of attempts and the first backoff interval.
func WithRetries(tries uint, initial time.Duration) Option {
	return func(c *Client) {
		c.maxTries = tries
		c.initialBackoff = initial
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:         apiKey,
		baseURL:        DefaultBaseURL,
		httpClient:     &http.Client{},
		maxTries:       3,
		initialBackoff: 100 * time.Millisecond,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the request, retrying rate limits, server errors and
// transport failures with exponential backoff.
func (c *Client) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.Completion, error) {
	body, err := json.Marshal(messagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Temperature: req.Temperature,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0

	attempt := 0
	return backoff.Retry(ctx, func() (*ports.Completion, error) {
		attempt++
		out, err := c.do(ctx, body)
		if err != nil && !permanent(err) {
			c.logger.Debug("Backend call failed", "attempt", attempt, "err", err)
		}
		return out, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
}

func permanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

func (c *Client) do(ctx context.Context, body []byte) (*ports.Completion, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err))
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrUpstreamFailure, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, data)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: decode body: %v", domain.ErrInvalidResponse, err))
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &ports.Completion{
		Text:       text.String(),
		Model:      parsed.Model,
		StopReason: parsed.StopReason,
		Usage: domain.Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
		},
	}, nil
}

func statusError(status int, body []byte) error {
	msg := http.StatusText(status)
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		msg = e.Error.Type + ": " + e.Error.Message
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return backoff.Permanent(fmt.Errorf("%w: %w: %s", domain.ErrUpstreamFailure, ErrAuthentication, msg))
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUpstreamFailure, status, msg)
	}
	return backoff.Permanent(fmt.Errorf("%w: status %d: %s", domain.ErrUpstreamFailure, status, msg))
}
