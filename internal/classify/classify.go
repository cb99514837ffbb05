// Package classify provides the client for the classification gateway.
//
// The gateway is an external model-serving process hosting the intent,
// sentiment, emotion and NER models. The engine treats it as a black box
// returning labels, confidences and top-k alternatives; a gateway failure is
// turn-fatal and surfaced to the caller.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/amparo-ai/amparo/internal/models"
)

// DefaultTimeout bounds a single classification round trip.
const DefaultTimeout = 10 * time.Second

// Result bundles the per-turn classifier outputs.
type Result struct {
	Intent    models.Classification `json:"intent"`
	Sentiment models.Classification `json:"sentiment"`
	Emotion   models.Classification `json:"emotion"`
	Entities  []models.Entity       `json:"entities"`
}

// Gateway is the classification collaborator consumed by the orchestrator.
type Gateway interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Opts holds configuration for the gateway client.
type Opts struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option configures the gateway client.
type Option func(*Opts)

// WithBaseURL sets the gateway base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient injects a custom HTTP client (used by tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client calls the classification gateway over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a gateway client. The base URL falls back to the
// CLASSIFIER_URL environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("CLASSIFIER_URL")
	}
	if cfg.BaseURL == "" {
		slog.Error("Classify NewClient: base URL not set")
		return nil, fmt.Errorf("classifier base URL not set")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	slog.Debug("Classify client initialized", "base_url", cfg.BaseURL, "timeout", cfg.Timeout)
	return &Client{baseURL: cfg.BaseURL, http: httpClient}, nil
}

type classifyRequest struct {
	Text string `json:"text"`
}

// Classify sends the turn text to the gateway and decodes the combined
// classification result.
func (c *Client) Classify(ctx context.Context, text string) (Result, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("Classify request failed", "error", err)
		return Result{}, fmt.Errorf("classification gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Classify gateway returned non-OK status", "status", resp.StatusCode)
		return Result{}, fmt.Errorf("classification gateway returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Error("Classify response decode failed", "error", err)
		return Result{}, fmt.Errorf("failed to decode classification response: %w", err)
	}
	slog.Debug("Classify succeeded", "intent", result.Intent.Label, "score", result.Intent.Score, "entities", len(result.Entities))
	return result, nil
}
