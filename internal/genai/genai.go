// Package genai provides GenAI-enhanced operations using the OpenAI API.
//
// It wraps the chat completion endpoint behind a small interface so that the
// safety gate, flow validator and reply decoder can be tested with fakes.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default generation parameters.
const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-4o-mini"
	// DefaultMaxTokens bounds completion length when callers do not override it.
	DefaultMaxTokens = 200
	// DefaultTemperature is the default sampling temperature.
	DefaultTemperature = 0.6
)

// Params are per-call generation parameters.
type Params struct {
	MaxTokens   int64
	Temperature float64
}

// ClientInterface defines the chat completion operations consumed by the
// decision engine. Implementations must be safe for concurrent use.
type ClientInterface interface {
	// GenerateWithMessages runs one chat completion with default parameters.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	// GenerateWithParams runs one chat completion with explicit parameters.
	GenerateWithParams(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, params Params) (string, error)
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	client openai.Client
	model  string
}

// NewClient initializes a GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable; a missing key is an error so callers
// can decide to run with LLM features disabled.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OPENAI_MODEL")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	slog.Debug("GenAI client initialized", "model", cfg.Model)
	return &Client{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}, nil
}

// GenerateWithMessages runs one chat completion with default parameters.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return c.GenerateWithParams(ctx, messages, Params{MaxTokens: DefaultMaxTokens, Temperature: DefaultTemperature})
}

// GenerateWithParams runs one chat completion with explicit parameters.
func (c *Client) GenerateWithParams(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, params Params) (string, error) {
	if params.MaxTokens <= 0 {
		params.MaxTokens = DefaultMaxTokens
	}
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		MaxTokens:   openai.Int(params.MaxTokens),
		Temperature: openai.Float(params.Temperature),
	})
	if err != nil {
		slog.Debug("GenAI chat completion failed", "error", err, "model", c.model)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}
