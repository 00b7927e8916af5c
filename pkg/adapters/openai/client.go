// Package openai implements ports.Model over an OpenAI-compatible chat-completions endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/aretw0/autopilot/pkg/ports"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultModel      = "gpt-4o-mini"
	defaultTimeout    = 120 * time.Second
	defaultMaxRetries = 2
)

// ErrEmptyReply is returned when the provider answers without any choice content.
var ErrEmptyReply = errors.New("model returned no content")

// Client is a minimal chat-completions client: one user message in, one reply out.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	system      string
	temperature *float64
	timeout     time.Duration
	maxRetries  int

	sdk openai.Client
}

type Option func(*Client)

// WithBaseURL sets the API root (for example http://localhost:11434/v1).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAPIKey sets the bearer key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithModel sets the model name.
func WithModel(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.model = name
		}
	}
}

// WithSystemPrompt prepends a system message to every request.
func WithSystemPrompt(s string) Option {
	return func(c *Client) {
		c.system = s
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = &t
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries sets how often the SDK retries 429 and 5xx answers.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		timeout:    defaultTimeout,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sdk = openai.NewClient(
		option.WithBaseURL(c.baseURL+"/"),
		option.WithAPIKey(c.apiKey),
		option.WithRequestTimeout(c.timeout),
		option.WithMaxRetries(c.maxRetries),
	)
	return c
}

var _ ports.Model = (*Client)(nil)

// Complete sends prompt as a user message and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{Model: openai.ChatModel(c.model)}
	if c.system != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(c.system))
	}
	params.Messages = append(params.Messages, openai.UserMessage(prompt))
	if c.temperature != nil {
		params.Temperature = openai.Float(*c.temperature)
	}

	completion, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("chat status %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("chat call: %w", err)
	}
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return "", ErrEmptyReply
	}
	return completion.Choices[0].Message.Content, nil
}
