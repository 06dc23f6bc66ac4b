package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"askdocs/internal/domain"
)

// Config configures the OpenAI-compatible chat generator.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Client generates answers with a chat completion model.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewClient creates a chat generator using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrInvalidConfig, cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	apiCfg := openai.DefaultConfig(key)
	apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Name returns the identifier of this generator implementation.
func (c *Client) Name() string { return "openai" }

// Generate sends prompt as a single user message and returns the first
// choice unchanged.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

var _ domain.Generator = (*Client)(nil)
