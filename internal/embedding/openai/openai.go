package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"askdocs/internal/domain"
)

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
type Client struct {
	api         *openai.Client
	model       string
	batchSize   int
	concurrency int
	maxRetries  int

	mu        sync.RWMutex
	dimension int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Timeout     time.Duration
	BatchSize   int
	Concurrency int
	MaxRetries  int
	// Dimension pins the expected vector length. Zero means it is learned
	// from the first response.
	Dimension int
}

// NewClient creates a new embeddings client using the provided configuration.
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
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	apiCfg := openai.DefaultConfig(key)
	apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		maxRetries:  cfg.MaxRetries,
		dimension:   cfg.Dimension,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Dimension returns the dimensionality of the produced embedding vectors,
// or zero before the first response when it was not configured.
func (c *Client) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

// Embed splits texts into batches and embeds them with bounded
// concurrency. Results keep input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start := start
		g.Go(func() error {
			vecs, err := c.embedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, retryDelay(attempt-1)); err != nil {
				return nil, err
			}
		}
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.model),
			Input: batch,
		})
		if err != nil {
			lastErr = err
			if retryable(err) {
				continue
			}
			return nil, fmt.Errorf("openai embeddings failed: %w", err)
		}
		return c.collect(resp, len(batch))
	}
	return nil, fmt.Errorf("openai embeddings failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) collect(resp openai.EmbeddingResponse, n int) ([][]float32, error) {
	if len(resp.Data) != n {
		return nil, fmt.Errorf("%w: openai returned %d embeddings for %d inputs", domain.ErrCountMismatch, len(resp.Data), n)
	}
	vecs := make([][]float32, n)
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= n || vecs[d.Index] != nil {
			return nil, fmt.Errorf("%w: openai returned bad embedding index %d", domain.ErrCountMismatch, d.Index)
		}
		if err := c.checkDimension(len(d.Embedding)); err != nil {
			return nil, err
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

func (c *Client) checkDimension(got int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == 0 {
		c.dimension = got
	}
	if got != c.dimension {
		return fmt.Errorf("%w: openai returned %d values, want %d", domain.ErrDimensionMismatch, got, c.dimension)
	}
	return nil
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

var _ domain.Embedder = (*Client)(nil)
