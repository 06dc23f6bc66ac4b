package hashing

import (
	"context"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"askdocs/internal/domain"
	"askdocs/internal/textproc"
)

// DefaultDimension is used when NewEmbedder is given a non-positive size.
const DefaultDimension = 512

// Embedder is a local feature-hashing vectorizer. Each non-stopword term is
// hashed into one of Dimension buckets with a hash-derived sign, weighted
// by its term frequency, and the result is L2-normalized. It needs no
// corpus preparation, so vectors stay comparable across ingests.
type Embedder struct {
	dimension int
	bigrams   bool
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithBigrams also hashes adjacent term pairs.
func WithBigrams() Option {
	return func(e *Embedder) { e.bigrams = true }
}

// NewEmbedder creates a hashing embedder with the given dimension.
func NewEmbedder(dimension int, opts ...Option) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	e := &Embedder{dimension: dimension}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hashing" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed vectorizes every text. A text without any term maps to the zero
// vector.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("hashing embed: %w", err)
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float32 {
	acc := make([]float64, e.dimension)
	terms := textproc.Terms(text)
	for i, term := range terms {
		e.add(acc, term)
		if e.bigrams && i > 0 {
			e.add(acc, terms[i-1]+" "+term)
		}
	}

	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	vec := make([]float32, e.dimension)
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (e *Embedder) add(acc []float64, feature string) {
	h := xxhash.Sum64String(feature)
	idx := h % uint64(e.dimension)
	if h>>63 == 1 {
		acc[idx]--
	} else {
		acc[idx]++
	}
}

var _ domain.Embedder = (*Embedder)(nil)
