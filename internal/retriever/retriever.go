package retriever

import (
	"context"
	"fmt"
	"math"
	"strings"

	"askdocs/internal/domain"
	"askdocs/internal/embedding"
)

// Searcher is the read side of a vector index.
type Searcher interface {
	Len() int
	Dim() int
	Search(query []float32, k int) ([]domain.Fragment, error)
}

// Retrieve embeds query and returns the topK closest fragments from idx.
// Emptiness of the query and the index is checked before the embedder is
// called.
func Retrieve(ctx context.Context, query string, idx Searcher, topK int, emb domain.Embedder) ([]domain.Fragment, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if idx == nil || idx.Len() == 0 {
		return nil, domain.ErrEmptyIndex
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidArgument, topK)
	}
	vecs, _, err := embedding.EmbedChecked(ctx, emb, []string{query}, idx.Dim())
	if err != nil {
		return nil, err
	}
	return idx.Search(Normalize(vecs[0]), topK)
}

// Normalize returns v scaled to unit L2 length. The zero vector is
// returned unchanged. v is not modified.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, f := range v {
		out[i] = float32(float64(f) * inv)
	}
	return out
}
