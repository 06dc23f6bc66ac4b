package embedding

import (
	"context"
	"fmt"

	"askdocs/internal/domain"
)

// Embedder converts free text into fixed-dimension vectors. It must return
// one vector per input, in input order.
type Embedder = domain.Embedder

// EmbedChecked embeds texts and verifies the response shape: one vector per
// text, all of the same length, matching want when want > 0. It returns the
// observed dimension.
func EmbedChecked(ctx context.Context, e Embedder, texts []string, want int) ([][]float32, int, error) {
	vecs, err := e.Embed(ctx, texts)
	if err != nil {
		return nil, 0, fmt.Errorf("%s embed: %w", e.Name(), err)
	}
	if len(vecs) != len(texts) {
		return nil, 0, fmt.Errorf("%w: %s returned %d vectors for %d texts", domain.ErrCountMismatch, e.Name(), len(vecs), len(texts))
	}
	dim := want
	for i, v := range vecs {
		if dim <= 0 {
			dim = len(v)
		}
		if len(v) != dim || dim == 0 {
			return nil, 0, fmt.Errorf("%w: %s vector %d has %d values, want %d", domain.ErrDimensionMismatch, e.Name(), i, len(v), dim)
		}
	}
	return vecs, dim, nil
}
