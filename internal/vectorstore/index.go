package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"askdocs/internal/domain"
	"askdocs/internal/logging"
)

// Index is an append-only, exact inner-product vector index. Vector i
// always pairs with metadata entry i. Stored vectors are expected to be
// L2-normalized so that the inner product is the cosine similarity.
//
// Add is exclusive; Search runs concurrently with other searches; Save
// holds the read lock for its whole duration so it never interleaves with
// Add.
type Index struct {
	mu       sync.RWMutex
	saveMu   sync.Mutex
	dim      int
	vectors  [][]float32
	metadata []domain.Metadata
	log      logrus.FieldLogger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger used for index lifecycle events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(x *Index) {
		if l != nil {
			x.log = l
		}
	}
}

// New creates an empty index of the given dimension.
func New(dim int, opts ...Option) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", domain.ErrInvalidConfig, dim)
	}
	x := &Index{dim: dim, log: logging.Discard()}
	for _, opt := range opts {
		opt(x)
	}
	x.log.WithField("embedding_dim", dim).Info("initialized vector index")
	return x, nil
}

// Dim returns the fixed embedding dimension.
func (x *Index) Dim() int { return x.dim }

// Len returns the number of stored vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Add appends a batch of vectors with their metadata. The batch is
// validated up front; on error nothing is appended. Inputs are copied.
func (x *Index) Add(vectors [][]float32, metadata []domain.Metadata) error {
	if len(vectors) != len(metadata) {
		return fmt.Errorf("%w: %d vectors, %d metadata entries", domain.ErrCountMismatch, len(vectors), len(metadata))
	}
	batch := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("%w: vector %d has %d values, want %d", domain.ErrDimensionMismatch, i, len(v), x.dim)
		}
		if !finite(v) {
			return fmt.Errorf("%w: vector %d contains NaN or Inf", domain.ErrInvalidArgument, i)
		}
		batch[i] = append([]float32(nil), v...)
	}
	meta := append([]domain.Metadata(nil), metadata...)

	x.mu.Lock()
	x.vectors = append(x.vectors, batch...)
	x.metadata = append(x.metadata, meta...)
	total := len(x.vectors)
	x.mu.Unlock()

	x.log.WithFields(logrus.Fields{"count": len(batch), "total_vectors": total}).Info("added embeddings to index")
	return nil
}

// Clone returns an independent index with the same contents. Adds to the
// clone do not show up in x. Stored vectors are never mutated, so they are
// shared rather than copied.
func (x *Index) Clone() *Index {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return &Index{
		dim:      x.dim,
		vectors:  append([][]float32(nil), x.vectors...),
		metadata: append([]domain.Metadata(nil), x.metadata...),
		log:      x.log,
	}
}

type scored struct {
	pos   int
	score float64
}

// Search returns the k best matches for query by descending inner
// product. Equal scores keep insertion order.
func (x *Index) Search(query []float32, k int) ([]domain.Fragment, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.vectors) == 0 {
		return nil, domain.ErrEmptyIndex
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d values, want %d", domain.ErrDimensionMismatch, len(query), x.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidArgument, k)
	}
	if !finite(query) {
		return nil, fmt.Errorf("%w: query contains NaN or Inf", domain.ErrInvalidArgument)
	}

	scores := make([]scored, len(x.vectors))
	for i, v := range x.vectors {
		scores[i] = scored{pos: i, score: dot(v, query)}
	}
	sort.Slice(scores, func(a, b int) bool {
		if scores[a].score != scores[b].score {
			return scores[a].score > scores[b].score
		}
		return scores[a].pos < scores[b].pos
	})
	if k > len(scores) {
		k = len(scores)
	}
	results := make([]domain.Fragment, k)
	for i := 0; i < k; i++ {
		s := scores[i]
		results[i] = domain.Fragment{Metadata: x.metadata[s.pos], Score: s.score}
	}
	x.log.WithFields(logrus.Fields{"top_k": k, "returned": len(results)}).Debug("vector search completed")
	return results, nil
}

// Save writes the full index state to store, replacing any previous
// snapshot there.
func (x *Index) Save(ctx context.Context, store SnapshotStore) error {
	x.saveMu.Lock()
	defer x.saveMu.Unlock()
	x.mu.RLock()
	defer x.mu.RUnlock()

	snap := &Snapshot{Dim: x.dim, Vectors: x.vectors, Metadata: x.metadata}
	if err := store.Write(ctx, snap); err != nil {
		return fmt.Errorf("save index to %s store: %w", store.Name(), err)
	}
	x.log.WithFields(logrus.Fields{"store": store.Name(), "total_vectors": len(x.vectors)}).Info("index snapshot saved")
	return nil
}

// Load rebuilds an index from the snapshot in store. The dimension is
// taken from the snapshot. It fails with domain.ErrNotFound when the store
// holds no snapshot.
func Load(ctx context.Context, store SnapshotStore, opts ...Option) (*Index, error) {
	snap, err := store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("load index from %s store: %w", store.Name(), err)
	}
	if err := snap.validate(); err != nil {
		return nil, fmt.Errorf("load index from %s store: %w", store.Name(), err)
	}
	x, err := New(snap.Dim, opts...)
	if err != nil {
		return nil, err
	}
	x.vectors = snap.Vectors
	x.metadata = snap.Metadata
	x.log.WithFields(logrus.Fields{"store": store.Name(), "total_vectors": len(x.vectors)}).Info("index snapshot loaded")
	return x, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func finite(v []float32) bool {
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return true
}
