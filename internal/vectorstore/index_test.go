package vectorstore

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdocs/internal/domain"
)

func meta(doc string, id int) domain.Metadata {
	return domain.Metadata{DocumentID: doc, ChunkID: id, Start: id * 10, End: id*10 + 10}
}

func TestNew_InvalidDimension(t *testing.T) {
	_, err := New(0)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	_, err = New(-3)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestSearch_Example(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add(
		[][]float32{{1, 0}, {0, 1}, {0.707, 0.707}},
		[]domain.Metadata{meta("d", 0), meta("d", 1), meta("d", 2)},
	))

	res, err := idx.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 0, res[0].ChunkID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	assert.Equal(t, 2, res[1].ChunkID)
	assert.InDelta(t, 0.707, res[1].Score, 1e-6)
}

func TestSearch_EmptyIndex(t *testing.T) {
	idx, err := New(3)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
	_, err = idx.Search([]float32{1, 0, 0}, 1)
	require.ErrorIs(t, err, domain.ErrEmptyIndex)
}

func TestSearch_Validation(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{{1, 0}}, []domain.Metadata{meta("d", 0)}))

	_, err = idx.Search([]float32{1, 0, 0}, 1)
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)
	_, err = idx.Search([]float32{1, 0}, 0)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = idx.Search([]float32{float32(math.NaN()), 0}, 1)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSearch_KLargerThanIndex(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add(
		[][]float32{{1, 0}, {0, 1}, {0.6, 0.8}},
		[]domain.Metadata{meta("d", 0), meta("d", 1), meta("d", 2)},
	))
	res, err := idx.Search([]float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, res, 3)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}
	assert.Equal(t, []int{1, 2, 0}, chunkIDs(res))
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)
	vecs := [][]float32{{0, 1}, {1, 0}, {0, 1}, {1, 0}, {1, 0}}
	metas := make([]domain.Metadata, len(vecs))
	for i := range metas {
		metas[i] = meta("d", i)
	}
	require.NoError(t, idx.Add(vecs, metas))

	res, err := idx.Search([]float32{1, 0}, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4, 0}, chunkIDs(res))
}

func TestAdd_Validation(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)

	err = idx.Add([][]float32{{1, 0}}, nil)
	require.ErrorIs(t, err, domain.ErrCountMismatch)

	err = idx.Add([][]float32{{1, 0}, {1, 0, 0}}, []domain.Metadata{meta("d", 0), meta("d", 1)})
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, 0, idx.Len(), "failed batch must not be partially applied")

	err = idx.Add([][]float32{{1, 0}, {float32(math.Inf(1)), 0}}, []domain.Metadata{meta("d", 0), meta("d", 1)})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, 0, idx.Len())

	require.NoError(t, idx.Add(nil, nil))
	assert.Equal(t, 0, idx.Len())
}

func TestAdd_CopiesInput(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)
	v := []float32{1, 0}
	require.NoError(t, idx.Add([][]float32{v}, []domain.Metadata{meta("d", 0)}))
	v[0] = -1

	res, err := idx.Search([]float32{1, 0}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
}

func TestClone_IsIndependent(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{{1, 0}}, []domain.Metadata{meta("a", 0)}))

	c := idx.Clone()
	require.NoError(t, c.Add([][]float32{{0, 1}}, []domain.Metadata{meta("a", 1)}))
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 2, c.Dim())

	res, err := c.Search([]float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res[0].ChunkID)
}

type memStore struct {
	snap *Snapshot
	fail error
}

func (m *memStore) Name() string { return "mem" }

func (m *memStore) Write(_ context.Context, s *Snapshot) error {
	if m.fail != nil {
		return m.fail
	}
	m.snap = &Snapshot{
		Dim:      s.Dim,
		Vectors:  append([][]float32(nil), s.Vectors...),
		Metadata: append([]domain.Metadata(nil), s.Metadata...),
	}
	return nil
}

func (m *memStore) Read(context.Context) (*Snapshot, error) {
	if m.snap == nil {
		return nil, domain.ErrNotFound
	}
	return m.snap, nil
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	idx, err := New(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add(
		[][]float32{{1, 0}, {0, 1}, {0.707, 0.707}},
		[]domain.Metadata{meta("a", 0), meta("a", 1), meta("b", 0)},
	))

	store := &memStore{}
	require.NoError(t, idx.Save(ctx, store))

	loaded, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Dim())
	assert.Equal(t, 3, loaded.Len())

	want, err := idx.Search([]float32{0.6, 0.8}, 3)
	require.NoError(t, err)
	got, err := loaded.Search([]float32{0.6, 0.8}, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(context.Background(), &memStore{})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoad_RejectsMisalignedSnapshot(t *testing.T) {
	store := &memStore{snap: &Snapshot{
		Dim:      2,
		Vectors:  [][]float32{{1, 0}},
		Metadata: []domain.Metadata{meta("a", 0), meta("a", 1)},
	}}
	_, err := Load(context.Background(), store)
	require.ErrorIs(t, err, domain.ErrCorruptSnapshot)
}

func TestSave_PropagatesStoreError(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)
	boom := errors.New("disk full")
	err = idx.Save(context.Background(), &memStore{fail: boom})
	require.ErrorIs(t, err, boom)
}

func TestConcurrentAddAndSearch(t *testing.T) {
	idx, err := New(4)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{{1, 0, 0, 0}}, []domain.Metadata{meta("seed", 0)}))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				v := make([]float32, 4)
				v[(w+i)%4] = 1
				_ = idx.Add([][]float32{v}, []domain.Metadata{meta("w", i)})
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				res, err := idx.Search([]float32{0, 1, 0, 0}, 5)
				if err != nil {
					t.Error(err)
					return
				}
				for j := 1; j < len(res); j++ {
					if res[j].Score > res[j-1].Score {
						t.Error("results out of order")
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 201, idx.Len())
}

func TestEncodeDecodeVectors(t *testing.T) {
	vecs := [][]float32{{0, 1.5, -2.25}, {3.75, 0, 1}}
	dim, got, err := DecodeVectors(EncodeVectors(3, vecs))
	require.NoError(t, err)
	assert.Equal(t, 3, dim)
	assert.Equal(t, vecs, got)

	_, _, err = DecodeVectors([]byte("short"))
	require.ErrorIs(t, err, domain.ErrCorruptSnapshot)

	data := EncodeVectors(3, vecs)
	_, _, err = DecodeVectors(data[:len(data)-4])
	require.ErrorIs(t, err, domain.ErrCorruptSnapshot)

	data[0] = 'X'
	_, _, err = DecodeVectors(data)
	require.ErrorIs(t, err, domain.ErrCorruptSnapshot)
}

func chunkIDs(res []domain.Fragment) []int {
	ids := make([]int, len(res))
	for i, r := range res {
		ids[i] = r.ChunkID
	}
	return ids
}
