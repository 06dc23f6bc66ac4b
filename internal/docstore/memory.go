package docstore

import (
	"context"
	"fmt"
	"sync"

	"askdocs/internal/domain"
)

// MemoryStore keeps documents in a map. Contents are lost on exit.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]domain.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]domain.Document)}
}

func (s *MemoryStore) Put(ctx context.Context, doc domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	return doc, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]domain.Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d)
	}
	s.mu.RUnlock()
	sortDocuments(out)
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
