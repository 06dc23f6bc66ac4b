package vectorstore

import (
	"context"
	"fmt"

	"askdocs/internal/domain"
)

// Snapshot is the complete persisted state of an Index.
type Snapshot struct {
	Dim      int
	Vectors  [][]float32
	Metadata []domain.Metadata
}

// SnapshotStore persists index snapshots. Write replaces the previous
// snapshot as a whole and must leave it intact when it fails. Read returns
// domain.ErrNotFound when nothing has been written yet.
type SnapshotStore interface {
	Name() string
	Write(ctx context.Context, snap *Snapshot) error
	Read(ctx context.Context) (*Snapshot, error)
}

func (s *Snapshot) validate() error {
	if s.Dim <= 0 {
		return fmt.Errorf("%w: dimension %d", domain.ErrCorruptSnapshot, s.Dim)
	}
	if len(s.Vectors) != len(s.Metadata) {
		return fmt.Errorf("%w: %d vectors, %d metadata entries", domain.ErrCorruptSnapshot, len(s.Vectors), len(s.Metadata))
	}
	for i, v := range s.Vectors {
		if len(v) != s.Dim {
			return fmt.Errorf("%w: vector %d has %d values, want %d", domain.ErrCorruptSnapshot, i, len(v), s.Dim)
		}
	}
	return nil
}
