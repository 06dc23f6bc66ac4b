// Package docstore keeps the normalized text of ingested documents so that
// search hits, which carry only offsets, can be turned into passages.
package docstore

import (
	"context"
	"fmt"
	"sort"

	"askdocs/internal/domain"
)

// Store persists documents by id.
type Store interface {
	Put(ctx context.Context, doc domain.Document) error
	// Get returns domain.ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (domain.Document, error)
	// List returns all documents ordered by ingestion time.
	List(ctx context.Context) ([]domain.Document, error)
	// Delete removes a document. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error
	Close() error
}

// Passage returns the text of doc covered by meta.
func Passage(doc domain.Document, meta domain.Metadata) (string, error) {
	runes := []rune(doc.Text)
	if meta.Start < 0 || meta.End > len(runes) || meta.Start >= meta.End {
		return "", fmt.Errorf("%w: chunk %d of document %s spans [%d,%d), text has %d characters",
			domain.ErrCorruptSnapshot, meta.ChunkID, doc.ID, meta.Start, meta.End, len(runes))
	}
	return string(runes[meta.Start:meta.End]), nil
}

// Resolve attaches text to every fragment, keeping order.
func Resolve(ctx context.Context, s Store, frags []domain.Fragment) ([]domain.Passage, error) {
	docs := make(map[string]domain.Document)
	out := make([]domain.Passage, 0, len(frags))
	for _, f := range frags {
		doc, ok := docs[f.DocumentID]
		if !ok {
			var err error
			doc, err = s.Get(ctx, f.DocumentID)
			if err != nil {
				return nil, fmt.Errorf("resolve chunk %d: %w", f.ChunkID, err)
			}
			docs[f.DocumentID] = doc
		}
		text, err := Passage(doc, f.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Passage{Fragment: f, Text: text})
	}
	return out, nil
}

func sortDocuments(docs []domain.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].IngestedAt.Equal(docs[j].IngestedAt) {
			return docs[i].IngestedAt.Before(docs[j].IngestedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}
