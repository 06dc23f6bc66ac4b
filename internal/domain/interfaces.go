package domain

import (
	"context"
	"time"
)

// Document is a single normalized text ingested into the system.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Text       string    `json:"text"`
	Chunks     int       `json:"chunks"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Chunk is a window of a normalized document. Start and End are rune
// offsets into the normalized text, End exclusive.
type Chunk struct {
	ChunkID int
	Text    string
	Start   int
	End     int
}

// Metadata is the positional provenance stored next to every vector.
// Chunk text is not kept in the index.
type Metadata struct {
	DocumentID string `json:"document_id"`
	ChunkID    int    `json:"chunk_id"`
	Start      int    `json:"start_char_pos"`
	End        int    `json:"end_char_pos"`
}

// Fragment is a search hit: metadata plus cosine similarity.
type Fragment struct {
	Metadata
	Score float64 `json:"score"`
}

// Passage is a fragment resolved to its text.
type Passage struct {
	Fragment
	Text string `json:"text"`
}

// Chunker splits text into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(text string) ([]Chunk, error)
}

// Embedder converts free text into fixed-dimension vectors.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator turns an assembled prompt into an answer.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// TokenCounter must count tokens the way the Generator's model does.
type TokenCounter interface {
	Count(text string) int
}
