package chunker

import (
	"fmt"
	"strings"

	"askdocs/internal/domain"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

// WindowChunker splits normalized text into fixed-size, overlapping
// character windows.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker validates the window parameters. overlap must be
// strictly smaller than size, otherwise the window would never advance.
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", domain.ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be less than chunk size %d", domain.ErrInvalidConfig, overlap, size)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Size returns the window length in characters.
func (c *WindowChunker) Size() int { return c.size }

// Overlap returns the number of characters shared by consecutive windows.
func (c *WindowChunker) Overlap() int { return c.overlap }

// Chunk normalizes text and cuts it into windows. Offsets are rune offsets
// into the normalized text. Windows that are blank after trimming are
// skipped and do not consume a chunk id.
func (c *WindowChunker) Chunk(text string) ([]domain.Chunk, error) {
	runes := []rune(Normalize(text))
	n := len(runes)
	if n == 0 {
		return nil, fmt.Errorf("%w: nothing to chunk after normalization", domain.ErrEmptyInput)
	}
	step := c.size - c.overlap
	var chunks []domain.Chunk
	for start := 0; start < n; start += step {
		end := start + c.size
		if end > n {
			end = n
		}
		content := string(runes[start:end])
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, domain.Chunk{
				ChunkID: len(chunks),
				Text:    content,
				Start:   start,
				End:     end,
			})
		}
		// A later window would lie entirely inside this one.
		if end == n {
			break
		}
	}
	return chunks, nil
}

// Normalize unifies line endings, trims every line and drops empty lines.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
