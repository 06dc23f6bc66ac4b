// Package tokenizer provides token counters used to budget prompt size.
// Pick the counter that tracks the generator's own tokenization most
// closely; an undercounting counter lets prompts overflow the model window.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"askdocs/internal/domain"
)

// DefaultCharsPerToken approximates BPE tokenizers on English text.
const DefaultCharsPerToken = 4

// Heuristic counts ceil(runes / CharsPerToken).
type Heuristic struct {
	CharsPerToken int
}

// Count returns the estimated token count of text.
func (h Heuristic) Count(text string) int {
	cpt := h.CharsPerToken
	if cpt <= 0 {
		cpt = DefaultCharsPerToken
	}
	n := utf8.RuneCountInString(text)
	return (n + cpt - 1) / cpt
}

// Words counts whitespace-separated tokens.
type Words struct{}

// Count returns the number of whitespace-separated fields in text.
func (Words) Count(text string) int { return len(strings.Fields(text)) }

// New returns the counter registered under name ("heuristic", "words" or
// "tiktoken"). model selects the tiktoken encoding and is ignored by the
// others.
func New(name string, charsPerToken int, model string) (domain.TokenCounter, error) {
	switch name {
	case "tiktoken":
		t, err := NewTiktoken(model)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "heuristic", "":
		return Heuristic{CharsPerToken: charsPerToken}, nil
	case "words":
		return Words{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown tokenizer %q", domain.ErrInvalidConfig, name)
	}
}
