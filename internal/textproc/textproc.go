// Package textproc holds the word and sentence splitting shared by the
// local embedder, the extractive generator and the TUI highlighter.
package textproc

import (
	"regexp"
	"strings"
)

var (
	tokenPattern    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
	sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]*`)
	stopwords       = makeStopwords()
)

// Tokens lower-cases text and returns its words in order, stopwords
// included.
func Tokens(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Terms is Tokens without stopwords.
func Terms(text string) []string {
	raw := Tokens(text)
	out := raw[:0]
	for _, t := range raw {
		if IsStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TermSet returns the distinct non-stopword terms of text.
func TermSet(text string) map[string]struct{} {
	terms := Terms(text)
	m := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		m[t] = struct{}{}
	}
	return m
}

// IsStopword reports whether a lower-cased token is a stopword.
func IsStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}

// Sentences splits text on sentence punctuation and newlines. Returned
// sentences are trimmed and never empty.
func Sentences(text string) []string {
	raw := sentencePattern.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func makeStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
