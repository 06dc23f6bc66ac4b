package extractive

import (
	"context"
	"math"
	"sort"
	"strings"

	"askdocs/internal/domain"
	"askdocs/internal/generator"
	"askdocs/internal/textproc"
)

// DefaultMaxSentences bounds the answer length.
const DefaultMaxSentences = 3

// IDontKnow is returned when the prompt carries no context.
const IDontKnow = "I don't know"

// Generator answers offline by ranking context sentences by word
// frequency and overlap with the question.
type Generator struct {
	maxSentences int
}

// New creates an extractive generator returning at most maxSentences
// sentences.
func New(maxSentences int) *Generator {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	return &Generator{maxSentences: maxSentences}
}

// Name returns the identifier of this generator implementation.
func (g *Generator) Name() string { return "extractive" }

// Generate extracts the best sentences of the prompt's context block. A
// prompt without the assembled layout is treated as all context.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	contextBlock, question, ok := generator.SplitPrompt(prompt)
	if !ok {
		contextBlock = prompt
	}
	sentences := textproc.Sentences(contextBlock)
	if len(sentences) == 0 {
		return IDontKnow, nil
	}

	// Compute word frequencies
	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range textproc.Terms(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	qterms := textproc.TermSet(question)

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		terms := textproc.Terms(sent)
		score := 0.0
		hits := 0
		for _, tok := range terms {
			score += freq[tok]
			if _, ok := qterms[tok]; ok {
				hits++
			}
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(terms)); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = pair{i, score + float64(hits)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := g.maxSentences
	if n > len(scores) {
		n = len(scores)
	}
	// Keep original order among selected
	selected := make([]int, n)
	for i := 0; i < n; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, n)
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " "), nil
}

var _ domain.Generator = (*Generator)(nil)
