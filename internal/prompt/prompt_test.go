package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdocs/internal/domain"
	"askdocs/internal/tokenizer"
)

func defaultAssembler(t *testing.T) *Assembler {
	t.Helper()
	c, err := NewClassifier(DefaultRules())
	require.NoError(t, err)
	a, err := NewAssembler(c, nil)
	require.NoError(t, err)
	return a
}

func passages(texts ...string) []domain.Passage {
	out := make([]domain.Passage, len(texts))
	for i, s := range texts {
		out[i] = domain.Passage{Fragment: domain.Fragment{Metadata: domain.Metadata{ChunkID: i}}, Text: s}
	}
	return out
}

func TestClassify_DefaultRules(t *testing.T) {
	c, err := NewClassifier(DefaultRules())
	require.NoError(t, err)

	cases := map[string]Intent{
		"Summarize this document":         Summarization,
		"Give me an OVERVIEW":              Summarization,
		"What is entropy?":                 Definition,
		"Please explain the second law":    Definition,
		"List the topics mentioned":        Extractive,
		"Why did it fail?":                 QA,
		"What is the summary of chapter 2": Summarization,
		"":                                 QA,
	}
	for q, want := range cases {
		assert.Equal(t, want, c.Classify(q), q)
	}
}

func TestClassify_CustomRulesKeepOrder(t *testing.T) {
	c, err := NewClassifier([]Rule{
		{Intent: Extractive, Keywords: []string{"Which"}},
		{Intent: Definition, Keywords: []string{"which is"}},
	})
	require.NoError(t, err)
	assert.Equal(t, Extractive, c.Classify("which is faster?"))
	assert.Equal(t, QA, c.Classify("summarize it"))
}

func TestNewClassifier_Invalid(t *testing.T) {
	_, err := NewClassifier([]Rule{{Intent: "joke", Keywords: []string{"haha"}}})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	_, err = NewClassifier([]Rule{{Intent: QA}})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	_, err = NewClassifier([]Rule{{Intent: QA, Keywords: []string{"  "}}})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestParseIntent(t *testing.T) {
	in, err := ParseIntent(" Definition ")
	require.NoError(t, err)
	assert.Equal(t, Definition, in)
	_, err = ParseIntent("poem")
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestAssemble_Format(t *testing.T) {
	a := defaultAssembler(t)
	res, err := a.Assemble("Why did it fail?", passages("  alpha beta \n", "gamma"), 1000, tokenizer.Words{})
	require.NoError(t, err)

	want := DefaultTemplates()[QA] +
		"Context:\nalpha beta\n\ngamma\n\n" +
		"Question:\nWhy did it fail?\n\n" +
		"Answer:"
	assert.Equal(t, want, res.Prompt)
	assert.Equal(t, QA, res.Intent)
	assert.Equal(t, 2, res.Packed)
	assert.Equal(t, 0, res.Dropped)
	assert.Contains(t, res.Prompt, "I don't know")
}

func TestAssemble_NoPassages(t *testing.T) {
	a := defaultAssembler(t)
	res, err := a.Assemble("What is entropy?", nil, 1000, tokenizer.Words{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTemplates()[Definition]+"Context:\n\n\nQuestion:\nWhat is entropy?\n\nAnswer:", res.Prompt)
	assert.Equal(t, 0, res.Packed)
}

func TestAssemble_StrictGreedyPrefix(t *testing.T) {
	a := defaultAssembler(t)
	q := "Why did it fail?"
	counter := tokenizer.Words{}
	base := counter.Count(DefaultTemplates()[QA] + q)

	res, err := a.Assemble(q, passages(
		"one two three",
		"a b c d e f g h i j",
		"tiny",
	), base+4, counter)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Packed)
	assert.Equal(t, 2, res.Dropped)
	assert.Equal(t, base+3, res.Used)
	assert.NotContains(t, res.Prompt, "tiny", "a later smaller passage must not be packed")
}

func TestAssemble_NeverExceedsBudget(t *testing.T) {
	a := defaultAssembler(t)
	counter := tokenizer.Heuristic{CharsPerToken: 4}
	q := "List the topics mentioned in the report"
	base := counter.Count(DefaultTemplates()[Extractive] + q)

	ps := passages(
		strings.Repeat("x", 40),
		strings.Repeat("y", 7),
		strings.Repeat("z", 100),
		"w",
		strings.Repeat("v", 13),
	)
	for budget := base; budget <= base+80; budget++ {
		res, err := a.Assemble(q, ps, budget, counter)
		require.NoError(t, err)
		assert.LessOrEqual(t, res.Used, budget)

		sum := base
		for _, p := range ps[:res.Packed] {
			sum += counter.Count(p.Text)
		}
		assert.Equal(t, sum, res.Used)
		assert.Equal(t, len(ps), res.Packed+res.Dropped)
		if res.Packed < len(ps) {
			assert.Greater(t, res.Used+counter.Count(ps[res.Packed].Text), budget)
		}
	}
}

func TestAssemble_Errors(t *testing.T) {
	a := defaultAssembler(t)
	_, err := a.Assemble(" \t", nil, 100, tokenizer.Words{})
	require.ErrorIs(t, err, domain.ErrEmptyQuestion)
	_, err = a.Assemble("Why?", nil, 0, tokenizer.Words{})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = a.Assemble("Why?", nil, 10, nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestNewAssembler_TemplateOverrides(t *testing.T) {
	c, err := NewClassifier(DefaultRules())
	require.NoError(t, err)

	a, err := NewAssembler(c, map[Intent]string{QA: "Be brief.\n\n"})
	require.NoError(t, err)
	res, err := a.Assemble("Why?", nil, 100, tokenizer.Words{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Prompt, "Be brief.\n\nContext:"))

	_, err = NewAssembler(c, map[Intent]string{"poem": "x"})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	_, err = NewAssembler(c, map[Intent]string{QA: "  "})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	_, err = NewAssembler(nil, nil)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}
