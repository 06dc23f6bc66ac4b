package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdocs/internal/domain"
	"askdocs/internal/prompt"
	"askdocs/internal/service"
)

type fakeAsk struct {
	answer *service.Answer
	err    error
	asked  []string
}

func (f *fakeAsk) Ask(_ context.Context, q string, _ int) (*service.Answer, error) {
	f.asked = append(f.asked, q)
	return f.answer, f.err
}

func passage(text string) domain.Passage {
	return domain.Passage{Text: text}
}

func typeQuery(m Model, q string) Model {
	for _, r := range q {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model)
}

func TestHighlightBestSentence(t *testing.T) {
	text := "Cats sleep a lot. Vectors are compared by cosine. Dogs bark."
	out := highlightBestSentence(text, "how are vectors compared")
	assert.Contains(t, out, "Cats sleep a lot.")
	assert.Contains(t, out, "Dogs bark.")
	assert.Contains(t, out, "Vectors are compared by cosine.")

	assert.Equal(t, "", highlightBestSentence("", "q"))
	assert.Equal(t, "One. Two.", highlightBestSentence("One.  Two.", ""))
}

func TestTokenOverlapScore(t *testing.T) {
	q := tokenSet("vector index")
	assert.Equal(t, 2, tokenOverlapScore(q, "The index stores each vector, vector after vector."))
	assert.Equal(t, 0, tokenOverlapScore(q, "Nothing relevant."))
}

func TestUpdate_AskAndCycle(t *testing.T) {
	svc := &fakeAsk{answer: &service.Answer{
		Intent:   prompt.QA,
		Text:     "forty two",
		Passages: []domain.Passage{passage("first."), passage("second."), passage("third.")},
	}}
	m := New(svc, "3 documents", 0)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = next.(Model)

	m = typeQuery(m, "why")
	require.Equal(t, []string{"why"}, svc.asked)
	assert.Equal(t, 0, m.cursor)
	assert.Contains(t, m.status, `"why"`)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	assert.Equal(t, 1, m.cursor)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(Model)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(Model)
	assert.Equal(t, 2, m.cursor)
	assert.Contains(t, m.renderCurrent(), "Source 3/3")
}

func TestUpdate_AskError(t *testing.T) {
	svc := &fakeAsk{err: errors.New("no document indexed yet")}
	m := New(svc, "", 0)
	m = typeQuery(m, "anything")
	assert.Equal(t, "Error: no document indexed yet", m.status)
	assert.Equal(t, "No answer yet.", m.renderCurrent())
}

func TestUpdate_Quit(t *testing.T) {
	m := New(&fakeAsk{}, "", 0)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
