package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"askdocs/internal/domain"
	"askdocs/internal/service"
	"askdocs/internal/textproc"
)

// AskPort is the TUI-facing subset of the service.
type AskPort interface {
	Ask(ctx context.Context, question string, topK int) (*service.Answer, error)
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	service   AskPort
	topK      int
	input     textinput.Model
	viewport  viewport.Model
	answer    *service.Answer
	summary   string
	status    string
	cursor    int
	ready     bool
	lastQuery string
}

// New creates a new TUI model instance. topK <= 0 uses the service default.
func New(service AskPort, summary string, topK int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{service: service, topK: topK, input: ti, viewport: vp, summary: summary, status: "Loaded. Type a question."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2 // header + summary
		totalFooterLines := 1 // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				ans, err := m.service.Ask(context.Background(), q, m.topK)
				if err != nil {
					m.status = "Error: " + err.Error()
					m.answer = nil
				} else {
					m.status = fmt.Sprintf("Answer for %q (%s)", q, ans.Intent)
					m.answer = ans
					m.cursor = 0
					m.lastQuery = q
				}
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "down":
			if n := m.passageCount(); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up":
			if n := m.passageCount(); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("askdocs")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) passageCount() int {
	if m.answer == nil {
		return 0
	}
	return len(m.answer.Passages)
}

func (m Model) renderCurrent() string {
	if m.answer == nil {
		return "No answer yet."
	}
	out := answerStyle.Render(m.answer.Text)
	if len(m.answer.Passages) == 0 {
		return out + "\n\nNo passages fit the context budget."
	}
	p := m.answer.Passages[m.cursor]
	out += "\n\n" + passageTitle(p, m.cursor, len(m.answer.Passages))
	if m.answer.Dropped > 0 {
		out += fmt.Sprintf("  (%d dropped)", m.answer.Dropped)
	}
	return out + "\n\n" + highlightBestSentence(p.Text, m.lastQuery)
}

func passageTitle(p domain.Passage, i, n int) string {
	return fmt.Sprintf("Source %d/%d  score=%.3f  chars %d-%d", i+1, n, p.Score, p.Start, p.End)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	answerStyle    = lipgloss.NewStyle().Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := textproc.Sentences(text)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := tokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

func tokenSet(s string) map[string]struct{} {
	tokens := textproc.Tokens(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range textproc.Tokens(sentence) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
