package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"document-agent/internal/models"
)

// Asker is the TUI-facing subset of the document processor.
type Asker interface {
	AnswerQuestion(ctx context.Context, question string, topK int) (*models.Answer, error)
}

type exchange struct {
	question string
	answer   *models.Answer
	err      error
}

type answerMsg exchange

// Model is the Bubble Tea model for the interactive question loop.
type Model struct {
	asker    Asker
	ctx      context.Context
	topK     int
	source   string
	input    textinput.Model
	viewport viewport.Model
	history  []exchange
	status   string
	busy     bool
	ready    bool
}

// New creates the model. source is shown in the header.
func New(ctx context.Context, asker Asker, source string, topK int) Model {
	ti := textinput.New()
	ti.Prompt = "Your question: "
	ti.Placeholder = "type 'exit' or 'quit' to leave"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		asker:    asker,
		ctx:      ctx,
		topK:     topK,
		source:   source,
		input:    ti,
		viewport: viewport.New(80, 20),
		status:   "Document loaded and ready for questions!",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptStyle.GetFrameSize()
		reserved := 2 + 1 + 1 + bh // header, input, status, frame
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil
	case answerMsg:
		m.busy = false
		m.history = append(m.history, exchange(msg))
		if msg.err != nil {
			m.status = "An error occurred: " + msg.err.Error()
		} else {
			m.status = "Ready."
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			q := strings.TrimSpace(m.input.Value())
			switch {
			case q == "":
				return m, nil
			case isExit(q):
				m.status = "Goodbye!"
				return m, tea.Quit
			case m.busy:
				return m, nil
			}
			m.input.SetValue("")
			m.busy = true
			m.status = "Thinking..."
			return m, m.ask(q)
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) ask(question string) tea.Cmd {
	asker, ctx, topK := m.asker, m.ctx, m.topK
	return func() tea.Msg {
		answer, err := asker.AnswerQuestion(ctx, question, topK)
		return answerMsg{question: question, answer: answer, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Document Assistant") + "  " + dimStyle.Render(m.source)
	transcript := transcriptStyle.Render(m.viewport.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + m.input.View() + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return dimStyle.Render("Ask a question about the document.")
	}
	var b strings.Builder
	for i, ex := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("Q: " + ex.question))
		b.WriteString("\n")
		if ex.err != nil {
			b.WriteString(errorStyle.Render("Error: " + ex.err.Error()))
			continue
		}
		b.WriteString("Answer: " + ex.answer.Text)
		for j, h := range ex.answer.Hits {
			if j >= len(ex.answer.Context) {
				break
			}
			b.WriteString("\n")
			b.WriteString(dimStyle.Render(fmt.Sprintf("  [%d] score=%.3f %s", h.Position, h.Score, preview(ex.answer.Context[j], 80))))
		}
	}
	return b.String()
}

func isExit(s string) bool {
	s = strings.ToLower(s)
	return s == "exit" || s == "quit"
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
