package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"minirag/internal/composer"
	"minirag/internal/domain"
)

// QueryPort is the TUI-facing subset of the pipeline.
type QueryPort interface {
	Query(ctx context.Context, question string, topK int) (domain.QueryResult, error)
}

type queryDoneMsg struct {
	query  string
	result domain.QueryResult
	err    error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	service   QueryPort
	topK      int
	timeout   time.Duration
	input     textinput.Model
	viewport  viewport.Model
	renderer  *glamour.TermRenderer
	result    *domain.QueryResult
	cited     map[int]bool
	header    string
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

// New creates a new TUI model instance. header is shown under the title.
func New(service QueryPort, topK int, header string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		topK:     topK,
		timeout:  2 * time.Minute,
		input:    ti,
		viewport: vp,
		header:   header,
		status:   "Ready. Up/Down cycles citations, Ctrl+C quits.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) runQuery(q string) tea.Cmd {
	svc, topK, timeout := m.service, m.topK, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := svc.Query(ctx, q, topK)
		return queryDoneMsg{query: q, result: res, err: err}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		rw, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		if r, err := glamour.NewTermRenderer(
			glamour.WithStylePath("dark"),
			glamour.WithWordWrap(max(20, msg.Width-rw-2)),
		); err == nil {
			m.renderer = r
		}
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case queryDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.result = nil
		} else {
			res := msg.result
			m.result = &res
			m.cursor = 0
			m.lastQuery = msg.query
			m.cited = map[int]bool{}
			for _, n := range composer.CitedNumbers(res.Answer, len(res.Citations)) {
				m.cited[n] = true
			}
			m.status = fmt.Sprintf("%d sources for %q in %s", res.RetrievedCount, msg.query, res.Latency.Round(time.Millisecond))
		}
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.busy {
				m.busy = true
				m.status = fmt.Sprintf("Searching for %q...", q)
				return m, m.runQuery(q)
			}
		case "down":
			if n := m.citationCount(); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up":
			if n := m.citationCount(); n > 0 {
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

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("minirag")
	sub := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.header)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + sub + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) citationCount() int {
	if m.result == nil {
		return 0
	}
	return len(m.result.Citations)
}

func (m Model) renderCurrent() string {
	if m.result == nil {
		return "No answer yet."
	}
	answer := m.result.Answer
	if m.renderer != nil {
		if out, err := m.renderer.Render(answer); err == nil {
			answer = strings.TrimRight(out, "\n")
		}
	}
	if len(m.result.Citations) == 0 {
		return answer
	}
	c := m.result.Citations[m.cursor]
	mark := ""
	if m.cited[c.Number] {
		mark = citedStyle.Render(" cited")
	}
	title := fmt.Sprintf("[%d] %d/%d%s", c.Number, m.cursor+1, len(m.result.Citations), mark)
	if src := strings.TrimSpace(c.Title + " " + c.Source); src != "" {
		title += "  " + src
	}
	body := highlightBestSentence(c.Text, m.lastQuery)
	return answer + "\n\n" + title + "\n\n" + body
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	citedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
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
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
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
