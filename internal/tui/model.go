package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"handbook/internal/domain"
	"handbook/internal/service"
)

// ChatPort is the TUI-facing subset of the chat service.
type ChatPort interface {
	Chat(ctx context.Context, q domain.QueryContext) (*service.Reply, error)
}

// Options tune the chat session.
type Options struct {
	Concise      bool
	HistoryTurns int
	Timeout      time.Duration
}

type replyMsg struct {
	question string
	reply    *service.Reply
	err      error
}

// Model is the Bubble Tea model for the terminal chat client.
type Model struct {
	service     ChatPort
	opts        Options
	input       textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model
	history     []domain.Turn
	sources     []domain.RetrievedChunk
	lastQuery   string
	status      string
	cursor      int
	showSources bool
	waiting     bool
	ready       bool
}

// New creates a new TUI model instance.
func New(svc ChatPort, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about a course, e.g. admission requirements for C04379"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Minute
	}
	return Model{
		service:  svc,
		opts:     opts,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Ready. Enter asks, Tab toggles sources, Up/Down cycles them.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and reply events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil
	case replyMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + describe(msg.err)
			if n := len(m.history); n > 0 {
				m.history = m.history[:n-1]
			}
			m.refresh()
			return m, nil
		}
		m.history = append(m.history, domain.Turn{Text: msg.reply.Answer, Type: domain.TurnBot})
		m.sources = msg.reply.Sources
		m.cursor = 0
		m.lastQuery = msg.question
		m.status = fmt.Sprintf("%d sources", len(m.sources))
		if msg.reply.Match.Found() {
			m.status += fmt.Sprintf(", filtered to %s (%s)", msg.reply.Match.Code, msg.reply.Match.Source)
		}
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil
	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			prior := m.recent()
			m.history = append(m.history, domain.Turn{Text: q, Type: domain.TurnUser})
			m.input.SetValue("")
			m.waiting = true
			m.showSources = false
			m.status = "Thinking..."
			m.refresh()
			m.viewport.GotoBottom()
			return m, tea.Batch(m.ask(q, prior), m.spinner.Tick)
		case "tab":
			m.showSources = !m.showSources
			m.refresh()
			return m, nil
		case "down":
			if m.showSources && len(m.sources) > 0 {
				m.cursor = (m.cursor + 1) % len(m.sources)
				m.refresh()
				return m, nil
			}
		case "up":
			if m.showSources && len(m.sources) > 0 {
				m.cursor = (m.cursor - 1 + len(m.sources)) % len(m.sources)
				m.refresh()
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string, history []domain.Turn) tea.Cmd {
	svc, opts := m.service, m.opts
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
		defer cancel()
		reply, err := svc.Chat(ctx, domain.QueryContext{
			Message:          question,
			History:          history,
			Concise:          opts.Concise,
			UsePreprocessing: true,
		})
		return replyMsg{question: question, reply: reply, err: err}
	}
}

// recent returns a copy of the last HistoryTurns turns.
func (m Model) recent() []domain.Turn {
	h := m.history
	if n := m.opts.HistoryTurns; n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]domain.Turn(nil), h...)
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Course Handbook Chat")
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.waiting {
		status = m.spinner.View() + " " + status
	}
	status = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(status)
	body := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + body + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	if m.showSources {
		m.viewport.SetContent(m.renderCurrentSource())
		return
	}
	m.viewport.SetContent(m.renderTranscript())
}

func (m Model) renderTranscript() string {
	if len(m.history) == 0 {
		return "No messages yet."
	}
	var b strings.Builder
	for i, t := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if t.Type == domain.TurnUser {
			b.WriteString(userStyle.Render("You: "))
		} else {
			b.WriteString(botStyle.Render("Bot: "))
		}
		b.WriteString(t.Text)
	}
	return b.String()
}

func (m Model) renderCurrentSource() string {
	if len(m.sources) == 0 {
		return "No sources yet."
	}
	r := m.sources[m.cursor]
	title := fmt.Sprintf("Source %d/%d  %s %s  score=%.3f",
		m.cursor+1, len(m.sources), r.Chunk.CourseCode, r.Chunk.Type, r.Score)
	if r.Chunk.CourseName != "" {
		title += "\n" + r.Chunk.CourseName
	}
	return title + "\n\n" + highlightBestSentence(r.Chunk.Text, m.lastQuery)
}

func describe(err error) string {
	switch kind := domain.KindOf(err); kind {
	case "", domain.KindValidation, domain.KindEmptyResult:
		return err.Error()
	default:
		return fmt.Sprintf("%s: %v", kind, err)
	}
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?\n]+[.!?\n])`)
)

// highlightBestSentence emphasizes the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text+"\n", -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	bestIdx, bestScore := -1, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	out := make([]string, 0, len(sentences))
	for i, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if i == bestIdx {
			s = highlightStyle.Render(s)
		}
		out = append(out, s)
	}
	return strings.Join(out, " ")
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
