package tui

import (
	"context"
	"fmt"
	"strings"

	"article-rag/internal/models"
	"article-rag/internal/session"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SessionPort is the TUI-facing subset of the session controller.
type SessionPort interface {
	Process(ctx context.Context, state session.State) (session.ProcessReport, error)
	Ask(ctx context.Context, state session.State, question string) (session.State, *models.Answer, error)
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusWarn
	statusError
)

// focus indexes 0..MaxURLs-1 are the URL inputs, MaxURLs is the question
const questionFocus = session.MaxURLs

type processDoneMsg struct {
	report session.ProcessReport
	err    error
}

type answerMsg struct {
	state  session.State
	answer *models.Answer
	err    error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx         context.Context
	service     SessionPort
	state       session.State
	urls        [session.MaxURLs]textinput.Model
	question    textinput.Model
	viewport    viewport.Model
	focus       int
	answer      *models.Answer
	status      string
	statusKind  statusKind
	busy        bool
	showHistory bool
	ready       bool
}

// New creates a new TUI model instance.
func New(ctx context.Context, service SessionPort) Model {
	vp := viewport.New(0, 0)
	// letters belong to the inputs, only paging keys scroll the result box
	vp.KeyMap = viewport.KeyMap{
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
	}
	m := Model{
		ctx:      ctx,
		service:  service,
		viewport: vp,
		status:   "Enter up to three article URLs and press ctrl+p to process them.",
	}
	for i := range m.urls {
		ti := textinput.New()
		ti.Prompt = fmt.Sprintf("URL %d > ", i+1)
		ti.Placeholder = "https://..."
		ti.CharLimit = 0
		m.urls[i] = ti
	}
	q := textinput.New()
	q.Prompt = "> "
	q.Placeholder = "Ask a question about the articles and press Enter"
	q.CharLimit = 0
	m.question = q
	m.urls[0].Focus()
	return m
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// State returns the current session state
func (m Model) State() session.State { return m.state }

// Update handles key, window and action result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + session.MaxURLs + 2 + qh + 2 // header, inputs, hint and status, question, help
		m.viewport.Width = max(20, msg.Width-4)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil

	case processDoneMsg:
		m.busy = false
		m.handleProcessed(msg)
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.setErr(msg.err)
		} else {
			m.state.History = msg.state.History
			m.answer = msg.answer
			m.question.Reset()
			m.setStatus(statusInfo, fmt.Sprintf("Answered from %d source(s).", len(msg.answer.Sources)))
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d", "esc":
			return m, tea.Quit
		case "tab", "down":
			return m, m.setFocus((m.focus + 1) % (session.MaxURLs + 1))
		case "shift+tab", "up":
			return m, m.setFocus((m.focus + session.MaxURLs) % (session.MaxURLs + 1))
		case "ctrl+p":
			return m, m.process()
		case "ctrl+l":
			// a pending answer would bring the cleared history back
			if m.busy {
				m.setStatus(statusWarn, "Still working, please wait.")
				return m, nil
			}
			m.state = session.Clear(m.state)
			m.answer = nil
			m.setStatus(statusInfo, "Chat history cleared.")
			m.refresh()
			return m, nil
		case "ctrl+o", "f2":
			m.showHistory = !m.showHistory
			m.refresh()
			return m, nil
		case "enter":
			if m.focus == questionFocus {
				return m, m.ask()
			}
			return m, m.process()
		}
	}

	var cmd tea.Cmd
	if m.focus == questionFocus {
		m.question, cmd = m.question.Update(msg)
	} else {
		m.urls[m.focus], cmd = m.urls[m.focus].Update(msg)
	}
	var vcmd tea.Cmd
	m.viewport, vcmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, vcmd)
}

func (m *Model) setFocus(i int) tea.Cmd {
	m.focus = i
	for j := range m.urls {
		m.urls[j].Blur()
	}
	m.question.Blur()
	if i == questionFocus {
		return m.question.Focus()
	}
	return m.urls[i].Focus()
}

func (m *Model) process() tea.Cmd {
	if m.busy {
		m.setStatus(statusWarn, "Still working, please wait.")
		return nil
	}
	for i := range m.urls {
		m.state = session.SetURL(m.state, i, m.urls[i].Value())
	}
	m.busy = true
	m.setStatus(statusInfo, "Processing URLs: loading, splitting and embedding...")

	ctx, svc, state := m.ctx, m.service, m.state
	return func() tea.Msg {
		report, err := svc.Process(ctx, state)
		return processDoneMsg{report: report, err: err}
	}
}

func (m *Model) ask() tea.Cmd {
	q := strings.TrimSpace(m.question.Value())
	if q == "" {
		return nil
	}
	if m.busy {
		m.setStatus(statusWarn, "Still working, please wait.")
		return nil
	}
	m.busy = true
	m.setStatus(statusInfo, "Thinking...")

	ctx, svc, state := m.ctx, m.service, m.state
	return func() tea.Msg {
		next, answer, err := svc.Ask(ctx, state, q)
		return answerMsg{state: next, answer: answer, err: err}
	}
}

func (m *Model) handleProcessed(msg processDoneMsg) {
	var failed []string
	for _, r := range msg.report.Results {
		if r.Err != nil {
			failed = append(failed, r.Err.Error())
		}
	}

	if msg.err != nil {
		m.setErr(msg.err)
		if len(failed) > 0 {
			m.status += " (" + strings.Join(failed, "; ") + ")"
		}
		return
	}

	status := fmt.Sprintf("Processed %d document(s) into %d chunks.", msg.report.Documents, msg.report.Chunks)
	kind := statusInfo
	if len(failed) > 0 {
		status += fmt.Sprintf(" Skipped %d URL(s): %s", len(failed), strings.Join(failed, "; "))
		kind = statusWarn
	}
	m.setStatus(kind, status)
	m.refresh()
}

func (m *Model) setErr(err error) {
	if models.IsWarning(err) {
		m.setStatus(statusWarn, "Warning: "+err.Error())
		return
	}
	m.setStatus(statusError, "Error: "+err.Error())
}

func (m *Model) setStatus(kind statusKind, s string) {
	m.statusKind = kind
	m.status = s
}

func (m *Model) refresh() {
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(m.renderContent()))
	m.viewport.GotoTop()
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("Article Research Assistant"))
	b.WriteString("\n\n")
	for i := range m.urls {
		b.WriteString(m.urls[i].View())
		b.WriteString("\n")
	}
	b.WriteString(hintStyle.Render("ctrl+p or enter: process URLs"))
	b.WriteString("\n")
	b.WriteString(m.statusStyle().Render(m.status))
	b.WriteString("\n")
	b.WriteString(resultBoxStyle.Render(m.viewport.View()))
	b.WriteString("\n")
	b.WriteString(queryBoxStyle.Render(m.question.View()))
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("tab: next field • enter: ask • ctrl+l: clear history • ctrl+o: toggle history • esc: quit"))
	return b.String()
}

func (m Model) statusStyle() lipgloss.Style {
	switch m.statusKind {
	case statusWarn:
		return warnStyle
	case statusError:
		return errorStyle
	default:
		return infoStyle
	}
}

func (m Model) renderContent() string {
	var b strings.Builder
	if m.answer == nil {
		b.WriteString(hintStyle.Render("No answer yet."))
	} else {
		b.WriteString(labelStyle.Render("Answer"))
		b.WriteString("\n")
		b.WriteString(m.answer.Text)
		if len(m.answer.Sources) > 0 {
			b.WriteString("\n\n")
			b.WriteString(labelStyle.Render("Sources"))
			for _, src := range m.answer.Sources {
				b.WriteString("\n" + src)
			}
		}
	}

	b.WriteString("\n\n")
	if !m.showHistory {
		b.WriteString(hintStyle.Render(fmt.Sprintf("▸ Chat history (%d turns, ctrl+o to expand)", len(m.state.History))))
		return b.String()
	}
	b.WriteString(labelStyle.Render(fmt.Sprintf("▾ Chat history (%d turns)", len(m.state.History))))
	for _, turn := range m.state.History {
		b.WriteString("\n")
		b.WriteString(speakerStyle.Render(turn.Speaker.String() + ":"))
		b.WriteString(" " + turn.Text)
	}
	return b.String()
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	labelStyle     = lipgloss.NewStyle().Bold(true).Underline(true)
	speakerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	hintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
