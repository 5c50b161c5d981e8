package tui

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"article-rag/internal/fetcher"
	"article-rag/internal/models"
	"article-rag/internal/session"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort implements SessionPort for testing.
type fakePort struct {
	processed []session.State
	asked     []string

	report     session.ProcessReport
	processErr error
	answerErr  error
}

func (f *fakePort) Process(_ context.Context, state session.State) (session.ProcessReport, error) {
	f.processed = append(f.processed, state)
	return f.report, f.processErr
}

func (f *fakePort) Ask(_ context.Context, state session.State, question string) (session.State, *models.Answer, error) {
	f.asked = append(f.asked, question)
	if f.answerErr != nil {
		return state, nil, f.answerErr
	}
	answer := &models.Answer{
		Question: question,
		Text:     "Rates were cut by 25 basis points.",
		Sources:  []string{"https://news.example.com/rates"},
	}
	history := append(append([]models.Turn(nil), state.History...),
		models.Turn{Speaker: models.User, Text: question},
		models.Turn{Speaker: models.Assistant, Text: answer.Text},
	)
	return session.State{History: history, URLInputs: state.URLInputs}, answer, nil
}

func keyMsg(t tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: t} }

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func newReadyModel(t *testing.T, port SessionPort) Model {
	t.Helper()
	m := New(context.Background(), port)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

func TestNew(t *testing.T) {
	m := New(context.Background(), &fakePort{})

	assert.Equal(t, 0, m.focus)
	assert.True(t, m.urls[0].Focused())
	assert.False(t, m.question.Focused())
	assert.NotNil(t, m.Init())
	assert.Equal(t, "Loading...", m.View())
}

func TestUpdate_FocusCycle(t *testing.T) {
	m := newReadyModel(t, &fakePort{})

	for want := 1; want <= questionFocus; want++ {
		m, _ = update(t, m, keyMsg(tea.KeyTab))
		assert.Equal(t, want, m.focus)
	}
	assert.True(t, m.question.Focused())

	m, _ = update(t, m, keyMsg(tea.KeyTab))
	assert.Equal(t, 0, m.focus)
	assert.True(t, m.urls[0].Focused())

	m, _ = update(t, m, keyMsg(tea.KeyShiftTab))
	assert.Equal(t, questionFocus, m.focus)
	assert.False(t, m.urls[0].Focused())
}

func TestUpdate_TypingGoesToFocusedInput(t *testing.T) {
	m := newReadyModel(t, &fakePort{})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("https://a.example")})
	assert.Equal(t, "https://a.example", m.urls[0].Value())
	assert.Empty(t, m.urls[1].Value())
}

func TestUpdate_Process(t *testing.T) {
	port := &fakePort{report: session.ProcessReport{Documents: 2, Chunks: 5}}
	m := newReadyModel(t, port)
	m.urls[0].SetValue("https://news.example.com/rates")
	m.urls[2].SetValue("https://news.example.com/football")

	m, cmd := update(t, m, keyMsg(tea.KeyCtrlP))
	require.NotNil(t, cmd)
	assert.True(t, m.busy)

	msg := cmd()
	require.Len(t, port.processed, 1)
	assert.Equal(t, [session.MaxURLs]string{"https://news.example.com/rates", "", "https://news.example.com/football"},
		port.processed[0].URLInputs)

	m, _ = update(t, m, msg)
	assert.False(t, m.busy)
	assert.Equal(t, statusInfo, m.statusKind)
	assert.Contains(t, m.status, "2 document(s) into 5 chunks")
}

func TestUpdate_ProcessWithEnterOnURL(t *testing.T) {
	port := &fakePort{}
	m := newReadyModel(t, port)

	_, cmd := update(t, m, keyMsg(tea.KeyEnter))
	require.NotNil(t, cmd)
	_, ok := cmd().(processDoneMsg)
	assert.True(t, ok)
}

func TestUpdate_ProcessPartialFailure(t *testing.T) {
	port := &fakePort{report: session.ProcessReport{
		Documents: 1,
		Chunks:    3,
		Results: []fetcher.Result{
			{URL: "https://ok.example"},
			{URL: "https://down.example", Err: fmt.Errorf("https://down.example: %w", models.ErrFetchFailure)},
		},
	}}
	m := newReadyModel(t, port)

	m, cmd := update(t, m, keyMsg(tea.KeyCtrlP))
	m, _ = update(t, m, cmd())

	assert.Equal(t, statusWarn, m.statusKind)
	assert.Contains(t, m.status, "Skipped 1 URL(s)")
	assert.Contains(t, m.status, "down.example")
}

func TestUpdate_ProcessErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want statusKind
	}{
		{"no documents", models.ErrEmptyContent, statusWarn},
		{"index build", fmt.Errorf("%w: embedder offline", models.ErrIndexBuild), statusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newReadyModel(t, &fakePort{processErr: tt.err})

			m, cmd := update(t, m, keyMsg(tea.KeyCtrlP))
			m, _ = update(t, m, cmd())

			assert.Equal(t, tt.want, m.statusKind)
			assert.Contains(t, m.status, tt.err.Error())
		})
	}
}

func TestUpdate_BusyIgnoresSecondAction(t *testing.T) {
	port := &fakePort{}
	m := newReadyModel(t, port)

	m, cmd := update(t, m, keyMsg(tea.KeyCtrlP))
	require.NotNil(t, cmd)

	m, second := update(t, m, keyMsg(tea.KeyCtrlP))
	assert.Nil(t, second)
	assert.Equal(t, statusWarn, m.statusKind)
}

func askQuestion(t *testing.T, m Model, q string) (Model, tea.Cmd) {
	t.Helper()
	m, _ = update(t, m, keyMsg(tea.KeyShiftTab))
	require.Equal(t, questionFocus, m.focus)
	m.question.SetValue(q)
	return update(t, m, keyMsg(tea.KeyEnter))
}

func TestUpdate_Ask(t *testing.T) {
	port := &fakePort{}
	m := newReadyModel(t, port)

	m, cmd := askQuestion(t, m, "  What happened to rates?  ")
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, []string{"What happened to rates?"}, port.asked)
	require.Len(t, m.State().History, 2)
	assert.Equal(t, models.User, m.State().History[0].Speaker)
	assert.Empty(t, m.question.Value())
	assert.Equal(t, statusInfo, m.statusKind)

	view := m.View()
	assert.Contains(t, view, "Rates were cut by 25 basis points.")
	assert.Contains(t, view, "https://news.example.com/rates")
}

func TestUpdate_AskBlankDoesNothing(t *testing.T) {
	port := &fakePort{}
	m := newReadyModel(t, port)

	_, cmd := askQuestion(t, m, "   ")
	assert.Nil(t, cmd)
	assert.Empty(t, port.asked)
}

func TestUpdate_AskErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want statusKind
	}{
		{"missing index", models.ErrIndexMissing, statusWarn},
		{"model failure", fmt.Errorf("%w: timeout", models.ErrModelCall), statusError},
		{"other", errors.New("boom"), statusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newReadyModel(t, &fakePort{answerErr: tt.err})

			m, cmd := askQuestion(t, m, "Who won?")
			m, _ = update(t, m, cmd())

			assert.Equal(t, tt.want, m.statusKind)
			assert.Empty(t, m.State().History)
			assert.Equal(t, "Who won?", m.question.Value())
		})
	}
}

func TestUpdate_ClearAndToggleHistory(t *testing.T) {
	m := newReadyModel(t, &fakePort{})
	m, cmd := askQuestion(t, m, "What happened to rates?")
	m, _ = update(t, m, cmd())

	assert.Contains(t, m.renderContent(), "2 turns, ctrl+o to expand")
	assert.NotContains(t, m.renderContent(), "User:")

	m, _ = update(t, m, keyMsg(tea.KeyCtrlO))
	assert.True(t, m.showHistory)
	assert.Contains(t, m.renderContent(), "What happened to rates?")

	m, _ = update(t, m, keyMsg(tea.KeyCtrlL))
	assert.Empty(t, m.State().History)
	assert.Nil(t, m.answer)
	assert.Contains(t, m.status, "cleared")
	assert.Contains(t, m.renderContent(), "No answer yet.")
}

func TestUpdate_ClearRefusedWhileAnswerPending(t *testing.T) {
	m := newReadyModel(t, &fakePort{})
	for _, q := range []string{"What happened to rates?", "Who won?"} {
		var cmd tea.Cmd
		m, cmd = askQuestion(t, m, q)
		m, _ = update(t, m, cmd())
		m, _ = update(t, m, keyMsg(tea.KeyTab))
	}
	require.Len(t, m.State().History, 4)

	m, pending := askQuestion(t, m, "By how much?")
	require.NotNil(t, pending)

	m, cmd := update(t, m, keyMsg(tea.KeyCtrlL))
	assert.Nil(t, cmd)
	assert.Equal(t, statusWarn, m.statusKind)
	assert.Len(t, m.State().History, 4)

	m, _ = update(t, m, pending())
	assert.Len(t, m.State().History, 6)

	m, _ = update(t, m, keyMsg(tea.KeyCtrlL))
	assert.Empty(t, m.State().History)
	assert.Contains(t, m.status, "cleared")
}

func TestUpdate_BackspaceEditsInput(t *testing.T) {
	m := newReadyModel(t, &fakePort{})
	m.urls[0].SetValue("https://a.example/x")

	for _, k := range []tea.KeyType{tea.KeyBackspace, tea.KeyCtrlH} {
		before := m.urls[0].Value()
		m, _ = update(t, m, keyMsg(k))
		assert.False(t, m.showHistory)
		assert.Len(t, m.urls[0].Value(), len(before)-1)
	}

	m, _ = update(t, m, keyMsg(tea.KeyF2))
	assert.True(t, m.showHistory)
}

func TestUpdate_Quit(t *testing.T) {
	for _, k := range []tea.KeyType{tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc} {
		m := newReadyModel(t, &fakePort{})
		_, cmd := update(t, m, keyMsg(k))
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	}
}
