package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"article-rag/internal/fetcher"
	"article-rag/internal/models"
	"article-rag/internal/session"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePort struct {
	processed []session.State
	asked     []session.State

	report     session.ProcessReport
	processErr error
	answerErr  error
}

func (f *fakePort) Process(_ context.Context, state session.State) (session.ProcessReport, error) {
	f.processed = append(f.processed, state)
	return f.report, f.processErr
}

func (f *fakePort) Ask(_ context.Context, state session.State, question string) (session.State, *models.Answer, error) {
	f.asked = append(f.asked, state)
	if f.answerErr != nil {
		return state, nil, f.answerErr
	}
	answer := &models.Answer{Question: question, Text: "Arsenal won 2-1.", Sources: []string{"https://sport.example/football"}}
	next := state
	next.History = append(append([]models.Turn(nil), state.History...),
		models.Turn{Speaker: models.User, Text: question},
		models.Turn{Speaker: models.Assistant, Text: answer.Text},
	)
	return next, answer, nil
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestListTools(t *testing.T) {
	s := New(&fakePort{}, "test")

	resp := s.MCP().HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	for _, name := range []string{ToolProcess, ToolAsk, ToolClear} {
		assert.Contains(t, string(raw), `"`+name+`"`)
	}
}

func TestHandleProcess(t *testing.T) {
	port := &fakePort{report: session.ProcessReport{
		Documents: 1,
		Chunks:    4,
		Preview:   "Stocks rose sharply",
		Results: []fetcher.Result{
			{URL: "https://news.example/rates"},
			{URL: "https://down.example", Err: fmt.Errorf("https://down.example: %w", models.ErrFetchFailure)},
		},
	}}
	s := New(port, "test")

	res, err := s.handleProcess(context.Background(), callRequest(ToolProcess, map[string]any{
		"urls": "https://news.example/rates,\nhttps://down.example",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	text := resultText(t, res)
	assert.Contains(t, text, "Processed 1 document(s) into 4 chunks.")
	assert.Contains(t, text, "skipped: https://down.example: fetch failed")
	assert.Contains(t, text, "Preview: Stocks rose sharply")

	require.Len(t, port.processed, 1)
	assert.Equal(t, [session.MaxURLs]string{"https://news.example/rates", "https://down.example", ""}, port.processed[0].URLInputs)
	assert.Equal(t, port.processed[0].URLInputs, s.State().URLInputs)
}

func TestHandleProcess_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		port    *fakePort
		want    string
		process bool
	}{
		{name: "missing argument", args: map[string]any{}, port: &fakePort{}, want: "urls"},
		{name: "blank", args: map[string]any{"urls": " ,\n "}, port: &fakePort{}, want: "no urls given"},
		{name: "too many", args: map[string]any{"urls": "https://a.example https://b.example https://c.example https://d.example"}, port: &fakePort{}, want: "at most 3 urls"},
		{name: "nothing loaded", args: map[string]any{"urls": "https://a.example"}, port: &fakePort{processErr: models.ErrEmptyContent}, want: "no documents loaded", process: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.port, "test")

			res, err := s.handleProcess(context.Background(), callRequest(ToolProcess, tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(t, res), tt.want)
			assert.Equal(t, tt.process, len(tt.port.processed) == 1)
		})
	}
}

func TestHandleAsk_KeepsHistory(t *testing.T) {
	port := &fakePort{}
	s := New(port, "test")
	ctx := context.Background()

	res, err := s.handleAsk(ctx, callRequest(ToolAsk, map[string]any{"question": "Who won?"}))
	require.NoError(t, err)
	assert.Equal(t, "Arsenal won 2-1.\n\nSources:\n- https://sport.example/football", resultText(t, res))

	_, err = s.handleAsk(ctx, callRequest(ToolAsk, map[string]any{"question": "By how much?"}))
	require.NoError(t, err)

	require.Len(t, port.asked, 2)
	assert.Empty(t, port.asked[0].History)
	assert.Len(t, port.asked[1].History, 2)
	assert.Len(t, s.State().History, 4)
}

func TestHandleAsk_Error(t *testing.T) {
	s := New(&fakePort{answerErr: models.ErrIndexMissing}, "test")

	res, err := s.handleAsk(context.Background(), callRequest(ToolAsk, map[string]any{"question": "Who won?"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "process some URLs first")
	assert.Empty(t, s.State().History)
}

func TestHandleClear(t *testing.T) {
	s := New(&fakePort{}, "test")
	ctx := context.Background()

	_, err := s.handleAsk(ctx, callRequest(ToolAsk, map[string]any{"question": "Who won?"}))
	require.NoError(t, err)
	require.Len(t, s.State().History, 2)

	res, err := s.handleClear(ctx, callRequest(ToolClear, nil))
	require.NoError(t, err)
	assert.Equal(t, "Chat history cleared.", resultText(t, res))
	assert.Empty(t, s.State().History)
}

func TestSplitURLs(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "https://b.example", "https://c.example"},
		SplitURLs(" https://a.example,https://b.example\n\thttps://c.example\r\n"))
	assert.Empty(t, SplitURLs(" , "))
}

func TestFormatAnswer_NoSources(t *testing.T) {
	assert.Equal(t, "I don't know.", FormatAnswer(&models.Answer{Text: "I don't know."}))
}
