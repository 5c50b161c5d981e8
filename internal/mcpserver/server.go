package mcpserver

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"strings"
	"sync"

	"article-rag/internal/models"
	"article-rag/internal/session"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
)

const (
	serverName = "article-rag"

	ToolProcess = "process_urls"
	ToolAsk     = "ask"
	ToolClear   = "clear_history"
)

type SessionPort interface {
	Process(ctx context.Context, state session.State) (session.ProcessReport, error)
	Ask(ctx context.Context, state session.State, question string) (session.State, *models.Answer, error)
}

// Server exposes one session over MCP. Tool calls share the session state
// and are serialized.
type Server struct {
	mu    sync.Mutex
	port  SessionPort
	state session.State
	srv   *server.MCPServer
}

func New(port SessionPort, version string) *Server {
	s := &Server{port: port}

	s.srv = server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Process up to three article URLs, then ask questions answered from their content."),
	)

	s.srv.AddTool(mcp.NewTool(ToolProcess,
		mcp.WithDescription("Fetch up to three article URLs, split and embed them, and replace the search index"),
		mcp.WithString("urls",
			mcp.Required(),
			mcp.Description("Article URLs separated by newlines, commas or spaces"),
		),
	), s.handleProcess)

	s.srv.AddTool(mcp.NewTool(ToolAsk,
		mcp.WithDescription("Answer a question from the processed articles, using the conversation so far"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question about the articles"),
		),
	), s.handleAsk)

	s.srv.AddTool(mcp.NewTool(ToolClear,
		mcp.WithDescription("Forget the conversation history. The index is kept."),
	), s.handleClear)

	return s
}

func (s *Server) MCP() *server.MCPServer { return s.srv }

// State returns a copy of the shared session state
func (s *Server) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.History = append([]models.Turn(nil), s.state.History...)
	return st
}

// ServeStdio serves MCP over the given streams until ctx is cancelled or
// input ends.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.srv)
	stdio.SetErrorLogger(stdlog.New(log.Logger, "", 0))
	return stdio.Listen(ctx, in, out)
}

func (s *Server) handleProcess(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("urls")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	urls := SplitURLs(raw)
	if len(urls) == 0 {
		return mcp.NewToolResultError("no urls given"), nil
	}
	if len(urls) > session.MaxURLs {
		return mcp.NewToolResultErrorf("at most %d urls can be processed, got %d", session.MaxURLs, len(urls)), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state
	for i := range session.MaxURLs {
		v := ""
		if i < len(urls) {
			v = urls[i]
		}
		state = session.SetURL(state, i, v)
	}
	s.state = state

	report, err := s.port.Process(ctx, state)
	var b strings.Builder
	for _, r := range report.Results {
		if r.Err != nil {
			fmt.Fprintf(&b, "skipped: %v\n", r.Err)
		}
	}
	if err != nil {
		log.Warn().Err(err).Msg("mcp process failed")
		return mcp.NewToolResultError(b.String() + err.Error()), nil
	}

	fmt.Fprintf(&b, "Processed %d document(s) into %d chunks.\n", report.Documents, report.Chunks)
	if report.Preview != "" {
		fmt.Fprintf(&b, "Preview: %s\n", report.Preview)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, answer, err := s.port.Ask(ctx, s.state, q)
	if err != nil {
		log.Warn().Err(err).Msg("mcp ask failed")
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.state = next

	return mcp.NewToolResultText(FormatAnswer(answer)), nil
}

func (s *Server) handleClear(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = session.Clear(s.state)
	return mcp.NewToolResultText("Chat history cleared."), nil
}

// SplitURLs splits a list of URLs separated by commas or whitespace.
func SplitURLs(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\r' || r == '\t'
	})
}

// FormatAnswer renders an answer followed by its source list.
func FormatAnswer(a *models.Answer) string {
	if len(a.Sources) == 0 {
		return a.Text
	}
	var b strings.Builder
	b.WriteString(a.Text)
	b.WriteString("\n\nSources:")
	for _, src := range a.Sources {
		b.WriteString("\n- " + src)
	}
	return b.String()
}
