package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"article-rag/internal/config"
	"article-rag/internal/helper"
	"article-rag/internal/llmservice"
	"article-rag/internal/mcpserver"
	"article-rag/internal/models"
	"article-rag/internal/session"
	"article-rag/internal/tui"
)

const (
	defaultConfigPath = "./configs/config.yaml"
	version           = "0.1.0"
)

var (
	configPath string
	jsonOutput bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("article-rag failed")
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "article-rag",
		Short: "Ask questions about up to three news articles",
		Long: `article-rag loads up to three article URLs, indexes their text and
answers questions about them with a language model.

Without a subcommand it starts the interactive terminal UI.

Controls:
  tab/shift+tab - Move between fields
  ctrl+p        - Process URLs
  enter         - Process URLs / Ask question
  ctrl+l        - Clear chat history
  ctrl+o/f2     - Show or hide chat history
  esc/ctrl+c    - Quit`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runTUI,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the config file")

	process := &cobra.Command{
		Use:   "process URL [URL] [URL]",
		Short: "Fetch and index up to three article URLs",
		Args:  cobra.RangeArgs(1, session.MaxURLs),
		RunE:  runProcess,
	}
	process.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")

	ask := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Answer one question from the processed articles",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	mcp := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the process, ask and clear_history tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE:  runMCP,
	}

	var force bool
	configInit := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with every default filled in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(configPath, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
			return nil
		},
	}
	configInit.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	configCmd.AddCommand(configInit)

	root.AddCommand(process, ask, mcp, configCmd)
	return root
}

// initConfig writes the default configuration to path, refusing to replace
// an existing file unless force is set.
func initConfig(path string, force bool) error {
	if helper.FileExists(path) && !force {
		return fmt.Errorf("config file %s already exists, use --force to overwrite", path)
	}
	return config.Save(path, config.Default())
}

// warn reports an expected outcome such as a missing index. The command
// still exits successfully.
func warn(cmd *cobra.Command, err error) error {
	log.Warn().Err(err).Msg("Nothing to do")
	fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	return nil
}

// setupLogger sends logs to w, or to the configured file when toFile is set.
// The returned closer releases the file.
func setupLogger(cfg config.LogConfig, w io.Writer, toFile bool) (func(), error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	closer := func() {}
	if toFile {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return closer, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
		closer = func() { _ = f.Close() }
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: toFile}).With().Caller().Logger()
	return closer, nil
}

// newController loads config, configures logging and wires the session
func newController(toFile bool) (*session.Controller, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	closeLog, err := setupLogger(cfg.Log, os.Stderr, toFile)
	if err != nil {
		return nil, nil, err
	}

	log.Debug().Str("embedder", cfg.EmbedLLM.Type).Str("llm", cfg.LLM.Provider).Str("store", cfg.Store.Path).Msg("Loaded config")

	llm, err := llmservice.New(cfg.LLM)
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("failed to create llm: %w", err)
	}

	ctrl, err := session.New(cfg, llm)
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return ctrl, closeLog, nil
}

func runTUI(cmd *cobra.Command, _ []string) error {
	ctrl, closeLog, err := newController(true)
	if err != nil {
		return err
	}
	defer closeLog()

	log.Info().Str("index", ctrl.IndexPath()).Msg("Starting terminal UI")

	p := tea.NewProgram(tui.New(cmd.Context(), ctrl), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctrl, closeLog, err := newController(false)
	if err != nil {
		return err
	}
	defer closeLog()

	var state session.State
	for i, u := range args {
		state = session.SetURL(state, i, u)
	}

	report, err := ctrl.Process(cmd.Context(), state)
	out := cmd.OutOrStdout()
	if jsonOutput {
		helper.PrettyPrint(out, processSummary(report, err))
		if models.IsWarning(err) {
			return nil
		}
		return err
	}

	for _, r := range report.Results {
		if r.Err != nil {
			fmt.Fprintf(out, "skipped: %v\n", r.Err)
		}
	}
	if models.IsWarning(err) {
		return warn(cmd, err)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Processed %d document(s) into %d chunks, index saved to %s\n", report.Documents, report.Chunks, report.IndexPath)
	if report.Preview != "" {
		fmt.Fprintf(out, "\n%s\n", report.Preview)
	}
	return nil
}

type urlSummary struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Error string `json:"error,omitempty"`
}

type summary struct {
	URLs      []urlSummary `json:"urls"`
	Documents int          `json:"documents"`
	Chunks    int          `json:"chunks"`
	IndexPath string       `json:"index_path"`
	ModelID   string       `json:"embedding_model_id"`
	Preview   string       `json:"preview,omitempty"`
	Error     string       `json:"error,omitempty"`
}

func processSummary(report session.ProcessReport, err error) summary {
	s := summary{
		Documents: report.Documents,
		Chunks:    report.Chunks,
		IndexPath: report.IndexPath,
		ModelID:   report.ModelID,
		Preview:   report.Preview,
	}
	for _, r := range report.Results {
		u := urlSummary{URL: r.URL}
		if r.Document != nil {
			u.Title = r.Document.Title
		}
		if r.Err != nil {
			u.Error = r.Err.Error()
		}
		s.URLs = append(s.URLs, u)
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctrl, closeLog, err := newController(false)
	if err != nil {
		return err
	}
	defer closeLog()

	_, answer, err := ctrl.Ask(cmd.Context(), session.State{}, strings.Join(args, " "))
	if models.IsWarning(err) {
		return warn(cmd, err)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), mcpserver.FormatAnswer(answer))
	return nil
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctrl, closeLog, err := newController(false)
	if err != nil {
		return err
	}
	defer closeLog()

	log.Info().Str("index", ctrl.IndexPath()).Msg("Serving MCP on stdio")
	return mcpserver.New(ctrl, version).ServeStdio(cmd.Context(), os.Stdin, os.Stdout)
}
