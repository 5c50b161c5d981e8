package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"article-rag/internal/chromemdb"
	"article-rag/internal/config"
	"article-rag/internal/embedding"
	"article-rag/internal/fetcher"
	"article-rag/internal/helper"
	"article-rag/internal/models"
	"article-rag/internal/rag"
	"article-rag/internal/splitter"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// MaxURLs is the number of URL inputs a session offers
const MaxURLs = 3

const previewChars = 200

// State is everything a session remembers between actions. Transitions take a
// State and return a new one; the caller owns it.
type State struct {
	History   []models.Turn
	URLInputs [MaxURLs]string
}

type Phase int

const (
	Idle Phase = iota
	Processing
	Answering
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Processing:
		return "processing"
	case Answering:
		return "answering"
	default:
		return "unknown"
	}
}

// ProcessReport summarizes a process action
type ProcessReport struct {
	Results   []fetcher.Result
	Documents int
	Chunks    int
	// Preview is the start of the first loaded document
	Preview   string
	IndexPath string
	ModelID   string
}

type Fetcher interface {
	Fetch(ctx context.Context, urls []string) fetcher.Report
}

type Splitter interface {
	Split(docs []models.Document) []models.Chunk
}

type Answerer interface {
	Answer(ctx context.Context, question string, history []models.Turn, retriever schema.Retriever) (*models.Answer, error)
}

type Deps struct {
	Fetcher  Fetcher
	Splitter Splitter
	Embedder embedding.Embedder
	Answerer Answerer
	Store    config.StoreConfig
	TopK     int
}

// Controller runs the process and ask pipelines. Only one action runs at a time.
type Controller struct {
	mu    sync.Mutex
	phase Phase

	fetcher   Fetcher
	splitter  Splitter
	embedder  embedding.Embedder
	answerer  Answerer
	indexPath string
	storeOpts chromemdb.Options
	topK      int
}

func NewController(d Deps) *Controller {
	return &Controller{
		fetcher:   d.Fetcher,
		splitter:  d.Splitter,
		embedder:  d.Embedder,
		answerer:  d.Answerer,
		indexPath: chromemdb.Path(d.Store),
		storeOpts: chromemdb.NewOptions(d.Store, d.Embedder.ModelID()),
		topK:      d.TopK,
	}
}

// New wires a controller from configuration and a chat model
func New(cfg *config.Config, llm llms.Model) (*Controller, error) {
	embedder, err := embedding.New(cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	return NewController(Deps{
		Fetcher:  fetcher.New(cfg.Fetcher),
		Splitter: splitter.New(cfg.Chunker),
		Embedder: embedder,
		Answerer: rag.NewAnswerer(llm, cfg.LLM, cfg.RAG),
		Store:    cfg.Store,
		TopK:     cfg.RAG.TopK,
	}), nil
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) IndexPath() string { return c.indexPath }

func (c *Controller) begin(p Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != Idle {
		return fmt.Errorf("%w: %s", models.ErrBusy, c.phase)
	}
	c.phase = p
	return nil
}

func (c *Controller) end() {
	c.mu.Lock()
	c.phase = Idle
	c.mu.Unlock()
}

// Process fetches the state's URL inputs and replaces the persisted index.
// The previous index is left untouched unless a new one was built and saved.
func (c *Controller) Process(ctx context.Context, state State) (ProcessReport, error) {
	report := ProcessReport{IndexPath: c.indexPath, ModelID: c.embedder.ModelID()}
	if err := c.begin(Processing); err != nil {
		return report, err
	}
	defer c.end()

	log.Info().Strs("urls", state.URLInputs[:]).Msg("Processing URLs")
	fetched := c.fetcher.Fetch(ctx, state.URLInputs[:])
	report.Results = fetched.Results
	report.Documents = len(fetched.Documents)
	if len(fetched.Documents) == 0 {
		return report, models.ErrEmptyContent
	}
	report.Preview = helper.Preview(fetched.Documents[0].Text, previewChars)

	chunks := c.splitter.Split(fetched.Documents)
	report.Chunks = len(chunks)
	if len(chunks) == 0 {
		return report, fmt.Errorf("%w: documents produced no chunks", models.ErrEmptyContent)
	}

	ix, err := chromemdb.Build(ctx, c.embedder, chunks, c.storeOpts)
	if err != nil {
		return report, err
	}
	if err := chromemdb.Save(ix, c.indexPath, c.storeOpts); err != nil {
		return report, err
	}

	log.Info().Int("documents", report.Documents).Int("chunks", report.Chunks).Str("path", c.indexPath).Msg("Processed URLs")
	return report, nil
}

// Ask answers question against the persisted index. On success the returned
// state has the question and answer appended; on failure it is the input state.
func (c *Controller) Ask(ctx context.Context, state State, question string) (State, *models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return state, nil, models.ErrEmptyQuestion
	}
	if err := c.begin(Answering); err != nil {
		return state, nil, err
	}
	defer c.end()

	ix, err := chromemdb.Load(ctx, c.indexPath, c.storeOpts)
	if err != nil {
		return state, nil, err
	}

	retriever := chromemdb.NewRetriever(ix, c.embedder, c.topK)
	answer, err := c.answerer.Answer(ctx, question, state.History, retriever)
	if err != nil {
		log.Error().Err(err).Msg("Failed to answer question")
		return state, nil, err
	}

	history := make([]models.Turn, len(state.History), len(state.History)+2)
	copy(history, state.History)
	history = append(history,
		models.Turn{Speaker: models.User, Text: question},
		models.Turn{Speaker: models.Assistant, Text: answer.Text},
	)

	log.Info().Strs("sources", answer.Sources).Int("turns", len(history)).Msg("Answered question")
	return State{History: history, URLInputs: state.URLInputs}, answer, nil
}

// Clear empties the conversation history. URL inputs and the index are kept.
func Clear(state State) State {
	return State{URLInputs: state.URLInputs}
}

// SetURL updates one URL input. Out of range indexes leave the state unchanged.
func SetURL(state State, i int, value string) State {
	if i < 0 || i >= MaxURLs {
		return state
	}
	state.URLInputs[i] = value
	return state
}

// URLs returns the non-blank URL inputs
func (s State) URLs() []string {
	var urls []string
	for _, u := range s.URLInputs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}
