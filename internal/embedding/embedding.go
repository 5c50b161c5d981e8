package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"article-rag/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	hfembed "github.com/tmc/langchaingo/embeddings/huggingface"
	"github.com/tmc/langchaingo/llms/huggingface"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder maps text to vectors. ModelID identifies the model so an index
// built with one model is never queried with another.
type Embedder interface {
	embeddings.Embedder
	ModelID() string
}

type modelEmbedder struct {
	embedder embeddings.Embedder
	id       string
}

// Wrap attaches a model id to a langchaingo embedder
func Wrap(e embeddings.Embedder, id string) Embedder {
	return &modelEmbedder{embedder: e, id: id}
}

func (e *modelEmbedder) ModelID() string { return e.id }

func (e *modelEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	// langchaingo strips newlines in place
	in := make([]string, len(texts))
	copy(in, texts)
	return e.embedder.EmbedDocuments(ctx, in)
}

func (e *modelEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embedder.EmbedQuery(ctx, text)
}

var (
	cacheMu sync.Mutex
	cache   = map[config.EmbedderConfig]Embedder{}
)

// New returns the embedder for cfg. Embedders are built once per distinct
// configuration and shared for the life of the process.
func New(cfg config.EmbedderConfig) (Embedder, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if e, ok := cache[cfg]; ok {
		return e, nil
	}

	e, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("model", e.ModelID()).Msg("Initialized embedder")
	cache[cfg] = e
	return e, nil
}

// ModelID returns the identifier recorded in the index for cfg
func ModelID(cfg config.EmbedderConfig) string {
	if cfg.Type == "hashing" {
		return fmt.Sprintf("hashing/fnv-%d", cfg.Dimension)
	}
	return cfg.Type + "/" + cfg.Model
}

func newEmbedder(cfg config.EmbedderConfig) (Embedder, error) {
	switch cfg.Type {
	case "ollama":
		return NewOllamaEmbedder(cfg)
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "huggingface":
		return NewHuggingfaceEmbedder(cfg)
	case "hashing":
		return NewHashing(cfg.Dimension, cfg.BatchSize)
	default:
		return nil, fmt.Errorf("unknown embedder type: %s", cfg.Type)
	}
}

// NewOllamaEmbedder creates an embedder backed by a local Ollama server
func NewOllamaEmbedder(cfg config.EmbedderConfig) (Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Loaded embedder config")

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return Wrap(embedder, ModelID(cfg)), nil
}

// NewOpenAIEmbedder creates an embedder for any OpenAI compatible endpoint
func NewOpenAIEmbedder(cfg config.EmbedderConfig) (Embedder, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return Wrap(embedder, ModelID(cfg)), nil
}

// NewHuggingfaceEmbedder creates an embedder using the Hugging Face inference API
func NewHuggingfaceEmbedder(cfg config.EmbedderConfig) (Embedder, error) {
	opts := []huggingface.Option{huggingface.WithModel(cfg.Model)}
	if cfg.Key != "" {
		opts = append(opts, huggingface.WithToken(cfg.Key))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, huggingface.WithURL(cfg.BaseURL))
	}

	client, err := huggingface.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize huggingface: %w", err)
	}
	embedder, err := hfembed.NewHuggingface(
		hfembed.WithClient(*client),
		hfembed.WithModel(cfg.Model),
		hfembed.WithBatchSize(cfg.BatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return Wrap(embedder, ModelID(cfg)), nil
}
