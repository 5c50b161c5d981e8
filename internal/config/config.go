package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "ARTICLE_RAG_"

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Fetcher  FetcherConfig  `yaml:"fetcher"`
	Chunker  ChunkerConfig  `yaml:"chunker"`
	EmbedLLM EmbedderConfig `yaml:"embedder"`
	LLM      LLMConfig      `yaml:"llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Store    StoreConfig    `yaml:"store"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File receives log output while the terminal UI owns the screen.
	File string `yaml:"file"`
}

type FetcherConfig struct {
	UserAgent    string `yaml:"user_agent"`
	TimeoutSecs  int    `yaml:"timeout_secs"`
	DelayMs      int    `yaml:"delay_ms"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// ChunkerConfig sizes are in runes. ChunkOverlap and MinChunkChars are only
// defaulted when the keys are absent, so an explicit 0 is kept.
type ChunkerConfig struct {
	ChunkSize     int `yaml:"chunk_size"`
	ChunkOverlap  int `yaml:"chunk_overlap"`
	MinChunkChars int `yaml:"min_chunk_chars"`
}

// EmbedderConfig selects the embedding model. Type is one of ollama, openai, huggingface or hashing.
type EmbedderConfig struct {
	Type      string `yaml:"type"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Key       string `yaml:"api_key"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// LLMConfig selects the answering model. Provider is one of ollama or openai.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Key         string  `yaml:"api_key"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	Temperature float64 `yaml:"temperature"`
}

type RAGConfig struct {
	TopK int `yaml:"top_k"`
	// MaxHistoryTurns caps how many past turns are sent to the model, 0 sends all.
	MaxHistoryTurns int `yaml:"max_history_turns"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
}

const (
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	defaultFetchTimeout = 30
	defaultFetchDelay   = 1000
	defaultMaxBodyBytes = 10 << 20

	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
	defaultMinChunk     = 50

	defaultOllamaURL      = "http://localhost:11434"
	defaultEmbedModel     = "all-minilm"
	defaultOpenAIEmbed    = "text-embedding-3-small"
	defaultHFEmbed        = "sentence-transformers/all-MiniLM-L6-v2"
	defaultHashDimension  = 512
	defaultEmbedBatchSize = 32

	defaultLLMModel       = "llama3"
	defaultLLMTimeoutSecs = 120

	defaultTopK       = 4
	defaultStorePath  = "vectorstore/articles.gob"
	defaultCollection = "articles"
)

// LoadConfig reads the YAML file at path. A missing file yields defaults.
// Values from a .env file and ARTICLE_RAG_* environment variables override the file.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := newConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(cfg)
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := newConfig()
	ApplyDefaults(cfg)
	return cfg
}

// newConfig presets the fields whose zero value is meaningful. YAML decoding
// only overwrites keys present in the file.
func newConfig() *Config {
	return &Config{
		Chunker: ChunkerConfig{
			ChunkOverlap:  defaultChunkOverlap,
			MinChunkChars: defaultMinChunk,
		},
	}
}

// Save writes the config to path, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyEnv(cfg *Config) {
	set := func(dst *string, name string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	set(&cfg.LLM.Key, "LLM_API_KEY")
	set(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	set(&cfg.LLM.Model, "LLM_MODEL")
	set(&cfg.EmbedLLM.Key, "EMBEDDER_API_KEY")
	set(&cfg.Store.EncryptionKey, "STORE_ENCRYPTION_KEY")
}

func ApplyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = "article-rag.log"
	}

	if cfg.Fetcher.UserAgent == "" {
		cfg.Fetcher.UserAgent = DefaultUserAgent
	}
	if cfg.Fetcher.TimeoutSecs == 0 {
		cfg.Fetcher.TimeoutSecs = defaultFetchTimeout
	}
	// negative disables pacing
	if cfg.Fetcher.DelayMs == 0 {
		cfg.Fetcher.DelayMs = defaultFetchDelay
	}
	if cfg.Fetcher.MaxBodyBytes == 0 {
		cfg.Fetcher.MaxBodyBytes = defaultMaxBodyBytes
	}

	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = defaultChunkSize
	}

	if cfg.EmbedLLM.Type == "" {
		cfg.EmbedLLM.Type = "ollama"
	}
	switch cfg.EmbedLLM.Type {
	case "ollama":
		if cfg.EmbedLLM.BaseURL == "" {
			cfg.EmbedLLM.BaseURL = defaultOllamaURL
		}
		if cfg.EmbedLLM.Model == "" {
			cfg.EmbedLLM.Model = defaultEmbedModel
		}
	case "openai":
		if cfg.EmbedLLM.Model == "" {
			cfg.EmbedLLM.Model = defaultOpenAIEmbed
		}
	case "huggingface":
		if cfg.EmbedLLM.Model == "" {
			cfg.EmbedLLM.Model = defaultHFEmbed
		}
	case "hashing":
		if cfg.EmbedLLM.Dimension == 0 {
			cfg.EmbedLLM.Dimension = defaultHashDimension
		}
	}
	if cfg.EmbedLLM.BatchSize == 0 {
		cfg.EmbedLLM.BatchSize = defaultEmbedBatchSize
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
	}
	if cfg.LLM.Provider == "ollama" && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = defaultOllamaURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultLLMModel
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = defaultLLMTimeoutSecs
	}

	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = defaultTopK
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath
	}
	if cfg.Store.Collection == "" {
		cfg.Store.Collection = defaultCollection
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("chunker.chunk_size must be positive, got %d", c.Chunker.ChunkSize)
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("chunker.chunk_overlap must be in [0, %d), got %d", c.Chunker.ChunkSize, c.Chunker.ChunkOverlap)
	}
	if c.Chunker.MinChunkChars < 0 {
		return fmt.Errorf("chunker.min_chunk_chars must not be negative, got %d", c.Chunker.MinChunkChars)
	}
	switch c.EmbedLLM.Type {
	case "ollama", "openai", "huggingface":
	case "hashing":
		if c.EmbedLLM.Dimension <= 0 {
			return fmt.Errorf("embedder.dimension must be positive, got %d", c.EmbedLLM.Dimension)
		}
	default:
		return fmt.Errorf("unknown embedder type: %s", c.EmbedLLM.Type)
	}
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK)
	}
	if n := len(c.Store.EncryptionKey); n != 0 && n != 32 {
		return fmt.Errorf("store.encryption_key must be 32 bytes, got %d", n)
	}
	return nil
}

func (c FetcherConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

func (c FetcherConfig) Delay() time.Duration {
	if c.DelayMs < 0 {
		return 0
	}
	return time.Duration(c.DelayMs) * time.Millisecond
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}
