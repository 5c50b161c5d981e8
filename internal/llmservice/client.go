package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"article-rag/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// New creates the chat model selected by cfg.Provider
func New(cfg config.LLMConfig) (llms.Model, error) {
	log.Debug().Interface("config", map[string]string{
		"provider": cfg.Provider,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Msg("Initializing LLM")

	switch cfg.Provider {
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama: %w", err)
		}
		return llm, nil
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// call llm
func GenerateContent(ctx context.Context, llm llms.Model, cfg config.LLMConfig, messages []llms.MessageContent) (string, error) {
	if timeout := cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var opts []llms.CallOption
	if cfg.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(cfg.Temperature))
	}

	log.Debug().Int("messages", len(messages)).Str("model", cfg.Model).Msg("Generating content")
	resp, err := llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}

	content := resp.Choices[0].Content
	if strings.TrimSpace(content) == "" {
		return "", errors.New("model returned an empty response")
	}
	return content, nil
}
