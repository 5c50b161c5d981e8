package rag

import (
	"context"
	"fmt"
	"strings"

	"article-rag/internal/chromemdb"
	"article-rag/internal/config"
	"article-rag/internal/llmservice"
	"article-rag/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// Answerer answers a question from retrieved context and the prior conversation.
// It never modifies the history it is given.
type Answerer struct {
	llm        llms.Model
	cfg        config.LLMConfig
	maxHistory int
}

func NewAnswerer(llm llms.Model, llmCfg config.LLMConfig, ragCfg config.RAGConfig) *Answerer {
	return &Answerer{llm: llm, cfg: llmCfg, maxHistory: ragCfg.MaxHistoryTurns}
}

func (a *Answerer) Answer(ctx context.Context, question string, history []models.Turn, retriever schema.Retriever) (*models.Answer, error) {
	docs, err := retriever.GetRelevantDocuments(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRetrieval, err)
	}

	hits := make([]models.ScoredChunk, 0, len(docs))
	for _, d := range docs {
		hits = append(hits, chromemdb.FromDocument(d))
	}
	log.Debug().Int("chunks", len(hits)).Msg("Retrieved context")

	messages := BuildMessages(question, history, hits, a.maxHistory)
	text, err := llmservice.GenerateContent(ctx, a.llm, a.cfg, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrModelCall, err)
	}

	return &models.Answer{
		Question: question,
		Text:     text,
		Sources:  Sources(hits),
		Chunks:   hits,
	}, nil
}

// BuildMessages lays out one chat request: the system prompt with the numbered
// context, the prior turns, then the question. maxHistory > 0 keeps only the
// most recent turns.
func BuildMessages(question string, history []models.Turn, hits []models.ScoredChunk, maxHistory int) []llms.MessageContent {
	entries := make([]string, 0, len(hits))
	for i, h := range hits {
		entries = append(entries, fmt.Sprintf(models.ContextEntryTemplate, i+1, h.Chunk.Source, h.Chunk.Text))
	}

	if maxHistory > 0 && len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem,
		fmt.Sprintf(models.SystemPromptTemplate, strings.Join(entries, models.ContextSeparator))))
	for _, turn := range history {
		role := llms.ChatMessageTypeHuman
		if turn.Speaker == models.Assistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Text))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, question))
	return messages
}

// Sources lists the distinct source URLs of hits in retrieval order
func Sources(hits []models.ScoredChunk) []string {
	seen := make(map[string]struct{}, len(hits))
	var sources []string
	for _, h := range hits {
		src := h.Chunk.Source
		if src == "" {
			continue
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		sources = append(sources, src)
	}
	return sources
}
