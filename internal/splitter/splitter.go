package splitter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"article-rag/internal/config"
	"article-rag/internal/helper"
	"article-rag/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/textsplitter"
)

// Separators are tried in order, from paragraph breaks down to single runes
var Separators = []string{"\n\n", "\n", " ", ""}

type Splitter struct {
	splitter textsplitter.TextSplitter
	minChars int
}

func New(cfg config.ChunkerConfig) *Splitter {
	return &Splitter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
			textsplitter.WithSeparators(Separators),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
		minChars: cfg.MinChunkChars,
	}
}

// Split chunks every document. A document that fails to split is logged and
// contributes no chunks; the others are unaffected.
func (s *Splitter) Split(docs []models.Document) []models.Chunk {
	var chunks []models.Chunk
	for _, doc := range docs {
		docChunks, err := s.SplitDocument(doc)
		if err != nil {
			log.Warn().Err(err).Str("source", doc.Source).Msg("Skipping document")
			continue
		}
		log.Debug().Str("source", doc.Source).Int("chunks", len(docChunks)).Msg("Split document")
		chunks = append(chunks, docChunks...)
	}
	return chunks
}

// SplitDocument returns the chunks of one document, dropping fragments whose
// trimmed length is not above the minimum.
func (s *Splitter) SplitDocument(doc models.Document) ([]models.Chunk, error) {
	if !utf8.ValidString(doc.Text) {
		return nil, fmt.Errorf("%w: %s: text is not valid UTF-8", models.ErrSplitFailure, doc.Source)
	}

	parts, err := s.splitter.SplitText(doc.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrSplitFailure, doc.Source, err)
	}

	chunks := make([]models.Chunk, 0, len(parts))
	for _, part := range parts {
		if utf8.RuneCountInString(strings.TrimSpace(part)) <= s.minChars {
			continue
		}
		id, err := helper.GenerateUUID()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", models.ErrSplitFailure, doc.Source, err)
		}
		chunks = append(chunks, models.Chunk{
			ID:     id,
			Text:   part,
			Source: doc.Source,
			Title:  doc.Title,
			Index:  len(chunks),
		})
	}
	return chunks, nil
}
