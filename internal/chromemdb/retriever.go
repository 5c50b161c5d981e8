package chromemdb

import (
	"context"
	"fmt"

	"article-rag/internal/embedding"
	"article-rag/internal/models"

	"github.com/tmc/langchaingo/schema"
)

const MetaID = "id"

// Retriever adapts an Index to langchaingo's schema.Retriever
type Retriever struct {
	Index    *Index
	Embedder embedding.Embedder
	K        int
}

var _ schema.Retriever = Retriever{}

func NewRetriever(ix *Index, embedder embedding.Embedder, k int) Retriever {
	return Retriever{Index: ix, Embedder: embedder, K: k}
}

// GetRelevantDocuments embeds query and returns the K nearest chunks. Score is the cosine similarity.
func (r Retriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	vec, err := r.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := r.Index.Search(ctx, vec, r.K)
	if err != nil {
		return nil, err
	}

	docs := make([]schema.Document, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, ToDocument(h))
	}
	return docs, nil
}

// ToDocument converts a search hit to a langchaingo document
func ToDocument(h models.ScoredChunk) schema.Document {
	return schema.Document{
		PageContent: h.Chunk.Text,
		Metadata: map[string]any{
			MetaID:            h.Chunk.ID,
			models.MetaSource: h.Chunk.Source,
			models.MetaTitle:  h.Chunk.Title,
			models.MetaIndex:  h.Chunk.Index,
		},
		Score: 1 - h.Distance,
	}
}

// FromDocument is the inverse of ToDocument. Missing metadata yields zero values.
func FromDocument(d schema.Document) models.ScoredChunk {
	str := func(key string) string {
		s, _ := d.Metadata[key].(string)
		return s
	}
	idx, _ := d.Metadata[models.MetaIndex].(int)
	return models.ScoredChunk{
		Chunk: models.Chunk{
			ID:     str(MetaID),
			Text:   d.PageContent,
			Source: str(models.MetaSource),
			Title:  str(models.MetaTitle),
			Index:  idx,
		},
		Distance: 1 - d.Score,
	}
}
