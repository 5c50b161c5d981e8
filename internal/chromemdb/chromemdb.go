package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"article-rag/internal/embedding"
	"article-rag/internal/models"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

// Index is an in-memory vector index over article chunks, backed by a single
// chromem-go collection. It is immutable once built.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	manifest   Manifest
}

var chunkFilter = map[string]string{models.MetaKind: models.KindChunk}

// text queries are never issued, every vector comes from our own embedder
func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errors.New("index does not embed text, pass a query vector")
}

// Build embeds every chunk and returns a new index. Any embedding failure fails the whole build.
func Build(ctx context.Context, embedder embedding.Embedder, chunks []models.Chunk, opts Options) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to index", models.ErrEmptyContent)
	}
	opts = opts.withDefaults()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed chunks: %v", models.ErrIndexBuild, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrIndexBuild, len(vectors), len(chunks))
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", models.ErrIndexBuild, i, len(v), dim)
		}
	}

	manifest := newManifest(embedder.ModelID(), dim, len(chunks))

	db := chromem.NewDB()
	collection, err := db.CreateCollection(opts.Collection, manifest.metadata(), noEmbed)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create collection: %v", models.ErrIndexBuild, err)
	}

	docs := make([]chromem.Document, 0, len(chunks)+1)
	docs = append(docs, manifest.document())
	for i, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: vectors[i],
			Metadata: map[string]string{
				models.MetaKind:   models.KindChunk,
				models.MetaSource: c.Source,
				models.MetaTitle:  c.Title,
				models.MetaIndex:  strconv.Itoa(c.Index),
			},
		})
	}

	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("%w: failed to add documents: %v", models.ErrIndexBuild, err)
	}

	log.Info().Int("chunks", len(chunks)).Int("dimension", dim).Str("model", manifest.EmbeddingModelID).Msg("Built index")
	return &Index{db: db, collection: collection, manifest: manifest}, nil
}

func (ix *Index) Manifest() Manifest { return ix.manifest }

// Len returns the number of indexed chunks
func (ix *Index) Len() int { return ix.manifest.ChunkCount }

// Search returns the k chunks nearest to query, closest first. k is clamped to the chunk count.
func (ix *Index) Search(ctx context.Context, query []float32, k int) ([]models.ScoredChunk, error) {
	if len(query) != ix.manifest.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", models.ErrIndexFormatMismatch, len(query), ix.manifest.Dimension)
	}
	if k > ix.manifest.ChunkCount {
		k = ix.manifest.ChunkCount
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := ix.collection.QueryEmbedding(ctx, query, k, chunkFilter, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]models.ScoredChunk, 0, len(results))
	for _, r := range results {
		hits = append(hits, models.ScoredChunk{
			Chunk:    chunkFromMetadata(r.ID, r.Content, r.Metadata),
			Distance: 1 - r.Similarity,
		})
	}
	return hits, nil
}

func chunkFromMetadata(id, content string, meta map[string]string) models.Chunk {
	idx, _ := strconv.Atoi(meta[models.MetaIndex])
	return models.Chunk{
		ID:     id,
		Text:   content,
		Source: meta[models.MetaSource],
		Title:  meta[models.MetaTitle],
		Index:  idx,
	}
}
