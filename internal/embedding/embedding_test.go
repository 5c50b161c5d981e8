package embedding

import (
	"context"
	"math"
	"testing"

	"article-rag/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashing_Deterministic(t *testing.T) {
	e, err := NewHashing(128, 4)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := e.EmbedQuery(ctx, "The central bank cut interest rates")
	require.NoError(t, err)
	b, err := e.EmbedQuery(ctx, "The central bank cut interest rates")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 128)
	assert.InDelta(t, 1.0, cosine(a, a), 1e-6)
	assert.Equal(t, "hashing/fnv-128", e.ModelID())
}

func TestHashing_Similarity(t *testing.T) {
	e, err := NewHashing(512, 0)
	require.NoError(t, err)

	vecs, err := e.EmbedDocuments(context.Background(), []string{
		"Stocks rallied after the central bank cut interest rates.",
		"The football team won the championship final on penalties.",
		"Interest rates were cut by the central bank, and stocks rose.",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.Greater(t, cosine(vecs[0], vecs[2]), cosine(vecs[0], vecs[1]))
}

func TestHashing_EmptyText(t *testing.T) {
	h := NewHasher(16)
	v := h.Embed("  the of  ")
	assert.Equal(t, float32(1), v[0])
	assert.Equal(t, 16, h.Dimension())
}

func TestHashing_InvalidDimension(t *testing.T) {
	_, err := NewHashing(0, 1)
	assert.Error(t, err)
}

func TestWrap_DoesNotMutateInput(t *testing.T) {
	inner, err := embeddings.NewEmbedder(embeddings.EmbedderClientFunc(func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(len(text))}
		}
		return out, nil
	}))
	require.NoError(t, err)

	e := Wrap(inner, "fake/model")
	texts := []string{"line one\nline two"}
	vecs, err := e.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)

	assert.Equal(t, "line one\nline two", texts[0])
	assert.Equal(t, [][]float32{{17}}, vecs)
	assert.Equal(t, "fake/model", e.ModelID())
}

func TestNew_Cached(t *testing.T) {
	cfg := config.Default().EmbedLLM
	a, err := New(cfg)
	require.NoError(t, err)
	b, err := New(cfg)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "ollama/all-minilm", a.ModelID())

	cfg.Type = "hashing"
	cfg.Dimension = 32
	c, err := New(cfg)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, "hashing/fnv-32", c.ModelID())
}

func TestNew_Unknown(t *testing.T) {
	_, err := New(config.EmbedderConfig{Type: "word2vec"})
	assert.Error(t, err)
}

func TestModelID(t *testing.T) {
	assert.Equal(t, "openai/text-embedding-3-small", ModelID(config.EmbedderConfig{Type: "openai", Model: "text-embedding-3-small"}))
	assert.Equal(t, "hashing/fnv-64", ModelID(config.EmbedderConfig{Type: "hashing", Dimension: 64, Model: "ignored"}))
}
