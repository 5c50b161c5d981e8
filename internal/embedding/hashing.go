package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
)

// Hasher is a local feature-hashing embedding model. Unigrams and bigrams are
// hashed into a fixed number of signed buckets and the result is L2 normalized.
// It needs no corpus preparation and no network.
type Hasher struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewHasher(dimension int) *Hasher {
	return &Hasher{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

// NewHashing returns the hashing model behind langchaingo's batching embedder
func NewHashing(dimension, batchSize int) (Embedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("hashing dimension must be positive, got %d", dimension)
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	h := NewHasher(dimension)
	embedder, err := embeddings.NewEmbedder(h,
		embeddings.WithBatchSize(batchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return Wrap(embedder, fmt.Sprintf("hashing/fnv-%d", dimension)), nil
}

func (h *Hasher) Dimension() int { return h.dimension }

// CreateEmbedding implements embeddings.EmbedderClient
func (h *Hasher) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.Embed(text)
	}
	return out, nil
}

// Embed returns the unit vector for text. Text without any token maps to the
// first basis vector so every vector has a defined direction.
func (h *Hasher) Embed(text string) []float32 {
	counts := make([]float64, h.dimension)
	tokens := h.tokenize(text)
	for i, tok := range tokens {
		h.add(counts, tok)
		if i > 0 {
			h.add(counts, tokens[i-1]+" "+tok)
		}
	}

	vec := make([]float32, h.dimension)
	norm := 0.0
	for _, c := range counts {
		norm += c * c
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	norm = math.Sqrt(norm)
	for i, c := range counts {
		vec[i] = float32(c / norm)
	}
	return vec
}

func (h *Hasher) add(counts []float64, feature string) {
	f := fnv.New64a()
	f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dimension))
	if sum>>63 == 1 {
		counts[idx]--
	} else {
		counts[idx]++
	}
}

func (h *Hasher) tokenize(text string) []string {
	raw := h.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := h.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
