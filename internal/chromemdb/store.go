package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"article-rag/internal/config"
	"article-rag/internal/helper"
	"article-rag/internal/models"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

// FormatVersion is bumped whenever the layout of the persisted collection changes
const FormatVersion = "1"

const (
	manifestID = "__manifest__"

	metaFormatVersion = "format_version"
	metaModelID       = "embedding_model_id"
	metaDimension     = "vector_dimension"
	metaChunkCount    = "chunk_count"
	metaCreatedAt     = "created_at"

	defaultCollection = "articles"
)

// Manifest describes how a persisted index was built
type Manifest struct {
	FormatVersion    string
	EmbeddingModelID string
	Dimension        int
	ChunkCount       int
	CreatedAt        time.Time
}

type Options struct {
	Collection    string
	Compress      bool
	EncryptionKey string
	// ExpectedModelID is checked against the manifest on Load. Empty skips the check.
	ExpectedModelID string
}

func NewOptions(cfg config.StoreConfig, modelID string) Options {
	return Options{
		Collection:      cfg.Collection,
		Compress:        cfg.Compress,
		EncryptionKey:   cfg.EncryptionKey,
		ExpectedModelID: modelID,
	}
}

func (o Options) withDefaults() Options {
	if o.Collection == "" {
		o.Collection = defaultCollection
	}
	return o
}

// Path returns the index file location for cfg
func Path(cfg config.StoreConfig) string {
	if cfg.Compress && !strings.HasSuffix(cfg.Path, ".gz") {
		return cfg.Path + ".gz"
	}
	return cfg.Path
}

func newManifest(modelID string, dim, chunks int) Manifest {
	return Manifest{
		FormatVersion:    FormatVersion,
		EmbeddingModelID: modelID,
		Dimension:        dim,
		ChunkCount:       chunks,
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
}

func (m Manifest) metadata() map[string]string {
	return map[string]string{
		models.MetaKind:   models.KindManifest,
		metaFormatVersion: m.FormatVersion,
		metaModelID:       m.EmbeddingModelID,
		metaDimension:     strconv.Itoa(m.Dimension),
		metaChunkCount:    strconv.Itoa(m.ChunkCount),
		metaCreatedAt:     m.CreatedAt.Format(time.RFC3339),
	}
}

// document stores the manifest next to the chunks. The collection metadata is
// not readable after an import, a document is.
func (m Manifest) document() chromem.Document {
	vec := make([]float32, m.Dimension)
	vec[0] = 1
	return chromem.Document{
		ID:        manifestID,
		Content:   models.KindManifest,
		Embedding: vec,
		Metadata:  m.metadata(),
	}
}

func manifestFromMetadata(meta map[string]string) (Manifest, error) {
	if meta[models.MetaKind] != models.KindManifest {
		return Manifest{}, errors.New("manifest entry has the wrong kind")
	}
	dim, err := strconv.Atoi(meta[metaDimension])
	if err != nil || dim <= 0 {
		return Manifest{}, fmt.Errorf("invalid vector dimension %q", meta[metaDimension])
	}
	count, err := strconv.Atoi(meta[metaChunkCount])
	if err != nil || count <= 0 {
		return Manifest{}, fmt.Errorf("invalid chunk count %q", meta[metaChunkCount])
	}
	created, _ := time.Parse(time.RFC3339, meta[metaCreatedAt])
	return Manifest{
		FormatVersion:    meta[metaFormatVersion],
		EmbeddingModelID: meta[metaModelID],
		Dimension:        dim,
		ChunkCount:       count,
		CreatedAt:        created,
	}, nil
}

// Save writes the index to path. The export goes to a sibling temp file that
// is renamed over path, so readers never see a partial index.
func Save(ix *Index, path string, opts Options) error {
	if err := helper.CreateFolder(filepath.Dir(path)); err != nil {
		return fmt.Errorf("%w: %v", models.ErrIndexBuild, err)
	}

	tmp := filepath.Join(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	log.Debug().Str("path", path).Str("collection", ix.collection.Name).Bool("compress", opts.Compress).Msg("Exporting index")

	if err := ix.db.ExportToFile(tmp, opts.Compress, opts.EncryptionKey, ix.collection.Name); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: failed to export index: %v", models.ErrIndexBuild, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: failed to replace index file: %v", models.ErrIndexBuild, err)
	}

	log.Info().Str("path", path).Int("chunks", ix.Len()).Msg("Saved index")
	return nil
}

// Load reads an index written by Save and validates its manifest
func Load(ctx context.Context, path string, opts Options) (*Index, error) {
	opts = opts.withDefaults()

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrIndexMissing, path)
		}
		return nil, fmt.Errorf("failed to stat index file: %w", err)
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(path, opts.EncryptionKey, opts.Collection); err != nil {
		return nil, fmt.Errorf("%w: failed to import index: %v", models.ErrIndexFormatMismatch, err)
	}

	collection := db.GetCollection(opts.Collection, noEmbed)
	if collection == nil {
		return nil, fmt.Errorf("%w: collection %q not found in %s", models.ErrIndexFormatMismatch, opts.Collection, path)
	}

	doc, err := collection.GetByID(ctx, manifestID)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest not found: %v", models.ErrIndexFormatMismatch, err)
	}
	manifest, err := manifestFromMetadata(doc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexFormatMismatch, err)
	}

	if manifest.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: format version %q, want %q", models.ErrIndexFormatMismatch, manifest.FormatVersion, FormatVersion)
	}
	if opts.ExpectedModelID != "" && manifest.EmbeddingModelID != opts.ExpectedModelID {
		return nil, fmt.Errorf("%w: index built with %q, current embedder is %q, process the URLs again",
			models.ErrIndexFormatMismatch, manifest.EmbeddingModelID, opts.ExpectedModelID)
	}
	if n := collection.Count() - 1; n != manifest.ChunkCount {
		return nil, fmt.Errorf("%w: manifest lists %d chunks, found %d", models.ErrIndexFormatMismatch, manifest.ChunkCount, n)
	}

	log.Debug().Str("path", path).Int("chunks", manifest.ChunkCount).Str("model", manifest.EmbeddingModelID).Msg("Loaded index")
	return &Index{db: db, collection: collection, manifest: manifest}, nil
}
