package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/szarkamarci/modularai/internal/models"
	"github.com/szarkamarci/modularai/internal/utils"
)

// VectorStore is the persistence surface the indexer writes through.
type VectorStore interface {
	UpsertVector(ctx context.Context, v models.EmbeddingVector) error
	VectorsForVersion(ctx context.Context, modelVersion string) ([]models.EmbeddingVector, error)
	DeleteVector(ctx context.Context, productID, modelVersion string) error
	PurgeVectors(ctx context.Context, modelVersion string) (int64, error)
}

// Embedder turns product text into a vector under a named model version.
type Embedder interface {
	Embed(ctx context.Context, text, modelVersion string) ([]float32, error)
}

// IndexReport summarises one Sync run.
type IndexReport struct {
	ModelVersion string
	Embedded     int
	Skipped      int
	Removed      int
	Rebuilt      bool
}

// Indexer keeps the per-version embedding index consistent with the product
// catalog. Each product under a version has at most one vector; a vector is
// re-embedded only when the source text hash changes.
type Indexer struct {
	store    VectorStore
	embedder Embedder
	logger   *slog.Logger
}

// NewIndexer constructs an Indexer.
func NewIndexer(store VectorStore, embedder Embedder, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{store: store, embedder: embedder, logger: logger}
}

// TextHash is the invalidation key for a product's embedded text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Sync brings the index for modelVersion in line with the given catalog:
// unchanged products are skipped, changed or missing ones are embedded, and
// vectors for products no longer in the catalog are removed. If the embedder
// returns a vector whose dimension disagrees with the stored index, the whole
// version is rebuilt from scratch rather than left mixed.
func (ix *Indexer) Sync(ctx context.Context, products []models.Product, modelVersion string) (IndexReport, error) {
	const op = "indexer.Sync"
	report := IndexReport{ModelVersion: modelVersion}

	existing, err := ix.store.VectorsForVersion(ctx, modelVersion)
	if err != nil {
		return report, utils.NewAppError(utils.KindSourceUnavailable, op, "load stored vectors", err)
	}
	byProduct := make(map[string]models.EmbeddingVector, len(existing))
	dimension := 0
	for _, v := range existing {
		byProduct[v.ProductID] = v
		if dimension == 0 {
			dimension = len(v.Vector)
		}
	}

	inCatalog := make(map[string]struct{}, len(products))
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return report, utils.NewAppError(utils.KindTimeout, op, "sync cancelled", err)
		}
		inCatalog[p.ID] = struct{}{}

		text := p.SourceText()
		hash := TextHash(text)
		if stored, ok := byProduct[p.ID]; ok && stored.TextHash == hash {
			report.Skipped++
			continue
		}

		vec, err := ix.embedder.Embed(ctx, text, modelVersion)
		if err != nil {
			return report, err
		}
		if dimension != 0 && len(vec) != dimension {
			ix.logger.Warn("embedding dimension changed, rebuilding index",
				"model_version", modelVersion, "stored", dimension, "got", len(vec))
			return ix.rebuild(ctx, products, modelVersion)
		}
		if dimension == 0 {
			dimension = len(vec)
		}

		if err := ix.store.UpsertVector(ctx, models.EmbeddingVector{
			ProductID:    p.ID,
			ModelVersion: modelVersion,
			Vector:       vec,
			TextHash:     hash,
			SourceText:   text,
			UpdatedAt:    time.Now().UTC(),
		}); err != nil {
			return report, utils.NewAppError(utils.KindSourceUnavailable, op, "persist vector", err)
		}
		report.Embedded++
	}

	for id := range byProduct {
		if _, ok := inCatalog[id]; ok {
			continue
		}
		if err := ix.store.DeleteVector(ctx, id, modelVersion); err != nil {
			return report, utils.NewAppError(utils.KindSourceUnavailable, op, "remove stale vector", err)
		}
		report.Removed++
	}

	ix.logger.Info("index sync complete",
		"model_version", modelVersion,
		"embedded", report.Embedded,
		"skipped", report.Skipped,
		"removed", report.Removed)
	return report, nil
}

// rebuild drops every vector under the version and embeds the full catalog
// again. It is the only recovery path for a dimension change: mixing
// dimensions inside one version would poison similarity scores.
func (ix *Indexer) rebuild(ctx context.Context, products []models.Product, modelVersion string) (IndexReport, error) {
	const op = "indexer.rebuild"
	report := IndexReport{ModelVersion: modelVersion, Rebuilt: true}

	if _, err := ix.store.PurgeVectors(ctx, modelVersion); err != nil {
		return report, utils.NewAppError(utils.KindSourceUnavailable, op, "purge version", err)
	}

	dimension := 0
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return report, utils.NewAppError(utils.KindTimeout, op, "rebuild cancelled", err)
		}
		text := p.SourceText()
		vec, err := ix.embedder.Embed(ctx, text, modelVersion)
		if err != nil {
			return report, err
		}
		if dimension == 0 {
			dimension = len(vec)
		} else if len(vec) != dimension {
			return report, utils.NewAppError(utils.KindDimensionMismatch, op,
				"embedder returned inconsistent dimensions within one rebuild", nil)
		}
		if err := ix.store.UpsertVector(ctx, models.EmbeddingVector{
			ProductID:    p.ID,
			ModelVersion: modelVersion,
			Vector:       vec,
			TextHash:     TextHash(text),
			SourceText:   text,
			UpdatedAt:    time.Now().UTC(),
		}); err != nil {
			return report, utils.NewAppError(utils.KindSourceUnavailable, op, "persist vector", err)
		}
		report.Embedded++
	}
	return report, nil
}

// PurgeVersion removes a retired model version's vectors once its cutover
// window has closed.
func (ix *Indexer) PurgeVersion(ctx context.Context, modelVersion string) (int64, error) {
	return ix.store.PurgeVectors(ctx, modelVersion)
}
