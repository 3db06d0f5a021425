package retrieval

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/szarkamarci/modularai/internal/models"
	"github.com/szarkamarci/modularai/internal/utils"
)

// OrchestratorConfig bounds query-time behaviour.
type OrchestratorConfig struct {
	MaxTopK       int
	SnippetLength int
}

// Orchestrator answers similarity queries over the stored embedding index.
// Scoring is cosine similarity against the active embedder version; ranking
// is descending score with ties broken by ascending product ID so results
// are stable across runs.
type Orchestrator struct {
	store    VectorStore
	embedder Embedder
	cfg      OrchestratorConfig
	logger   *slog.Logger
}

// NewOrchestrator constructs an Orchestrator with defaults applied.
func NewOrchestrator(store VectorStore, embedder Embedder, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 25
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = 160
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: store, embedder: embedder, cfg: cfg, logger: logger}
}

// Search embeds the query under modelVersion and returns the topK closest
// products. Fewer than topK stored vectors yields a shorter result, never an
// error. A query vector whose dimension disagrees with the index is a
// DimensionMismatch.
func (o *Orchestrator) Search(ctx context.Context, query string, topK int, modelVersion string) (models.RetrievalResult, error) {
	const op = "orchestrator.Search"

	if topK < 1 || topK > o.cfg.MaxTopK {
		return models.RetrievalResult{}, utils.NewAppError(utils.KindInvalidTopK, op,
			"top_k must be between 1 and the configured maximum", nil)
	}
	queryVec, err := o.embedder.Embed(ctx, query, modelVersion)
	if err != nil {
		return models.RetrievalResult{}, err
	}

	stored, err := o.store.VectorsForVersion(ctx, modelVersion)
	if err != nil {
		return models.RetrievalResult{}, utils.NewAppError(utils.KindSourceUnavailable, op, "load stored vectors", err)
	}

	matches := make([]models.RetrievalMatch, 0, len(stored))
	for _, v := range stored {
		if len(v.Vector) != len(queryVec) {
			return models.RetrievalResult{}, utils.NewAppError(utils.KindDimensionMismatch, op,
				"query vector dimension does not match the stored index", nil)
		}
		matches = append(matches, models.RetrievalMatch{
			ProductID: v.ProductID,
			Score:     cosineSimilarity(queryVec, v.Vector),
			Snippet:   o.snippet(v.SourceText),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ProductID < matches[j].ProductID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}

	o.logger.Debug("similarity search served",
		"model_version", modelVersion, "top_k", topK, "candidates", len(stored))
	return models.RetrievalResult{
		Query:        query,
		ModelVersion: modelVersion,
		Matches:      matches,
	}, nil
}

// snippet truncates source text to the configured rune length.
func (o *Orchestrator) snippet(text string) string {
	if utf8.RuneCountInString(text) <= o.cfg.SnippetLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:o.cfg.SnippetLength])
}

// cosineSimilarity returns the cosine of the angle between two equal-length
// vectors, or 0 when either has zero magnitude.
func cosineSimilarity(a []float32, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
