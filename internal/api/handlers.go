package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/szarkamarci/modularai/internal/models"
	"github.com/szarkamarci/modularai/internal/retrieval"
	"github.com/szarkamarci/modularai/internal/utils"
)

const maxBodySize = 1 << 20 // 1MB

// Service is the application facade the HTTP layer exposes.
type Service interface {
	GetForecast(ctx context.Context, productID, storeID string, horizon int) (models.Forecast, error)
	GetAlerts(ctx context.Context, storeID string, since time.Time) ([]models.Alert, error)
	SearchProducts(ctx context.Context, query string, topK int) (models.RetrievalResult, error)
	InventorySummary(ctx context.Context, storeID string) (models.InventorySummary, error)
	SyncIndex(ctx context.Context, storeID string) (retrieval.IndexReport, error)
	StockoutPatterns(ctx context.Context, storeID string, since time.Time) ([]models.StockoutPattern, error)
}

// ModelAdmin covers the registry operations exposed to operators.
type ModelAdmin interface {
	Promote(ctx context.Context, kind models.ModelKind, version string) (models.ModelRecord, error)
	List(ctx context.Context, kind models.ModelKind) ([]models.ModelRecord, error)
}

// Deps collects the handler's collaborators.
type Deps struct {
	Service Service
	Models  ModelAdmin
	Logger  *slog.Logger
}

// NewHandler builds the versioned API router.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/healthz", handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/forecast", handleForecast(deps))
		r.Get("/alerts", handleAlerts(deps))
		r.Get("/search", handleSearch(deps))
		r.Get("/inventory/summary", handleInventorySummary(deps))
		r.Get("/insights/patterns", handleStockoutPatterns(deps))
		r.Post("/index/sync", handleIndexSync(deps))
		r.Get("/models", handleListModels(deps))
		r.Post("/models/promote", handlePromoteModel(deps))
	})
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type forecastPointDTO struct {
	PeriodStart time.Time `json:"period_start"`
	Point       float64   `json:"point"`
	Lower       float64   `json:"lower"`
	Upper       float64   `json:"upper"`
}

type forecastDTO struct {
	ID           string             `json:"id"`
	ProductID    string             `json:"product_id"`
	StoreID      string             `json:"store_id"`
	ModelVersion string             `json:"model_version"`
	GeneratedAt  time.Time          `json:"generated_at"`
	Horizon      int                `json:"horizon"`
	Points       []forecastPointDTO `json:"points"`
}

func handleForecast(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := r.URL.Query().Get("product_id")
		storeID := r.URL.Query().Get("store_id")
		if productID == "" || storeID == "" {
			httpError(w, http.StatusBadRequest, "product_id and store_id are required")
			return
		}
		horizon := 0
		if raw := r.URL.Query().Get("horizon"); raw != "" {
			h, err := strconv.Atoi(raw)
			if err != nil {
				httpError(w, http.StatusBadRequest, "horizon must be an integer")
				return
			}
			horizon = h
		}

		forecast, err := deps.Service.GetForecast(r.Context(), productID, storeID, horizon)
		if err != nil {
			writeAppError(w, deps.Logger, err)
			return
		}

		dto := forecastDTO{
			ID:           forecast.ID,
			ProductID:    forecast.ProductID,
			StoreID:      forecast.StoreID,
			ModelVersion: forecast.ModelVersion,
			GeneratedAt:  forecast.GeneratedAt,
			Horizon:      forecast.Horizon,
			Points:       make([]forecastPointDTO, len(forecast.Points)),
		}
		for i, p := range forecast.Points {
			dto.Points[i] = forecastPointDTO{PeriodStart: p.PeriodStart, Point: p.Point, Lower: p.Lower, Upper: p.Upper}
		}
		writeJSON(w, http.StatusOK, dto)
	}
}

type alertDTO struct {
	ID              string     `json:"id"`
	ProductID       string     `json:"product_id"`
	StoreID         string     `json:"store_id"`
	Severity        string     `json:"severity"`
	ForecastID      string     `json:"forecast_id"`
	ModelVersion    string     `json:"model_version"`
	GeneratedAt     time.Time  `json:"generated_at"`
	StockoutPeriod  *time.Time `json:"stockout_period,omitempty"`
	StockAtRun      int        `json:"stock_at_run"`
	Recommendations []string   `json:"recommendations,omitempty"`
}

func handleAlerts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID := r.URL.Query().Get("store_id")
		if storeID == "" {
			httpError(w, http.StatusBadRequest, "store_id is required")
			return
		}
		since := time.Time{}
		if raw := r.URL.Query().Get("since"); raw != "" {
			t, err := utils.ParseRFC3339(raw)
			if err != nil {
				httpError(w, http.StatusBadRequest, "since must be RFC 3339")
				return
			}
			since = t
		}

		alerts, err := deps.Service.GetAlerts(r.Context(), storeID, since)
		if err != nil {
			writeAppError(w, deps.Logger, err)
			return
		}

		out := make([]alertDTO, len(alerts))
		for i, a := range alerts {
			out[i] = alertDTO{
				ID:              a.ID,
				ProductID:       a.ProductID,
				StoreID:         a.StoreID,
				Severity:        string(a.Severity),
				ForecastID:      a.ForecastID,
				ModelVersion:    a.ModelVersion,
				GeneratedAt:     a.GeneratedAt,
				StockoutPeriod:  a.StockoutPeriod,
				StockAtRun:      a.StockAtRun,
				Recommendations: a.Recommendations,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"alerts": out})
	}
}

type matchDTO struct {
	ProductID string  `json:"product_id"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "q is required")
			return
		}
		topK := 10
		if raw := r.URL.Query().Get("top_k"); raw != "" {
			k, err := strconv.Atoi(raw)
			if err != nil {
				httpError(w, http.StatusBadRequest, "top_k must be an integer")
				return
			}
			topK = k
		}

		result, err := deps.Service.SearchProducts(r.Context(), query, topK)
		if err != nil {
			writeAppError(w, deps.Logger, err)
			return
		}

		matches := make([]matchDTO, len(result.Matches))
		for i, m := range result.Matches {
			matches[i] = matchDTO{ProductID: m.ProductID, Score: m.Score, Snippet: m.Snippet}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"query":         result.Query,
			"model_version": result.ModelVersion,
			"matches":       matches,
		})
	}
}

func handleInventorySummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID := r.URL.Query().Get("store_id")
		if storeID == "" {
			httpError(w, http.StatusBadRequest, "store_id is required")
			return
		}

		summary, err := deps.Service.InventorySummary(r.Context(), storeID)
		if err != nil {
			writeAppError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"store_id":           summary.StoreID,
			"total_products":     summary.TotalProducts,
			"low_stock_count":    summary.LowStockCount,
			"out_of_stock_count": summary.OutOfStockCount,
			"total_value":        summary.TotalValue.StringFixed(2),
			"generated_at":       summary.GeneratedAt,
		})
	}
}

type patternDTO struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	StoreID          string    `json:"store_id"`
	AlertCount       int       `json:"alert_count"`
	Prevalence       float64   `json:"prevalence"`
	DominantSeverity string    `json:"dominant_severity"`
	LastSeen         time.Time `json:"last_seen"`
}

func handleStockoutPatterns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID := r.URL.Query().Get("store_id")
		if storeID == "" {
			httpError(w, http.StatusBadRequest, "store_id is required")
			return
		}
		since := time.Time{}
		if raw := r.URL.Query().Get("since"); raw != "" {
			t, err := utils.ParseRFC3339(raw)
			if err != nil {
				httpError(w, http.StatusBadRequest, "since must be RFC 3339")
				return
			}
			since = t
		}

		patterns, err := deps.Service.StockoutPatterns(r.Context(), storeID, since)
		if err != nil {
			writeAppError(w, deps.Logger, err)
			return
		}
		out := make([]patternDTO, len(patterns))
		for i, p := range patterns {
			out[i] = patternDTO{
				ID:               p.ID,
				ProductID:        p.ProductID,
				StoreID:          p.StoreID,
				AlertCount:       p.AlertCount,
				Prevalence:       p.Prevalence,
				DominantSeverity: string(p.DominantSeverity),
				LastSeen:         p.LastSeen,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"patterns": out})
	}
}

func handleIndexSync(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID := r.URL.Query().Get("store_id")
		if storeID == "" {
			httpError(w, http.StatusBadRequest, "store_id is required")
			return
		}

		report, err := deps.Service.SyncIndex(r.Context(), storeID)
		if err != nil {
			writeAppError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"model_version": report.ModelVersion,
			"embedded":      report.Embedded,
			"skipped":       report.Skipped,
			"removed":       report.Removed,
			"rebuilt":       report.Rebuilt,
		})
	}
}

type modelRecordDTO struct {
	Kind    string    `json:"kind"`
	Version string    `json:"version"`
	BuiltAt time.Time `json:"built_at"`
	Status  string    `json:"status"`
}

func handleListModels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := parseModelKind(r.URL.Query().Get("kind"))
		if !ok {
			httpError(w, http.StatusBadRequest, "kind must be forecaster or embedder")
			return
		}

		records, err := deps.Models.List(r.Context(), kind)
		if err != nil {
			writeAppError(w, deps.Logger, err)
			return
		}
		out := make([]modelRecordDTO, len(records))
		for i, rec := range records {
			out[i] = modelRecordDTO{Kind: string(rec.Kind), Version: rec.Version, BuiltAt: rec.BuiltAt, Status: string(rec.Status)}
		}
		writeJSON(w, http.StatusOK, map[string]any{"models": out})
	}
}

type promoteRequest struct {
	Kind    string `json:"kind"`
	Version string `json:"version"`
}

func handlePromoteModel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		var req promoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		kind, ok := parseModelKind(req.Kind)
		if !ok {
			httpError(w, http.StatusBadRequest, "kind must be forecaster or embedder")
			return
		}
		if req.Version == "" {
			httpError(w, http.StatusBadRequest, "version is required")
			return
		}

		rec, err := deps.Models.Promote(r.Context(), kind, req.Version)
		if err != nil {
			writeAppError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, modelRecordDTO{
			Kind: string(rec.Kind), Version: rec.Version, BuiltAt: rec.BuiltAt, Status: string(rec.Status),
		})
	}
}

func parseModelKind(raw string) (models.ModelKind, bool) {
	switch models.ModelKind(raw) {
	case models.ModelKindForecaster:
		return models.ModelKindForecaster, true
	case models.ModelKindEmbedder:
		return models.ModelKindEmbedder, true
	}
	return "", false
}

// writeAppError maps domain error kinds to HTTP statuses. Benign conditions
// come back as client errors; dependency failures surface as 502/503.
func writeAppError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := utils.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case utils.KindInvalidWindow, utils.KindInvalidTopK:
		status = http.StatusBadRequest
	case utils.KindNotFound:
		status = http.StatusNotFound
	case utils.KindInsufficientHistory:
		status = http.StatusUnprocessableEntity
	case utils.KindModelUnavailable, utils.KindEmbedderUnavailable:
		status = http.StatusServiceUnavailable
	case utils.KindSourceUnavailable:
		status = http.StatusBadGateway
	case utils.KindTimeout:
		status = http.StatusGatewayTimeout
	case utils.KindNumericDivergence, utils.KindDimensionMismatch:
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String("kind", string(kind)), slog.Any("error", err))
	}
	writeJSON(w, status, map[string]any{"error": map[string]string{
		"kind":    string(kind),
		"message": err.Error(),
	}})
}

func httpError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]any{"error": map[string]string{
		"kind":    "bad_request",
		"message": fmt.Sprintf(format, args...),
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
