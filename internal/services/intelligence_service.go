package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/szarkamarci/modularai/internal/cache"
	"github.com/szarkamarci/modularai/internal/config"
	"github.com/szarkamarci/modularai/internal/engine"
	"github.com/szarkamarci/modularai/internal/insights"
	"github.com/szarkamarci/modularai/internal/metrics"
	"github.com/szarkamarci/modularai/internal/models"
	"github.com/szarkamarci/modularai/internal/retrieval"
	"github.com/szarkamarci/modularai/internal/utils"
)

// POSReader is the slice of the point-of-sale client the service depends on.
type POSReader interface {
	ReadTransactions(ctx context.Context, productID, storeID string, start, end time.Time) ([]models.TransactionRecord, error)
	LatestSnapshot(ctx context.Context, productID, storeID string) (models.StockSnapshot, error)
	ListProducts(ctx context.Context, storeID string) ([]models.Product, error)
}

// PipelineStore covers the persistence the service writes and reads.
type PipelineStore interface {
	InsertForecast(ctx context.Context, f models.Forecast) error
	LatestForecast(ctx context.Context, productID, storeID string) (models.Forecast, error)
	InsertAlert(ctx context.Context, a models.Alert) error
	ListAlerts(ctx context.Context, storeID string, since time.Time) ([]models.Alert, error)
}

// ModelResolver resolves active model versions per kind.
type ModelResolver interface {
	Active(ctx context.Context, kind models.ModelKind) (models.ModelRecord, error)
}

// Searcher answers similarity queries.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, modelVersion string) (models.RetrievalResult, error)
}

// IntelligenceService is the facade the transport layer and scheduler talk
// to. It wires the aggregator, forecaster, alert evaluator, retrieval
// orchestrator and model registry into the operations the product exposes.
type IntelligenceService struct {
	logger     *slog.Logger
	pos        POSReader
	store      PipelineStore
	registry   ModelResolver
	aggregator *engine.Aggregator
	forecaster *engine.Forecaster
	evaluator  *engine.StockoutEvaluator
	rules      *engine.RuleEngine
	searcher   Searcher
	indexer    *retrieval.Indexer
	miner      *insights.Miner
	cache      cache.Provider

	forecastCfg  config.ForecastConfig
	retrievalCfg config.RetrievalConfig

	latencies *utils.LatencyTracker
}

// IntelligenceServiceParams collects the service's collaborators.
type IntelligenceServiceParams struct {
	Logger     *slog.Logger
	POS        POSReader
	Store      PipelineStore
	Registry   ModelResolver
	Aggregator *engine.Aggregator
	Forecaster *engine.Forecaster
	Evaluator  *engine.StockoutEvaluator
	Rules      *engine.RuleEngine
	Searcher   Searcher
	Indexer    *retrieval.Indexer
	Miner      *insights.Miner
	Cache      cache.Provider

	ForecastConfig  config.ForecastConfig
	RetrievalConfig config.RetrievalConfig
}

// NewIntelligenceService constructs the service facade.
func NewIntelligenceService(p IntelligenceServiceParams) *IntelligenceService {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Cache == nil {
		p.Cache = cache.NoopProvider{}
	}
	if p.Miner == nil {
		p.Miner = insights.NewMiner(p.Logger)
	}
	return &IntelligenceService{
		logger:       p.Logger,
		pos:          p.POS,
		store:        p.Store,
		registry:     p.Registry,
		aggregator:   p.Aggregator,
		forecaster:   p.Forecaster,
		evaluator:    p.Evaluator,
		rules:        p.Rules,
		searcher:     p.Searcher,
		indexer:      p.Indexer,
		miner:        p.Miner,
		cache:        p.Cache,
		forecastCfg:  p.ForecastConfig,
		retrievalCfg: p.RetrievalConfig,
		latencies:    utils.NewLatencyTracker(1024),
	}
}

// GetForecast runs the full forecast pipeline for one product/store pair and
// persists the result. Horizon 0 selects the configured default.
func (s *IntelligenceService) GetForecast(ctx context.Context, productID, storeID string, horizon int) (models.Forecast, error) {
	const op = "service.GetForecast"

	if horizon == 0 {
		horizon = s.forecastCfg.DefaultHorizon
	}

	if s.forecastCfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.forecastCfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	forecast, err := s.runForecast(ctx, productID, storeID, horizon)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveForecast(duration, metrics.OutcomeError)
		if errors.Is(err, context.DeadlineExceeded) {
			return models.Forecast{}, utils.NewAppError(utils.KindTimeout, op, "forecast pipeline timed out", err)
		}
		return models.Forecast{}, err
	}
	s.latencies.Observe(duration)
	metrics.ObserveForecast(duration, metrics.OutcomeSuccess)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("forecast latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	return forecast, nil
}

func (s *IntelligenceService) runForecast(ctx context.Context, productID, storeID string, horizon int) (models.Forecast, error) {
	model, err := s.registry.Active(ctx, models.ModelKindForecaster)
	if err != nil {
		return models.Forecast{}, err
	}

	granularity := s.aggregator.Granularity()
	end := time.Now().UTC().Truncate(granularity)
	periods := s.forecastCfg.HistoryPeriods
	if periods <= 0 {
		periods = s.forecastCfg.SeasonLength * s.forecastCfg.MinHistoryCycles
	}
	windowStart := end.Add(-time.Duration(periods) * granularity)

	series, err := s.aggregator.BuildSeries(ctx, productID, storeID, windowStart, end)
	if err != nil {
		return models.Forecast{}, err
	}

	forecast, err := s.forecaster.Forecast(ctx, series, horizon, model.Version)
	if err != nil {
		return models.Forecast{}, err
	}

	if err := s.store.InsertForecast(ctx, forecast); err != nil {
		return models.Forecast{}, utils.NewAppError(utils.KindSourceUnavailable, "service.runForecast", "persist forecast", err)
	}
	return forecast, nil
}

// EvaluatePair forecasts a pair, evaluates stockout risk against the latest
// snapshot and persists the resulting alert. It returns the alert that was
// produced; a SeverityNone alert means the pair is currently clean.
func (s *IntelligenceService) EvaluatePair(ctx context.Context, productID, storeID string) (models.Alert, error) {
	forecast, err := s.GetForecast(ctx, productID, storeID, 0)
	if err != nil {
		return models.Alert{}, err
	}

	snapshot, err := s.pos.LatestSnapshot(ctx, productID, storeID)
	if err != nil {
		return models.Alert{}, err
	}

	alert, persist := s.evaluator.Evaluate(forecast, snapshot)
	if alert.Severity != models.SeverityNone && s.rules != nil {
		if product, perr := s.findProduct(ctx, productID, storeID); perr == nil {
			alert.Recommendations = s.rules.Recommend(alert, product)
		} else {
			s.logger.Warn("recommendations skipped", slog.Any("error", perr))
		}
	}

	if persist {
		if err := s.store.InsertAlert(ctx, alert); err != nil {
			return models.Alert{}, utils.NewAppError(utils.KindSourceUnavailable, "service.EvaluatePair", "persist alert", err)
		}
	}
	metrics.CountAlert(string(alert.Severity))
	return alert, nil
}

// GetAlerts lists persisted alerts for a store, oldest first.
func (s *IntelligenceService) GetAlerts(ctx context.Context, storeID string, since time.Time) ([]models.Alert, error) {
	const op = "service.GetAlerts"
	alerts, err := s.store.ListAlerts(ctx, storeID, since)
	if err != nil {
		return nil, utils.NewAppError(utils.KindSourceUnavailable, op, "list alerts", err)
	}
	return alerts, nil
}

// SearchProducts answers a similarity query against the active embedder
// version. Results are cached briefly keyed by query, top-k and version.
func (s *IntelligenceService) SearchProducts(ctx context.Context, query string, topK int) (models.RetrievalResult, error) {
	model, err := s.registry.Active(ctx, models.ModelKindEmbedder)
	if err != nil {
		return models.RetrievalResult{}, err
	}

	if s.retrievalCfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.retrievalCfg.Timeout)
		defer cancel()
	}

	cacheKey := "search:" + model.Version + ":" + strconv.Itoa(topK) + ":" + query
	if data, err := s.cache.Get(ctx, cacheKey); err == nil {
		var cached models.RetrievalResult
		if json.Unmarshal(data, &cached) == nil {
			return cached, nil
		}
	}

	start := time.Now()
	result, err := s.searcher.Search(ctx, query, topK, model.Version)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveSearch(duration, metrics.OutcomeError)
		if errors.Is(err, context.DeadlineExceeded) {
			return models.RetrievalResult{}, utils.NewAppError(utils.KindTimeout, "service.SearchProducts", "search timed out", err)
		}
		return models.RetrievalResult{}, err
	}
	metrics.ObserveSearch(duration, metrics.OutcomeSuccess)

	if s.retrievalCfg.ResultTTL > 0 {
		if data, merr := json.Marshal(result); merr == nil {
			if cerr := s.cache.Set(ctx, cacheKey, data, s.retrievalCfg.ResultTTL); cerr != nil {
				s.logger.Debug("search result cache write failed", slog.Any("error", cerr))
			}
		}
	}
	return result, nil
}

// SyncIndex refreshes the embedding index for a store's catalog under the
// active embedder version.
func (s *IntelligenceService) SyncIndex(ctx context.Context, storeID string) (retrieval.IndexReport, error) {
	model, err := s.registry.Active(ctx, models.ModelKindEmbedder)
	if err != nil {
		return retrieval.IndexReport{}, err
	}

	products, err := s.pos.ListProducts(ctx, storeID)
	if err != nil {
		return retrieval.IndexReport{}, err
	}

	report, err := s.indexer.Sync(ctx, products, model.Version)
	if err != nil {
		return report, err
	}
	if report.Rebuilt {
		metrics.CountIndexedVectors("rebuild", report.Embedded)
	} else {
		metrics.CountIndexedVectors("changed", report.Embedded)
	}
	return report, nil
}

// InventorySummary aggregates latest-snapshot stock state across a store's
// catalog: product counts, low and out-of-stock counts and total retail value
// of stock on hand.
func (s *IntelligenceService) InventorySummary(ctx context.Context, storeID string) (models.InventorySummary, error) {
	products, err := s.pos.ListProducts(ctx, storeID)
	if err != nil {
		return models.InventorySummary{}, err
	}

	summary := models.InventorySummary{
		StoreID:     storeID,
		GeneratedAt: time.Now().UTC(),
		TotalValue:  decimal.Zero,
	}
	for _, p := range products {
		summary.TotalProducts++
		snapshot, err := s.pos.LatestSnapshot(ctx, p.ID, storeID)
		if err != nil {
			if utils.IsKind(err, utils.KindNotFound) {
				continue
			}
			return models.InventorySummary{}, err
		}
		switch {
		case snapshot.Quantity <= 0:
			summary.OutOfStockCount++
		case snapshot.Quantity < p.MinStockThreshold:
			summary.LowStockCount++
		}
		if snapshot.Quantity > 0 {
			qty := decimal.NewFromInt(int64(snapshot.Quantity))
			summary.TotalValue = summary.TotalValue.Add(p.Price.Mul(qty))
		}
	}
	return summary, nil
}

// StockoutPatterns mines recurring stockout hotspots from a store's alert
// history since the given time.
func (s *IntelligenceService) StockoutPatterns(ctx context.Context, storeID string, since time.Time) ([]models.StockoutPattern, error) {
	alerts, err := s.GetAlerts(ctx, storeID, since)
	if err != nil {
		return nil, err
	}
	return s.miner.Mine(alerts), nil
}

// ListProducts exposes the store catalog to the scheduler and transport.
func (s *IntelligenceService) ListProducts(ctx context.Context, storeID string) ([]models.Product, error) {
	return s.pos.ListProducts(ctx, storeID)
}

// LatestForecast returns the most recently persisted forecast for a pair
// without running the pipeline.
func (s *IntelligenceService) LatestForecast(ctx context.Context, productID, storeID string) (models.Forecast, error) {
	return s.store.LatestForecast(ctx, productID, storeID)
}

// LatencyP95 returns the current p95 forecast pipeline latency.
func (s *IntelligenceService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *IntelligenceService) findProduct(ctx context.Context, productID, storeID string) (models.Product, error) {
	products, err := s.pos.ListProducts(ctx, storeID)
	if err != nil {
		return models.Product{}, err
	}
	for _, p := range products {
		if p.ID == productID {
			return p, nil
		}
	}
	return models.Product{}, utils.NewAppError(utils.KindNotFound, "service.findProduct", "product not in catalog", nil)
}
