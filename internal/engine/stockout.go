package engine

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/szarkamarci/modularai/internal/models"
)

// StockoutConfig carries the severity boundaries of the alert engine.
// Fractions are relative to the forecast horizon: a predicted stockout inside
// the first CriticalFraction of the horizon is critical, inside
// WarningFraction it is warning, anything later is watch.
type StockoutConfig struct {
	CriticalFraction float64
	WarningFraction  float64
	TrackNegative    bool
}

// StockoutEvaluator converts forecasts and stock snapshots into alerts. It
// depletes the current stock level using the forecast's lower bound, so an
// alert means even the optimistic demand path exhausts stock.
type StockoutEvaluator struct {
	cfg    StockoutConfig
	logger *slog.Logger
}

// NewStockoutEvaluator constructs a StockoutEvaluator with defaults applied.
func NewStockoutEvaluator(cfg StockoutConfig, logger *slog.Logger) *StockoutEvaluator {
	if cfg.CriticalFraction <= 0 {
		cfg.CriticalFraction = 0.4
	}
	if cfg.WarningFraction <= cfg.CriticalFraction {
		cfg.WarningFraction = 0.6
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StockoutEvaluator{cfg: cfg, logger: logger}
}

// Evaluate walks the forecast's lower bounds against the snapshot's stock
// level and returns the resulting alert. When no stockout falls inside the
// horizon the returned alert has SeverityNone and a nil StockoutPeriod; the
// second return value reports whether the caller should persist it, which is
// true for every real alert and, when negative tracking is on, for the clean
// evaluations too.
func (e *StockoutEvaluator) Evaluate(forecast models.Forecast, snapshot models.StockSnapshot) (models.Alert, bool) {
	alert := models.Alert{
		ID:           uuid.NewString(),
		ProductID:    forecast.ProductID,
		StoreID:      forecast.StoreID,
		Severity:     models.SeverityNone,
		ForecastID:   forecast.ID,
		ModelVersion: forecast.ModelVersion,
		GeneratedAt:  time.Now().UTC(),
		StockAtRun:   snapshot.Quantity,
	}

	stock := float64(snapshot.Quantity)
	if stock < 0 {
		stock = 0
	}

	var cumulative float64
	period := 0
	var stockoutAt time.Time
	for i, p := range forecast.Points {
		cumulative += p.Lower
		// An already empty shelf is depleted in the first period even when
		// the forecast lower bound is zero.
		if cumulative >= stock && (cumulative > 0 || stock == 0) {
			period = i + 1
			stockoutAt = p.PeriodStart
			break
		}
	}

	if period == 0 {
		e.logger.Debug("no stockout within horizon",
			"product_id", forecast.ProductID, "store_id", forecast.StoreID)
		return alert, e.cfg.TrackNegative
	}

	alert.Severity = e.severityFor(period, forecast.Horizon)
	alert.StockoutPeriod = &stockoutAt
	e.logger.Info("stockout predicted",
		"product_id", forecast.ProductID,
		"store_id", forecast.StoreID,
		"period", period,
		"severity", string(alert.Severity))
	return alert, true
}

// severityFor maps the stockout period to a severity band. Boundaries round
// up so short horizons still get a non-empty critical band.
func (e *StockoutEvaluator) severityFor(period, horizon int) models.Severity {
	criticalCutoff := int(math.Ceil(float64(horizon) * e.cfg.CriticalFraction))
	warningCutoff := int(math.Ceil(float64(horizon) * e.cfg.WarningFraction))
	switch {
	case period <= criticalCutoff:
		return models.SeverityCritical
	case period <= warningCutoff:
		return models.SeverityWarning
	default:
		return models.SeverityWatch
	}
}
