package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/szarkamarci/modularai/internal/models"
	"github.com/szarkamarci/modularai/internal/utils"
)

// ForecasterConfig carries the tunable parameters of the demand forecaster.
type ForecasterConfig struct {
	SeasonLength     int
	MinHistoryCycles int
	MaxHorizon       int
	IntervalZ        float64
}

// Forecaster produces point demand forecasts with prediction intervals by
// decomposing history into a linear trend and a seasonal cycle. The fit is
// fully deterministic: the same series and horizon always yield the same
// numbers.
type Forecaster struct {
	cfg    ForecasterConfig
	logger *slog.Logger
}

// NewForecaster constructs a Forecaster, applying defaults for unset fields.
func NewForecaster(cfg ForecasterConfig, logger *slog.Logger) *Forecaster {
	if cfg.SeasonLength <= 0 {
		cfg.SeasonLength = 7
	}
	if cfg.MinHistoryCycles <= 0 {
		cfg.MinHistoryCycles = 2
	}
	if cfg.MaxHorizon <= 0 {
		cfg.MaxHorizon = 30
	}
	if cfg.IntervalZ <= 0 {
		cfg.IntervalZ = 1.96
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forecaster{cfg: cfg, logger: logger}
}

// Forecast fits a trend-plus-seasonality model to the series and projects it
// horizon periods past the last observed period. History shorter than
// MinHistoryCycles full seasonal cycles is rejected with InsufficientHistory.
func (f *Forecaster) Forecast(ctx context.Context, series models.DemandSeries, horizon int, modelVersion string) (models.Forecast, error) {
	const op = "forecaster.Forecast"

	if err := ctx.Err(); err != nil {
		return models.Forecast{}, utils.NewAppError(utils.KindTimeout, op, "context cancelled before fit", err)
	}
	if horizon < 1 || horizon > f.cfg.MaxHorizon {
		return models.Forecast{}, utils.NewAppError(utils.KindInvalidWindow, op,
			"horizon must be between 1 and the configured maximum", nil)
	}
	minPoints := f.cfg.SeasonLength * f.cfg.MinHistoryCycles
	if len(series.Points) < minPoints {
		return models.Forecast{}, utils.NewAppError(utils.KindInsufficientHistory, op,
			"not enough demand history to fit a seasonal model", nil)
	}

	n := len(series.Points)
	values := make([]float64, n)
	for i, p := range series.Points {
		values[i] = p.Quantity
	}

	intercept, slope := fitTrend(values)

	seasonal := seasonalIndices(values, intercept, slope, f.cfg.SeasonLength)

	sigma := residualStddev(values, intercept, slope, seasonal, f.cfg.SeasonLength)
	if !isFinite(intercept) || !isFinite(slope) || !isFinite(sigma) {
		return models.Forecast{}, utils.NewAppError(utils.KindNumericDivergence, op,
			"model fit produced a non-finite parameter", nil)
	}

	points := make([]models.ForecastPoint, horizon)
	last := series.Points[n-1].PeriodStart
	for h := 1; h <= horizon; h++ {
		t := float64(n - 1 + h)
		base := intercept + slope*t
		point := base * seasonal[(n-1+h)%f.cfg.SeasonLength]
		if !isFinite(point) {
			return models.Forecast{}, utils.NewAppError(utils.KindNumericDivergence, op,
				"projection produced a non-finite value", nil)
		}
		// Interval width grows with lead time.
		width := f.cfg.IntervalZ * sigma * math.Sqrt(float64(h))
		lower := point - width
		upper := point + width
		if point < 0 {
			point = 0
		}
		if lower < 0 {
			lower = 0
		}
		if upper < 0 {
			upper = 0
		}
		points[h-1] = models.ForecastPoint{
			PeriodStart: last.Add(time.Duration(h) * series.Granularity),
			Point:       point,
			Lower:       lower,
			Upper:       upper,
		}
	}

	forecast := models.Forecast{
		ID:           uuid.NewString(),
		ProductID:    series.ProductID,
		StoreID:      series.StoreID,
		ModelVersion: modelVersion,
		GeneratedAt:  time.Now().UTC(),
		Horizon:      horizon,
		Points:       points,
	}
	f.logger.Debug("forecast generated",
		"product_id", series.ProductID,
		"store_id", series.StoreID,
		"horizon", horizon,
		"model_version", modelVersion)
	return forecast, nil
}

// fitTrend does an ordinary least squares fit of values against their index.
func fitTrend(values []float64) (intercept, slope float64) {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return sumY / n, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return intercept, slope
}

// seasonalIndices computes a multiplicative index per seasonal position,
// the average ratio of observed demand to the trend line. Positions whose
// trend value is at or below zero fall back to a neutral index of 1.
func seasonalIndices(values []float64, intercept, slope float64, seasonLength int) []float64 {
	sums := make([]float64, seasonLength)
	counts := make([]int, seasonLength)
	for i, v := range values {
		trend := intercept + slope*float64(i)
		if trend <= 0 {
			continue
		}
		pos := i % seasonLength
		sums[pos] += v / trend
		counts[pos]++
	}
	indices := make([]float64, seasonLength)
	for pos := range indices {
		if counts[pos] == 0 {
			indices[pos] = 1
			continue
		}
		indices[pos] = sums[pos] / float64(counts[pos])
	}
	// Normalise so the indices average to 1 and the trend keeps its level.
	var total float64
	for _, idx := range indices {
		total += idx
	}
	if total > 0 {
		scale := float64(seasonLength) / total
		for pos := range indices {
			indices[pos] *= scale
		}
	}
	return indices
}

// residualStddev measures the spread of observations around the fitted model.
func residualStddev(values []float64, intercept, slope float64, seasonal []float64, seasonLength int) float64 {
	var sumSq float64
	for i, v := range values {
		fitted := (intercept + slope*float64(i)) * seasonal[i%seasonLength]
		r := v - fitted
		sumSq += r * r
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
