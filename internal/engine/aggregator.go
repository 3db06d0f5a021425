package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/szarkamarci/modularai/internal/models"
	"github.com/szarkamarci/modularai/internal/utils"
)

// TransactionReader defines the point-of-sale read behaviour the aggregator
// depends on.
type TransactionReader interface {
	ReadTransactions(ctx context.Context, productID, storeID string, start, end time.Time) ([]models.TransactionRecord, error)
}

// Aggregator turns raw transaction events into per-product, per-period demand
// series. It is a pure transform: identical inputs over an unchanged
// transaction log yield an identical series.
type Aggregator struct {
	reader      TransactionReader
	granularity time.Duration
}

// NewAggregator constructs an Aggregator with the given period granularity.
func NewAggregator(reader TransactionReader, granularity time.Duration) *Aggregator {
	if granularity <= 0 {
		granularity = 24 * time.Hour
	}
	return &Aggregator{reader: reader, granularity: granularity}
}

// Granularity returns the configured period length.
func (a *Aggregator) Granularity() time.Duration { return a.granularity }

// BuildSeries produces the demand series for a product/store pair over
// [start, end). The window must align to whole periods; periods with no
// matching transactions are recorded with zero quantity, never omitted, so
// downstream seasonality estimation sees every period.
func (a *Aggregator) BuildSeries(ctx context.Context, productID, storeID string, start, end time.Time) (models.DemandSeries, error) {
	const op = "aggregator.BuildSeries"

	periods, err := utils.PeriodCount(start, end, a.granularity)
	if err != nil {
		return models.DemandSeries{}, utils.NewAppError(utils.KindInvalidWindow, op, err.Error(), nil)
	}

	transactions, err := a.reader.ReadTransactions(ctx, productID, storeID, start, end)
	if err != nil {
		return models.DemandSeries{}, err
	}

	quantities := make([]float64, periods)
	for _, tx := range transactions {
		if tx.Timestamp.Before(start) || !tx.Timestamp.Before(end) {
			continue
		}
		idx := int(tx.Timestamp.Sub(start) / a.granularity)
		qty := tx.Quantity
		if qty < 0 {
			// Returns and voids reduce net demand for the period.
			quantities[idx] += float64(qty)
			continue
		}
		quantities[idx] += float64(qty)
	}

	points := make([]models.DemandPoint, periods)
	for i := range points {
		qty := quantities[i]
		if qty < 0 {
			qty = 0
		}
		points[i] = models.DemandPoint{
			PeriodStart: start.Add(time.Duration(i) * a.granularity),
			Quantity:    qty,
		}
	}

	series := models.DemandSeries{
		ProductID:   productID,
		StoreID:     storeID,
		Granularity: a.granularity,
		Points:      points,
	}
	if err := validateSeries(series); err != nil {
		return models.DemandSeries{}, fmt.Errorf("%s: %w", op, err)
	}
	return series, nil
}

// validateSeries checks the contiguity invariant: strictly increasing periods
// spaced exactly one granularity apart.
func validateSeries(s models.DemandSeries) error {
	if !sort.SliceIsSorted(s.Points, func(i, j int) bool {
		return s.Points[i].PeriodStart.Before(s.Points[j].PeriodStart)
	}) {
		return fmt.Errorf("series periods are not strictly increasing")
	}
	for i := 1; i < len(s.Points); i++ {
		if s.Points[i].PeriodStart.Sub(s.Points[i-1].PeriodStart) != s.Granularity {
			return fmt.Errorf("gap between periods %d and %d", i-1, i)
		}
	}
	return nil
}
