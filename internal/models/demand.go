package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRecord is a single point-of-sale event read from the POS collaborator.
type TransactionRecord struct {
	Timestamp time.Time
	ProductID string
	StoreID   string
	Quantity  int
	UnitPrice decimal.Decimal
	Amount    decimal.Decimal
}

// DemandPoint is one observed period in a demand series.
type DemandPoint struct {
	PeriodStart time.Time
	Quantity    float64
}

// DemandSeries is a contiguous, gap-free sequence of per-period demand for one
// product/store pair. Periods are strictly increasing by Granularity; periods
// with no matching transactions are present with zero quantity.
type DemandSeries struct {
	ProductID   string
	StoreID     string
	Granularity time.Duration
	Points      []DemandPoint
}

// Len returns the number of periods in the series.
func (s DemandSeries) Len() int { return len(s.Points) }

// ForecastPoint is a single projected period with its prediction interval.
type ForecastPoint struct {
	PeriodStart time.Time
	Point       float64
	Lower       float64
	Upper       float64
}

// Forecast is the write-once output of a forecaster run. Bounds satisfy
// Lower <= Point <= Upper and all three are non-negative for every period.
type Forecast struct {
	ID           string
	ProductID    string
	StoreID      string
	ModelVersion string
	GeneratedAt  time.Time
	Horizon      int
	Points       []ForecastPoint
}

// StockSnapshot is the latest observed on-hand quantity for a product/store
// pair. Owned by the external inventory collaborator; the core only reads it.
type StockSnapshot struct {
	ProductID  string
	StoreID    string
	ObservedAt time.Time
	Quantity   int
}

// Severity classifies stockout risk.
type Severity string

const (
	// SeverityNone marks an explicit "no risk" evaluation record.
	SeverityNone     Severity = "none"
	SeverityWatch    Severity = "watch"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is an immutable stockout risk record. A new evaluation always produces
// a new record; prior records are never mutated.
type Alert struct {
	ID              string
	ProductID       string
	StoreID         string
	Severity        Severity
	ForecastID      string
	ModelVersion    string
	GeneratedAt     time.Time
	StockoutPeriod  *time.Time
	StockAtRun      int
	Recommendations []string
}
