package models

import "time"

// StockoutPattern is a mined summary of recurring stockout risk for one
// product, aggregated from alert history.
type StockoutPattern struct {
	ID               string
	ProductID        string
	StoreID          string
	AlertCount       int
	Prevalence       float64
	DominantSeverity Severity
	LastSeen         time.Time
}
