package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry read from the POS collaborator. Its text fields
// feed the embedding index; Price feeds the inventory valuation summary.
type Product struct {
	ID                string
	StoreID           string
	Name              string
	Description       string
	Category          string
	Price             decimal.Decimal
	MinStockThreshold int
}

// SourceText concatenates the fields the embedder sees for this product.
func (p Product) SourceText() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Name, p.Description, p.Category} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// EmbeddingVector is the embedded representation of one product under one
// embedder model version. Dimension is fixed per model version; a product has
// at most one active vector per version.
type EmbeddingVector struct {
	ProductID    string
	ModelVersion string
	Vector       []float32
	TextHash     string
	SourceText   string
	UpdatedAt    time.Time
}

// RetrievalMatch is one ranked catalog hit for a query.
type RetrievalMatch struct {
	ProductID string
	Score     float64
	Snippet   string
}

// RetrievalResult is the ordered outcome of a similarity search. Matches are
// sorted by descending score, ties broken by ascending product ID.
type RetrievalResult struct {
	Query        string
	ModelVersion string
	Matches      []RetrievalMatch
}

// InventorySummary aggregates latest-snapshot stock state for one store.
type InventorySummary struct {
	StoreID         string
	TotalProducts   int
	LowStockCount   int
	OutOfStockCount int
	TotalValue      decimal.Decimal
	GeneratedAt     time.Time
}
