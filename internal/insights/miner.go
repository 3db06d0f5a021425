package insights

import (
	"log/slog"
	"sort"
	"time"

	"github.com/szarkamarci/modularai/internal/models"
)

// Miner mines simple frequency-based stockout patterns from alert history.
// A product that keeps alerting is a replenishment hotspot regardless of what
// any single forecast says.
type Miner struct {
	logger *slog.Logger
}

// NewMiner constructs a Miner.
func NewMiner(logger *slog.Logger) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{logger: logger}
}

// Mine aggregates alerts per product and returns patterns ordered by
// prevalence. SeverityNone records are ignored; they document clean
// evaluations, not risk.
func (m *Miner) Mine(alerts []models.Alert) []models.StockoutPattern {
	if len(alerts) == 0 {
		return nil
	}

	stats := make(map[string]*productAggregate)
	total := 0
	for _, alert := range alerts {
		if alert.Severity == models.SeverityNone {
			continue
		}
		total++
		agg := ensureAggregate(stats, alert.ProductID)
		agg.storeID = alert.StoreID
		agg.count++
		agg.severityCounts[alert.Severity]++
		if alert.GeneratedAt.After(agg.lastSeen) {
			agg.lastSeen = alert.GeneratedAt
		}
	}
	if total == 0 {
		return nil
	}

	patterns := make([]models.StockoutPattern, 0, len(stats))
	for productID, agg := range stats {
		patterns = append(patterns, models.StockoutPattern{
			ID:               "pattern-" + productID,
			ProductID:        productID,
			StoreID:          agg.storeID,
			AlertCount:       agg.count,
			Prevalence:       float64(agg.count) / float64(total),
			DominantSeverity: agg.dominantSeverity(),
			LastSeen:         agg.lastSeen,
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Prevalence != patterns[j].Prevalence {
			return patterns[i].Prevalence > patterns[j].Prevalence
		}
		return patterns[i].ProductID < patterns[j].ProductID
	})
	return patterns
}

type productAggregate struct {
	storeID        string
	count          int
	lastSeen       time.Time
	severityCounts map[models.Severity]int
}

func ensureAggregate(m map[string]*productAggregate, productID string) *productAggregate {
	agg, ok := m[productID]
	if !ok {
		agg = &productAggregate{severityCounts: make(map[models.Severity]int)}
		m[productID] = agg
	}
	return agg
}

// dominantSeverity picks the most frequent severity, breaking ties toward the
// more urgent one.
func (agg *productAggregate) dominantSeverity() models.Severity {
	order := []models.Severity{models.SeverityCritical, models.SeverityWarning, models.SeverityWatch}
	best := models.SeverityWatch
	bestCount := -1
	for _, sev := range order {
		if c := agg.severityCounts[sev]; c > bestCount {
			best = sev
			bestCount = c
		}
	}
	return best
}
