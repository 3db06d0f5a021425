package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful operations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed operations (pipeline or dependency issues).
	OutcomeError = "error"
)

var (
	forecastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modularai",
			Name:      "forecasts_total",
			Help:      "Total number of forecast runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	forecastDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "modularai",
			Name:      "forecast_seconds",
			Help:      "Forecast pipeline latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 10},
		},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modularai",
			Name:      "alerts_total",
			Help:      "Total number of alerts produced, partitioned by severity.",
		},
		[]string{"severity"},
	)

	searchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modularai",
			Name:      "searches_total",
			Help:      "Total number of similarity searches, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	searchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "modularai",
			Name:      "search_seconds",
			Help:      "Similarity search latency in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	indexedVectorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modularai",
			Name:      "indexed_vectors_total",
			Help:      "Product vectors written by the indexer, partitioned by reason.",
		},
		[]string{"reason"},
	)
)

// Register attaches the service collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		forecastsTotal,
		forecastDurationSeconds,
		alertsTotal,
		searchesTotal,
		searchDurationSeconds,
		indexedVectorsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveForecast records a forecast run duration and outcome label.
func ObserveForecast(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	forecastsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	forecastDurationSeconds.Observe(duration.Seconds())
}

// CountAlert records one produced alert by severity.
func CountAlert(severity string) {
	alertsTotal.WithLabelValues(severity).Inc()
}

// ObserveSearch records a similarity search duration and outcome label.
func ObserveSearch(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	searchesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	searchDurationSeconds.Observe(duration.Seconds())
}

// CountIndexedVectors records vectors written by the indexer. Reason is
// "changed" for hash invalidations and "rebuild" for full reindexes.
func CountIndexedVectors(reason string, n int) {
	if n <= 0 {
		return
	}
	indexedVectorsTotal.WithLabelValues(reason).Add(float64(n))
}
