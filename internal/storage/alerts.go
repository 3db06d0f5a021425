package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/szarkamarci/modularai/internal/models"
)

// InsertAlert appends an alert record. Alerts are immutable once created.
func (s *Store) InsertAlert(ctx context.Context, a models.Alert) error {
	recs, err := json.Marshal(a.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	var stockout any
	if a.StockoutPeriod != nil {
		stockout = a.StockoutPeriod.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, product_id, store_id, severity, forecast_id, model_version, generated_at, stockout_period, stock_at_run, recommendations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProductID, a.StoreID, string(a.Severity), a.ForecastID, a.ModelVersion,
		a.GeneratedAt.UTC().Format(time.RFC3339Nano), stockout, a.StockAtRun, string(recs))
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", a.ID, err)
	}
	return nil
}

// ListAlerts returns alerts for a store generated at or after since, ordered
// by generation time ascending.
func (s *Store) ListAlerts(ctx context.Context, storeID string, since time.Time) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, store_id, severity, forecast_id, model_version, generated_at, stockout_period, stock_at_run, recommendations
		FROM alerts
		WHERE store_id = ? AND generated_at >= ?
		ORDER BY generated_at ASC, id ASC`,
		storeID, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("query alerts for store %s: %w", storeID, err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var severity, generatedAt, recs string
		var stockout *string
		if err := rows.Scan(&a.ID, &a.ProductID, &a.StoreID, &severity, &a.ForecastID, &a.ModelVersion, &generatedAt, &stockout, &a.StockAtRun, &recs); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Severity = models.Severity(severity)

		t, err := time.Parse(time.RFC3339Nano, generatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse generated_at for alert %s: %w", a.ID, err)
		}
		a.GeneratedAt = t

		if stockout != nil {
			st, err := time.Parse(time.RFC3339Nano, *stockout)
			if err != nil {
				return nil, fmt.Errorf("parse stockout_period for alert %s: %w", a.ID, err)
			}
			a.StockoutPeriod = &st
		}

		if err := json.Unmarshal([]byte(recs), &a.Recommendations); err != nil {
			return nil, fmt.Errorf("unmarshal recommendations for alert %s: %w", a.ID, err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
