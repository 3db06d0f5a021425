package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/szarkamarci/modularai/internal/models"
)

type forecastPointRow struct {
	PeriodStart time.Time `json:"period_start"`
	Point       float64   `json:"point"`
	Lower       float64   `json:"lower"`
	Upper       float64   `json:"upper"`
}

// InsertForecast appends a forecast record. Forecasts are write-once; there is
// no update path.
func (s *Store) InsertForecast(ctx context.Context, f models.Forecast) error {
	points := make([]forecastPointRow, len(f.Points))
	for i, p := range f.Points {
		points[i] = forecastPointRow{PeriodStart: p.PeriodStart, Point: p.Point, Lower: p.Lower, Upper: p.Upper}
	}
	payload, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("marshal forecast points: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO forecasts (id, product_id, store_id, model_version, generated_at, horizon, points)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ProductID, f.StoreID, f.ModelVersion, f.GeneratedAt.UTC().Format(time.RFC3339Nano), f.Horizon, string(payload))
	if err != nil {
		return fmt.Errorf("insert forecast %s: %w", f.ID, err)
	}
	return nil
}

// LatestForecast returns the most recent forecast for a product/store pair, or
// sql.ErrNoRows wrapped when none exists.
func (s *Store) LatestForecast(ctx context.Context, productID, storeID string) (models.Forecast, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, store_id, model_version, generated_at, horizon, points
		FROM forecasts
		WHERE product_id = ? AND store_id = ?
		ORDER BY generated_at DESC
		LIMIT 1`, productID, storeID)
	return scanForecast(row)
}

func scanForecast(row *sql.Row) (models.Forecast, error) {
	var f models.Forecast
	var generatedAt, points string
	if err := row.Scan(&f.ID, &f.ProductID, &f.StoreID, &f.ModelVersion, &generatedAt, &f.Horizon, &points); err != nil {
		return models.Forecast{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, generatedAt)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("parse generated_at for forecast %s: %w", f.ID, err)
	}
	f.GeneratedAt = t

	var rows []forecastPointRow
	if err := json.Unmarshal([]byte(points), &rows); err != nil {
		return models.Forecast{}, fmt.Errorf("unmarshal points for forecast %s: %w", f.ID, err)
	}
	f.Points = make([]models.ForecastPoint, len(rows))
	for i, p := range rows {
		f.Points[i] = models.ForecastPoint{PeriodStart: p.PeriodStart, Point: p.Point, Lower: p.Lower, Upper: p.Upper}
	}
	return f, nil
}
