package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/szarkamarci/modularai/internal/models"
)

func sampleForecast(id string, generatedAt time.Time) models.Forecast {
	base := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	return models.Forecast{
		ID:           id,
		ProductID:    "sku-milk-1l",
		StoreID:      "store-1",
		ModelVersion: "trend-seasonal/v1",
		GeneratedAt:  generatedAt,
		Horizon:      2,
		Points: []models.ForecastPoint{
			{PeriodStart: base, Point: 12.5, Lower: 9.1, Upper: 15.9},
			{PeriodStart: base.Add(24 * time.Hour), Point: 13.0, Lower: 9.4, Upper: 16.6},
		},
	}
}

func TestForecastRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := sampleForecast("fc-1", time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC))
	if err := store.InsertForecast(ctx, want); err != nil {
		t.Fatalf("InsertForecast: %v", err)
	}

	got, err := store.LatestForecast(ctx, "sku-milk-1l", "store-1")
	if err != nil {
		t.Fatalf("LatestForecast: %v", err)
	}
	if got.ID != want.ID || got.ModelVersion != want.ModelVersion || got.Horizon != want.Horizon {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if !got.GeneratedAt.Equal(want.GeneratedAt) {
		t.Errorf("generated_at = %v, want %v", got.GeneratedAt, want.GeneratedAt)
	}
	if len(got.Points) != 2 {
		t.Fatalf("got %d points, want 2", len(got.Points))
	}
	if got.Points[0].Point != 12.5 || got.Points[1].Upper != 16.6 {
		t.Errorf("points = %+v", got.Points)
	}
}

func TestLatestForecastPicksNewest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := sampleForecast("fc-old", time.Date(2026, 8, 27, 6, 0, 0, 0, time.UTC))
	newer := sampleForecast("fc-new", time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC))
	for _, f := range []models.Forecast{older, newer} {
		if err := store.InsertForecast(ctx, f); err != nil {
			t.Fatalf("InsertForecast %s: %v", f.ID, err)
		}
	}

	got, err := store.LatestForecast(ctx, "sku-milk-1l", "store-1")
	if err != nil {
		t.Fatalf("LatestForecast: %v", err)
	}
	if got.ID != "fc-new" {
		t.Errorf("latest forecast = %s, want fc-new", got.ID)
	}
}

func TestLatestForecastMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LatestForecast(context.Background(), "sku-unknown", "store-1")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}
