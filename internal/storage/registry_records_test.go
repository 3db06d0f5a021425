package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/szarkamarci/modularai/internal/models"
)

func TestActiveModelWithoutPromotion(t *testing.T) {
	store := newTestStore(t)
	_, err := store.ActiveModel(context.Background(), models.ModelKindForecaster)
	if !errors.Is(err, ErrNoActiveModel) {
		t.Fatalf("err = %v, want ErrNoActiveModel", err)
	}
}

func TestPromoteModelKeepsSingleActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	builtV1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	builtV2 := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	if err := store.PromoteModel(ctx, models.ModelKindForecaster, "trend-seasonal/v1", builtV1); err != nil {
		t.Fatalf("promote v1: %v", err)
	}
	if err := store.PromoteModel(ctx, models.ModelKindForecaster, "trend-seasonal/v2", builtV2); err != nil {
		t.Fatalf("promote v2: %v", err)
	}

	active, err := store.ActiveModel(ctx, models.ModelKindForecaster)
	if err != nil {
		t.Fatalf("ActiveModel: %v", err)
	}
	if active.Version != "trend-seasonal/v2" {
		t.Errorf("active = %s, want trend-seasonal/v2", active.Version)
	}

	records, err := store.ListModels(ctx, models.ModelKindForecaster)
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	var activeCount, retiredCount int
	for _, rec := range records {
		switch rec.Status {
		case models.ModelStatusActive:
			activeCount++
		case models.ModelStatusRetired:
			retiredCount++
		}
	}
	if activeCount != 1 || retiredCount != 1 {
		t.Errorf("active = %d retired = %d, want 1 and 1", activeCount, retiredCount)
	}
}

func TestPromoteRegisteredCandidatePreservesBuiltAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	builtAt := time.Date(2026, 8, 15, 9, 30, 0, 0, time.UTC)
	if err := store.RegisterModel(ctx, models.ModelRecord{
		Kind:    models.ModelKindEmbedder,
		Version: "embedder/v3",
		BuiltAt: builtAt,
		Status:  models.ModelStatusCandidate,
	}); err != nil {
		t.Fatalf("RegisterModel: %v", err)
	}

	if err := store.PromoteModel(ctx, models.ModelKindEmbedder, "embedder/v3", builtAt); err != nil {
		t.Fatalf("PromoteModel: %v", err)
	}

	active, err := store.ActiveModel(ctx, models.ModelKindEmbedder)
	if err != nil {
		t.Fatalf("ActiveModel: %v", err)
	}
	if !active.BuiltAt.Equal(builtAt) {
		t.Errorf("built_at = %v, want %v", active.BuiltAt, builtAt)
	}
}

func TestModelKindsAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PromoteModel(ctx, models.ModelKindForecaster, "trend-seasonal/v1", time.Now()); err != nil {
		t.Fatalf("promote forecaster: %v", err)
	}

	if _, err := store.ActiveModel(ctx, models.ModelKindEmbedder); !errors.Is(err, ErrNoActiveModel) {
		t.Fatalf("embedder err = %v, want ErrNoActiveModel", err)
	}
}
