package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/szarkamarci/modularai/internal/models"
	"github.com/szarkamarci/modularai/internal/storage"
	"github.com/szarkamarci/modularai/internal/utils"
)

type fakeModelStore struct {
	mu      sync.Mutex
	records map[string]models.ModelRecord // keyed by kind|version
	loads   int
}

func newFakeModelStore() *fakeModelStore {
	return &fakeModelStore{records: make(map[string]models.ModelRecord)}
}

func key(kind models.ModelKind, version string) string { return string(kind) + "|" + version }

func (f *fakeModelStore) ActiveModel(_ context.Context, kind models.ModelKind) (models.ModelRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	for _, rec := range f.records {
		if rec.Kind == kind && rec.Status == models.ModelStatusActive {
			return rec, nil
		}
	}
	return models.ModelRecord{}, storage.ErrNoActiveModel
}

func (f *fakeModelStore) RegisterModel(_ context.Context, rec models.ModelRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[key(rec.Kind, rec.Version)] = rec
	return nil
}

func (f *fakeModelStore) PromoteModel(_ context.Context, kind models.ModelKind, version string, builtAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, rec := range f.records {
		if rec.Kind == kind && rec.Status == models.ModelStatusActive {
			rec.Status = models.ModelStatusRetired
			f.records[k] = rec
		}
	}
	f.records[key(kind, version)] = models.ModelRecord{
		Kind: kind, Version: version, BuiltAt: builtAt, Status: models.ModelStatusActive,
	}
	return nil
}

func (f *fakeModelStore) ListModels(_ context.Context, kind models.ModelKind) ([]models.ModelRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ModelRecord
	for _, rec := range f.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out, nil
}

func TestActiveWithoutPromotionIsModelUnavailable(t *testing.T) {
	reg := New(newFakeModelStore(), nil)

	_, err := reg.Active(context.Background(), models.ModelKindForecaster)
	if !utils.IsKind(err, utils.KindModelUnavailable) {
		t.Fatalf("expected ModelUnavailable, got %v", err)
	}
}

func TestPromoteRetiresPreviousActive(t *testing.T) {
	store := newFakeModelStore()
	reg := New(store, nil)
	ctx := context.Background()

	if _, err := reg.Promote(ctx, models.ModelKindForecaster, "v1"); err != nil {
		t.Fatalf("promote v1: %v", err)
	}
	if _, err := reg.Promote(ctx, models.ModelKindForecaster, "v2"); err != nil {
		t.Fatalf("promote v2: %v", err)
	}

	rec, err := reg.Active(ctx, models.ModelKindForecaster)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if rec.Version != "v2" {
		t.Fatalf("expected v2 active, got %s", rec.Version)
	}

	activeCount := 0
	records, _ := store.ListModels(ctx, models.ModelKindForecaster)
	for _, r := range records {
		if r.Status == models.ModelStatusActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active record, got %d", activeCount)
	}
}

func TestPromoteKeepsRegisteredBuildTime(t *testing.T) {
	store := newFakeModelStore()
	reg := New(store, nil)
	ctx := context.Background()

	builtAt := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	if err := reg.Register(ctx, models.ModelRecord{
		Kind: models.ModelKindEmbedder, Version: "v1", BuiltAt: builtAt,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec, err := reg.Promote(ctx, models.ModelKindEmbedder, "v1")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if !rec.BuiltAt.Equal(builtAt) {
		t.Fatalf("promotion must keep the registered build time, got %v", rec.BuiltAt)
	}
}

func TestActiveIsCachedAcrossLookups(t *testing.T) {
	store := newFakeModelStore()
	reg := New(store, nil)
	ctx := context.Background()

	if _, err := reg.Promote(ctx, models.ModelKindForecaster, "v1"); err != nil {
		t.Fatalf("promote: %v", err)
	}
	loadsBefore := store.loads
	for i := 0; i < 5; i++ {
		if _, err := reg.Active(ctx, models.ModelKindForecaster); err != nil {
			t.Fatalf("active: %v", err)
		}
	}
	if store.loads != loadsBefore {
		t.Fatalf("repeated lookups must be served from the cache")
	}
}

func TestKindsAreIndependent(t *testing.T) {
	reg := New(newFakeModelStore(), nil)
	ctx := context.Background()

	if _, err := reg.Promote(ctx, models.ModelKindForecaster, "forecaster-v3"); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if _, err := reg.Active(ctx, models.ModelKindEmbedder); !utils.IsKind(err, utils.KindModelUnavailable) {
		t.Fatalf("embedder kind must stay unavailable, got %v", err)
	}
}

func TestConcurrentActiveAndPromote(t *testing.T) {
	reg := New(newFakeModelStore(), nil)
	ctx := context.Background()
	if _, err := reg.Promote(ctx, models.ModelKindForecaster, "v1"); err != nil {
		t.Fatalf("promote: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rec, err := reg.Active(ctx, models.ModelKindForecaster)
				if err != nil {
					t.Errorf("active: %v", err)
					return
				}
				if rec.Version != "v1" && rec.Version != "v2" {
					t.Errorf("unexpected version %s", rec.Version)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := reg.Promote(ctx, models.ModelKindForecaster, "v2"); err != nil {
			t.Errorf("promote: %v", err)
		}
	}()
	wg.Wait()
}
