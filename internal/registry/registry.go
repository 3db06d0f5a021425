package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/szarkamarci/modularai/internal/models"
	"github.com/szarkamarci/modularai/internal/storage"
	"github.com/szarkamarci/modularai/internal/utils"
)

// ModelStore is the persistence surface behind the registry.
type ModelStore interface {
	ActiveModel(ctx context.Context, kind models.ModelKind) (models.ModelRecord, error)
	RegisterModel(ctx context.Context, rec models.ModelRecord) error
	PromoteModel(ctx context.Context, kind models.ModelKind, version string, builtAt time.Time) error
	ListModels(ctx context.Context, kind models.ModelKind) ([]models.ModelRecord, error)
}

// Registry tracks trained model versions and serves lookups of the active
// version per kind. The active record per kind is cached under a read lock so
// every pipeline run does not hit storage; Promote invalidates the cache.
// Records are handed out by value, so a run that resolved a version before a
// promotion finishes against that version.
type Registry struct {
	store  ModelStore
	logger *slog.Logger

	mu     sync.RWMutex
	active map[models.ModelKind]models.ModelRecord
}

// New constructs a Registry over the given store.
func New(store ModelStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  store,
		logger: logger,
		active: make(map[models.ModelKind]models.ModelRecord),
	}
}

// Active returns the active record for a kind. No active version maps to a
// ModelUnavailable error so callers can surface it as a benign condition.
func (r *Registry) Active(ctx context.Context, kind models.ModelKind) (models.ModelRecord, error) {
	const op = "registry.Active"

	r.mu.RLock()
	rec, ok := r.active[kind]
	r.mu.RUnlock()
	if ok {
		return rec, nil
	}

	rec, err := r.store.ActiveModel(ctx, kind)
	if errors.Is(err, storage.ErrNoActiveModel) {
		return models.ModelRecord{}, utils.NewAppError(utils.KindModelUnavailable, op,
			"no active "+string(kind)+" model version", err)
	}
	if err != nil {
		return models.ModelRecord{}, utils.NewAppError(utils.KindSourceUnavailable, op, "load active model", err)
	}

	r.mu.Lock()
	r.active[kind] = rec
	r.mu.Unlock()
	return rec, nil
}

// Register records a model version, typically as a candidate awaiting
// promotion. Registering a version never disturbs the active one.
func (r *Registry) Register(ctx context.Context, rec models.ModelRecord) error {
	const op = "registry.Register"
	if rec.Status == "" {
		rec.Status = models.ModelStatusCandidate
	}
	if rec.BuiltAt.IsZero() {
		rec.BuiltAt = time.Now().UTC()
	}
	if err := r.store.RegisterModel(ctx, rec); err != nil {
		return utils.NewAppError(utils.KindSourceUnavailable, op, "persist model record", err)
	}
	r.logger.Info("model registered", "kind", string(rec.Kind), "version", rec.Version, "status", string(rec.Status))
	return nil
}

// Promote makes version the single active record for kind. The previous
// active version is retired in the same storage transaction, so a reader
// never observes zero or two active versions.
func (r *Registry) Promote(ctx context.Context, kind models.ModelKind, version string) (models.ModelRecord, error) {
	const op = "registry.Promote"

	builtAt := time.Now().UTC()
	if existing, err := r.store.ListModels(ctx, kind); err == nil {
		for _, rec := range existing {
			if rec.Version == version {
				builtAt = rec.BuiltAt
				break
			}
		}
	}

	if err := r.store.PromoteModel(ctx, kind, version, builtAt); err != nil {
		return models.ModelRecord{}, utils.NewAppError(utils.KindSourceUnavailable, op, "promote model", err)
	}

	rec := models.ModelRecord{Kind: kind, Version: version, BuiltAt: builtAt, Status: models.ModelStatusActive}
	r.mu.Lock()
	r.active[kind] = rec
	r.mu.Unlock()

	r.logger.Info("model promoted", "kind", string(kind), "version", version)
	return rec, nil
}

// List returns every known version for a kind, newest first.
func (r *Registry) List(ctx context.Context, kind models.ModelKind) ([]models.ModelRecord, error) {
	const op = "registry.List"
	records, err := r.store.ListModels(ctx, kind)
	if err != nil {
		return nil, utils.NewAppError(utils.KindSourceUnavailable, op, "list model records", err)
	}
	return records, nil
}
