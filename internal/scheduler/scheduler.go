package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/szarkamarci/modularai/internal/config"
	"github.com/szarkamarci/modularai/internal/models"
	"github.com/szarkamarci/modularai/internal/retrieval"
	"github.com/szarkamarci/modularai/internal/utils"
)

// Evaluator is the slice of the service the scheduler drives.
type Evaluator interface {
	EvaluatePair(ctx context.Context, productID, storeID string) (models.Alert, error)
	SyncIndex(ctx context.Context, storeID string) (retrieval.IndexReport, error)
	ListProducts(ctx context.Context, storeID string) ([]models.Product, error)
}

// Scheduler sweeps every configured store on a fixed interval: it refreshes
// the embedding index and evaluates stockout risk for each catalog product.
// A pair still being evaluated when the next tick arrives is skipped, not
// queued, so a slow collaborator cannot pile up duplicate work.
type Scheduler struct {
	svc    Evaluator
	cfg    config.SchedulerConfig
	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New constructs a Scheduler.
func New(svc Evaluator, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		svc:      svc,
		cfg:      cfg,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval. The first
// sweep starts immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one full pass over every configured store.
func (s *Scheduler) sweep(ctx context.Context) {
	started := time.Now()
	var evaluated, skipped, failed int

	for _, storeID := range s.cfg.StoreIDs {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.svc.SyncIndex(ctx, storeID); err != nil {
			s.logger.Warn("index sync failed", slog.String("store_id", storeID), slog.Any("error", err))
		}

		products, err := s.svc.ListProducts(ctx, storeID)
		if err != nil {
			s.logger.Warn("catalog listing failed", slog.String("store_id", storeID), slog.Any("error", err))
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Parallelism)
		var mu sync.Mutex
		for _, p := range products {
			productID := p.ID
			if !s.tryLock(productID, storeID) {
				mu.Lock()
				skipped++
				mu.Unlock()
				continue
			}
			g.Go(func() error {
				defer s.unlock(productID, storeID)
				_, err := s.svc.EvaluatePair(gctx, productID, storeID)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
					if !benign(err) {
						s.logger.Warn("pair evaluation failed",
							slog.String("product_id", productID),
							slog.String("store_id", storeID),
							slog.Any("error", err))
					}
					return nil
				}
				evaluated++
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			s.logger.Warn("sweep group aborted", slog.String("store_id", storeID), slog.Any("error", err))
		}
	}

	s.logger.Info("sweep complete",
		slog.Int("evaluated", evaluated),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
		slog.Duration("took", time.Since(started)))
}

// benign reports error kinds expected during normal operation, like a
// freshly listed product with no sales history yet.
func benign(err error) bool {
	switch utils.KindOf(err) {
	case utils.KindInsufficientHistory, utils.KindNotFound:
		return true
	}
	return false
}

func (s *Scheduler) tryLock(productID, storeID string) bool {
	key := productID + "|" + storeID
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.inFlight[key]; held {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *Scheduler) unlock(productID, storeID string) {
	key := productID + "|" + storeID
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}
