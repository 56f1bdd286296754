package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/elo-ledger/internal/config"
	"github.com/elo-ledger/internal/domain"
	"github.com/elo-ledger/internal/redis"
)

// ProfileSource lists every stored profile
type ProfileSource interface {
	ListProfiles(ctx context.Context) ([]domain.Profile, error)
}

// RatingLoader bulk-loads ratings into the ladder
type RatingLoader interface {
	BatchSetRatings(ctx context.Context, ratings []redis.BatchRating) error
	GetCount(ctx context.Context) (int64, error)
	Reset(ctx context.Context) error
}

// SyncWorker periodically rebuilds the Redis ladder from the record store
type SyncWorker struct {
	ladder  RatingLoader
	store   ProfileSource
	config  *config.SyncConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	ladder RatingLoader,
	store ProfileSource,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		ladder: ladder,
		store:  store,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

// run is the main worker loop
func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.SyncFromStore(ctx); err != nil {
				w.logger.Error("ladder sync failed", "error", err)
			}
		}
	}
}

// SyncFromStore loads every profile's rating into the ladder. Used at
// start-up and on every tick to repair missed mirror writes. When the ladder
// ends up holding more members than the store has profiles it is cleared and
// loaded again, dropping players the store no longer knows.
func (w *SyncWorker) SyncFromStore(ctx context.Context) error {
	w.logger.Info("starting sync cycle")
	startTime := time.Now()

	profiles, err := w.store.ListProfiles(ctx)
	if err != nil {
		return err
	}

	if err := w.load(ctx, profiles); err != nil {
		return err
	}

	ranked, err := w.ladder.GetCount(ctx)
	if err != nil {
		return err
	}
	if ranked > int64(len(profiles)) {
		w.logger.Warn("ladder holds stale players, rebuilding",
			"ranked", ranked,
			"player_count", len(profiles),
		)
		if err := w.ladder.Reset(ctx); err != nil {
			return err
		}
		if err := w.load(ctx, profiles); err != nil {
			return err
		}
	}

	w.logger.Info("sync cycle completed",
		"duration", time.Since(startTime),
		"player_count", len(profiles),
		"stale_removed", max(ranked-int64(len(profiles)), 0),
	)
	return nil
}

// load pushes profiles to the ladder in batches to keep pipelines bounded
func (w *SyncWorker) load(ctx context.Context, profiles []domain.Profile) error {
	batchSize := w.config.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	batch := make([]redis.BatchRating, 0, batchSize)
	for _, p := range profiles {
		batch = append(batch, redis.BatchRating{
			Player:   p.Owner,
			Username: p.Username,
			Rating:   p.Rating,
		})

		if len(batch) >= batchSize {
			if err := w.ladder.BatchSetRatings(ctx, batch); err != nil {
				return err
			}
			batch = make([]redis.BatchRating, 0, batchSize)
		}
	}

	if len(batch) > 0 {
		return w.ladder.BatchSetRatings(ctx, batch)
	}
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
