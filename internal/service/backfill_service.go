package service

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/campuslink/portal-api/internal/models"
)

type backfillRepository interface {
	ListMissingEmbeddings(ctx context.Context, limit int) ([]models.Event, error)
	SetEmbedding(ctx context.Context, id primitive.ObjectID, vector []float32) error
}

// BackfillConfig tunes the embedding backfill worker.
type BackfillConfig struct {
	Interval  time.Duration
	BatchSize int
	Workers   int
}

// BackfillService repairs events that were persisted without a vector,
// usually because the embedding provider was down at write time. It scans
// on an interval and fans each batch out over a small worker pool.
type BackfillService struct {
	repo       backfillRepository
	embeddings *EmbeddingService
	logger     *zap.Logger

	interval  time.Duration
	batchSize int
	workers   int

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewBackfillService constructs the worker.
func NewBackfillService(repo backfillRepository, embeddings *EmbeddingService, cfg BackfillConfig, logger *zap.Logger) *BackfillService {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackfillService{
		repo:       repo,
		embeddings: embeddings,
		logger:     logger,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		workers:    cfg.Workers,
	}
}

// Start launches the scan loop. Safe to call once; a second call is a no-op.
func (s *BackfillService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || !s.embeddings.Enabled() {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				repaired, err := s.RunOnce(ctx)
				if err != nil {
					s.logger.Warn("embedding backfill pass failed", zap.Error(err))
					continue
				}
				if repaired > 0 {
					s.logger.Info("embedding backfill pass complete", zap.Int("repaired", repaired))
				}
			}
		}
	}()
	s.logger.Sugar().Infow("embedding backfill started", "interval", s.interval, "batch", s.batchSize)
}

// Stop cancels the loop and waits for in-flight work.
func (s *BackfillService) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// RunOnce performs a single scan-and-repair pass and returns how many
// events received a vector. Per-event failures are logged and skipped so
// one bad document cannot stall the batch.
func (s *BackfillService) RunOnce(ctx context.Context) (int, error) {
	events, err := s.repo.ListMissingEmbeddings(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	work := make(chan models.Event)
	var repaired int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range work {
				vector := s.embeddings.EmbedEvent(ctx, &ev)
				if vector == nil {
					continue
				}
				if err := s.repo.SetEmbedding(ctx, ev.ID, vector); err != nil {
					s.logger.Warn("backfill write failed",
						zap.String("id", ev.ID.Hex()), zap.Error(err))
					continue
				}
				mu.Lock()
				repaired++
				mu.Unlock()
			}
		}()
	}

	for _, ev := range events {
		select {
		case <-ctx.Done():
			close(work)
			wg.Wait()
			return int(repaired), ctx.Err()
		case work <- ev:
		}
	}
	close(work)
	wg.Wait()
	return int(repaired), nil
}
