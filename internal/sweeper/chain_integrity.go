package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/datalith/provenance-ledger/internal/adapter"
	"github.com/datalith/provenance-ledger/internal/domain"
	"github.com/datalith/provenance-ledger/internal/ledger"
	"github.com/datalith/provenance-ledger/internal/logger"
	"github.com/datalith/provenance-ledger/internal/store"
)

const SWEEP_CYCLE_INTERVAL = 15 * time.Minute // Time to sleep between sweep cycles

// ChainIntegritySweeperConfig holds configuration for the chain integrity sweeper
type ChainIntegritySweeperConfig struct {
	BatchSize      int // Datasets to audit per batch
	WorkerPoolSize int // Concurrent workers
}

// chainIntegritySweeper audits every dataset's provenance chain in the
// background, surfacing corrupted histories (broken links, duplicate roots,
// cycles) for operator investigation. It never repairs anything.
type chainIntegritySweeper struct {
	config    *ChainIntegritySweeperConfig
	store     store.Store
	chains    ledger.ChainBuilder
	pool      pond.Pool
	clock     adapter.Clock
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewChainIntegritySweeper creates a new chain integrity sweeper
func NewChainIntegritySweeper(
	config *ChainIntegritySweeperConfig,
	st store.Store,
	chains ledger.ChainBuilder,
	clock adapter.Clock,
) Sweeper {
	return &chainIntegritySweeper{
		config:    config,
		store:     st,
		chains:    chains,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the sweeper's name
func (s *chainIntegritySweeper) Name() string {
	return "chain-integrity-sweeper"
}

// Start begins the sweeper's main loop
func (s *chainIntegritySweeper) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already running")
	}
	defer func() {
		s.running.Store(false)
		close(s.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting chain integrity sweeper",
		zap.Int("batch_size", s.config.BatchSize),
		zap.Int("worker_pool_size", s.config.WorkerPoolSize),
	)

	s.pool = pond.NewPool(
		s.config.WorkerPoolSize,
		pond.WithQueueSize(s.config.BatchSize),
		pond.WithContext(ctx),
	)

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Chain integrity sweeper stopping due to context cancellation", zap.Error(ctx.Err()))
			s.cleanup()
			return nil
		case <-s.stopChan:
			logger.InfoCtx(ctx, "Chain integrity sweeper stop requested")
			s.cleanup()
			return nil
		default:
			if err := s.runSweepCycle(ctx); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.ErrorCtx(ctx, err)
				}
			}
		}
	}
}

// cleanup stops the worker pool and waits for tasks to complete
func (s *chainIntegritySweeper) cleanup() {
	if s.pool != nil {
		s.pool.StopAndWait()
	}
}

// Stop gracefully stops the sweeper with timeout support
func (s *chainIntegritySweeper) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil // Already stopped
	}

	logger.InfoCtx(ctx, "Stopping chain integrity sweeper")
	close(s.stopChan)

	select {
	case <-s.stoppedCh:
		logger.InfoCtx(ctx, "Chain integrity sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Chain integrity sweeper stop interrupted by context timeout")
		return ctx.Err()
	}
}

// runSweepCycle audits one batch of datasets
func (s *chainIntegritySweeper) runSweepCycle(ctx context.Context) error {
	startTime := s.clock.Now()

	cursor, err := s.store.GetSweepCursor(ctx)
	if err != nil {
		return fmt.Errorf("failed to get sweep cursor: %w", err)
	}

	datasetIDs, err := s.listDatasetsWithRetry(ctx, cursor)
	if err != nil {
		return fmt.Errorf("failed to list datasets: %w", err)
	}

	if len(datasetIDs) == 0 {
		// Wrapped around the keyspace; restart from the beginning next cycle
		if cursor != uuid.Nil {
			if err := s.store.SetSweepCursor(ctx, uuid.Nil); err != nil {
				logger.ErrorCtx(ctx, err)
			}
		}
		if !s.sleep(ctx, SWEEP_CYCLE_INTERVAL) {
			return ctx.Err()
		}
		return nil
	}

	logger.InfoCtx(ctx, "Auditing dataset chains", zap.Int("count", len(datasetIDs)))

	var healthyCount, corruptedCount atomic.Int32
	for _, datasetID := range datasetIDs {
		s.pool.Submit(func() {
			s.auditDataset(ctx, datasetID, &healthyCount, &corruptedCount)
		})
	}

	// Wait for the batch to complete, then recreate the pool for the next cycle
	s.pool.StopAndWait()
	s.pool = pond.NewPool(
		s.config.WorkerPoolSize,
		pond.WithQueueSize(s.config.BatchSize),
		pond.WithContext(ctx),
	)

	if err := s.store.SetSweepCursor(ctx, datasetIDs[len(datasetIDs)-1]); err != nil {
		logger.ErrorCtx(ctx, err)
	}

	logger.InfoCtx(ctx, "Sweep cycle completed",
		zap.Duration("duration", s.clock.Since(startTime)),
		zap.Int("total_audited", len(datasetIDs)),
		zap.Int32("healthy", healthyCount.Load()),
		zap.Int32("corrupted", corruptedCount.Load()),
	)

	return nil
}

// auditDataset rebuilds one dataset's chain and classifies the outcome
func (s *chainIntegritySweeper) auditDataset(ctx context.Context, datasetID uuid.UUID, healthyCount, corruptedCount *atomic.Int32) {
	_, err := s.chains.BuildChain(ctx, datasetID)
	if err == nil {
		healthyCount.Add(1)
		return
	}

	switch {
	case errors.Is(err, domain.ErrBrokenChain),
		errors.Is(err, domain.ErrMissingRoot),
		errors.Is(err, domain.ErrCycleDetected):
		corruptedCount.Add(1)
		// Corrupted histories must never be repaired here; log loudly for
		// operator investigation
		logger.ErrorCtx(ctx, fmt.Errorf("CRITICAL: corrupted provenance chain: %w", err),
			zap.String("dataset_id", datasetID.String()),
		)
	default:
		logger.WarnCtx(ctx, "Failed to audit dataset chain",
			zap.Error(err),
			zap.String("dataset_id", datasetID.String()),
		)
	}
}

// listDatasetsWithRetry pages dataset ids with exponential backoff, since a
// transient database failure should not abort the sweep cycle
func (s *chainIntegritySweeper) listDatasetsWithRetry(ctx context.Context, cursor uuid.UUID) ([]uuid.UUID, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Second
	b.MaxInterval = 1 * time.Minute
	b.MaxElapsedTime = 10 * time.Minute
	b.RandomizationFactor = 0.5 // Add jitter to prevent thundering herd

	var datasetIDs []uuid.UUID
	operation := func() error {
		ids, err := s.store.ListDatasetIDs(ctx, cursor, s.config.BatchSize)
		if err != nil {
			return err
		}
		datasetIDs = ids
		return nil
	}

	notifyOnError := func(err error, duration time.Duration) {
		logger.WarnCtx(ctx, "Dataset listing failed, retrying",
			zap.Error(err),
			zap.Duration("next_retry_in", duration),
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notifyOnError); err != nil {
		return nil, err
	}
	return datasetIDs, nil
}

// sleep sleeps for the given duration but can be interrupted by context
// cancellation or a stop request
func (s *chainIntegritySweeper) sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-s.clock.After(duration):
		return true
	case <-ctx.Done():
		return false
	case <-s.stopChan:
		return false
	}
}
