package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marinapark/booking-backend/internal/logger"
	"github.com/marinapark/booking-backend/internal/service"
)

// ReconcileWorkerConfig contains configuration for the reconcile worker
type ReconcileWorkerConfig struct {
	// Interval is the time between reconciliation sweeps
	Interval time.Duration
	// BatchSize is the number of pending orders to process per sweep
	BatchSize int
}

// DefaultReconcileWorkerConfig returns default configuration
func DefaultReconcileWorkerConfig() *ReconcileWorkerConfig {
	return &ReconcileWorkerConfig{
		Interval:  5 * time.Minute,
		BatchSize: 50,
	}
}

// ReconcileWorker periodically replays pending_local_sync orders.
type ReconcileWorker struct {
	reconcile service.ReconcileService
	config    *ReconcileWorkerConfig
	log       *zap.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool

	// Stats
	totalSynced       int64
	totalManualReview int64
	lastSweepTime     time.Time
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(reconcile service.ReconcileService, config *ReconcileWorkerConfig) *ReconcileWorker {
	if config == nil {
		config = DefaultReconcileWorkerConfig()
	}
	return &ReconcileWorker{
		reconcile: reconcile,
		config:    config,
		log:       logger.Get(),
		stopCh:    make(chan struct{}),
	}
}

// Start starts the reconcile worker
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("reconcile worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("starting reconcile worker",
		zap.Duration("interval", w.config.Interval),
		zap.Int("batch_size", w.config.BatchSize))

	w.wg.Add(1)
	go w.run(ctx)

	return nil
}

// Stop stops the reconcile worker
func (w *ReconcileWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("stopping reconcile worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("reconcile worker stopped")
}

func (w *ReconcileWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	// Run immediately on start
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ReconcileWorker) sweep(ctx context.Context) {
	stats, err := w.reconcile.ReconcilePending(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error("reconciliation sweep failed", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.totalSynced += int64(stats.Synced)
	w.totalManualReview += int64(stats.ManualReview)
	w.lastSweepTime = time.Now()
	w.mu.Unlock()
}

// Stats returns cumulative worker statistics
func (w *ReconcileWorker) Stats() (synced, manualReview int64, lastSweep time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalSynced, w.totalManualReview, w.lastSweepTime
}
