package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marinapark/booking-backend/internal/clock"
	"github.com/marinapark/booking-backend/internal/logger"
	"github.com/marinapark/booking-backend/internal/repository"
)

// HoldGCWorkerConfig contains configuration for the hold GC worker
type HoldGCWorkerConfig struct {
	// ExpiryInterval is the time between stale-hold sweeps
	ExpiryInterval time.Duration
	// PurgeInterval is the time between terminal-hold purges
	PurgeInterval time.Duration
	// RetentionWindow is how long terminal holds are kept before purge
	RetentionWindow time.Duration
	// BatchSize is the maximum number of holds touched per sweep
	BatchSize int
}

// DefaultHoldGCWorkerConfig returns default configuration
func DefaultHoldGCWorkerConfig() *HoldGCWorkerConfig {
	return &HoldGCWorkerConfig{
		ExpiryInterval:  10 * time.Minute,
		PurgeInterval:   1 * time.Hour,
		RetentionWindow: 30 * 24 * time.Hour,
		BatchSize:       200,
	}
}

// HoldGCWorker expires stale pending holds and purges old terminal ones.
// Expiry is a safety net behind the inline expiry done at hold creation,
// so abandoned units do not stay blocked until someone else tries them.
type HoldGCWorker struct {
	holds   repository.HoldRepository
	clk     clock.Clock
	config  *HoldGCWorkerConfig
	log     *zap.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// Stats
	totalExpired  int64
	totalPurged   int64
	lastSweepTime time.Time
}

// NewHoldGCWorker creates a new hold GC worker
func NewHoldGCWorker(holds repository.HoldRepository, clk clock.Clock, config *HoldGCWorkerConfig) *HoldGCWorker {
	if config == nil {
		config = DefaultHoldGCWorkerConfig()
	}
	return &HoldGCWorker{
		holds:  holds,
		clk:    clk,
		config: config,
		log:    logger.Get(),
		stopCh: make(chan struct{}),
	}
}

// Start starts the hold GC worker
func (w *HoldGCWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("hold GC worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("starting hold GC worker",
		zap.Duration("expiry_interval", w.config.ExpiryInterval),
		zap.Duration("purge_interval", w.config.PurgeInterval),
		zap.Duration("retention_window", w.config.RetentionWindow))

	w.wg.Add(2)
	go w.runExpiry(ctx)
	go w.runPurge(ctx)

	return nil
}

// Stop stops the hold GC worker
func (w *HoldGCWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("stopping hold GC worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("hold GC worker stopped")
}

func (w *HoldGCWorker) runExpiry(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ExpiryInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.expireSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.expireSweep(ctx)
		}
	}
}

func (w *HoldGCWorker) runPurge(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.purgeSweep(ctx)
		}
	}
}

func (w *HoldGCWorker) expireSweep(ctx context.Context) {
	expired, err := w.holds.ExpireStale(ctx, w.clk.Now(), w.config.BatchSize)
	if err != nil {
		w.log.Error("hold expiry sweep failed", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.totalExpired += int64(expired)
	w.lastSweepTime = time.Now()
	w.mu.Unlock()

	if expired > 0 {
		w.log.Info("expired stale holds", zap.Int("count", expired))
	}
}

func (w *HoldGCWorker) purgeSweep(ctx context.Context) {
	cutoff := w.clk.Now().Add(-w.config.RetentionWindow)
	purged, err := w.holds.PurgeTerminal(ctx, cutoff, w.config.BatchSize)
	if err != nil {
		w.log.Error("hold purge sweep failed", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.totalPurged += int64(purged)
	w.mu.Unlock()

	if purged > 0 {
		w.log.Info("purged terminal holds", zap.Int("count", purged))
	}
}

// Stats returns cumulative worker statistics
func (w *HoldGCWorker) Stats() (expired, purged int64, lastSweep time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalExpired, w.totalPurged, w.lastSweepTime
}
