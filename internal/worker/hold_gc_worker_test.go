package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marinapark/booking-backend/internal/clock"
	"github.com/marinapark/booking-backend/internal/domain"
	"github.com/marinapark/booking-backend/internal/repository"
)

// stubHoldRepository counts sweep calls
type stubHoldRepository struct {
	expireCalls int64
	purgeCalls  int64
	lastCutoff  atomic.Value
}

func (s *stubHoldRepository) Create(ctx context.Context, p repository.CreateHoldParams) (*domain.Hold, error) {
	return nil, nil
}

func (s *stubHoldRepository) GetByID(ctx context.Context, id string) (*domain.Hold, error) {
	return nil, domain.ErrHoldNotFound
}

func (s *stubHoldRepository) Release(ctx context.Context, id string, status domain.HoldStatus, reason string) error {
	return nil
}

func (s *stubHoldRepository) ExpireStale(ctx context.Context, now time.Time, limit int) (int, error) {
	atomic.AddInt64(&s.expireCalls, 1)
	return 2, nil
}

func (s *stubHoldRepository) PurgeTerminal(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	atomic.AddInt64(&s.purgeCalls, 1)
	s.lastCutoff.Store(olderThan)
	return 5, nil
}

var _ repository.HoldRepository = (*stubHoldRepository)(nil)

func TestHoldGCWorker_ExpirySweepRunsImmediately(t *testing.T) {
	stub := &stubHoldRepository{}
	w := NewHoldGCWorker(stub, clock.New(), &HoldGCWorkerConfig{
		ExpiryInterval:  time.Hour,
		PurgeInterval:   time.Hour,
		RetentionWindow: 30 * 24 * time.Hour,
		BatchSize:       200,
	})

	assert.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&stub.expireCalls) == 1
	}, time.Second, 10*time.Millisecond, "expiry sweep should run without waiting for the ticker")

	expired, _, lastSweep := w.Stats()
	assert.Equal(t, int64(2), expired)
	assert.False(t, lastSweep.IsZero())
}

func TestHoldGCWorker_PurgeUsesRetentionWindow(t *testing.T) {
	stub := &stubHoldRepository{}
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewMock(now)
	w := NewHoldGCWorker(stub, clk, &HoldGCWorkerConfig{
		ExpiryInterval:  time.Hour,
		PurgeInterval:   20 * time.Millisecond,
		RetentionWindow: 30 * 24 * time.Hour,
		BatchSize:       200,
	})

	assert.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&stub.purgeCalls) >= 1
	}, time.Second, 10*time.Millisecond)

	cutoff, ok := stub.lastCutoff.Load().(time.Time)
	assert.True(t, ok)
	assert.Equal(t, now.Add(-30*24*time.Hour), cutoff)
}

func TestHoldGCWorker_DoubleStart(t *testing.T) {
	w := NewHoldGCWorker(&stubHoldRepository{}, clock.New(), nil)

	assert.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	assert.Error(t, w.Start(context.Background()))
}
