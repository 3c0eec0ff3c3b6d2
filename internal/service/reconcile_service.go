package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/marinapark/booking-backend/internal/clock"
	"github.com/marinapark/booking-backend/internal/domain"
	"github.com/marinapark/booking-backend/internal/logger"
	"github.com/marinapark/booking-backend/internal/repository"
	"github.com/marinapark/booking-backend/internal/telemetry"
)

// ReconcileStats summarizes one reconciliation sweep.
type ReconcileStats struct {
	Scanned      int
	Synced       int
	Retried      int
	ManualReview int
}

// ReconcileService replays the local half of bookings the provider
// confirmed but the local finalize lost.
type ReconcileService interface {
	ReconcilePending(ctx context.Context, limit int) (*ReconcileStats, error)
}

type reconcileService struct {
	orderRepo   repository.OrderRepository
	publisher   EventPublisher
	clk         clock.Clock
	retryBudget int
	log         *zap.Logger
}

// NewReconcileService creates a new ReconcileService
func NewReconcileService(orderRepo repository.OrderRepository, publisher EventPublisher, clk clock.Clock, retryBudget int) ReconcileService {
	if clk == nil {
		clk = clock.New()
	}
	if retryBudget <= 0 {
		retryBudget = 5
	}
	return &reconcileService{
		orderRepo:   orderRepo,
		publisher:   publisher,
		clk:         clk,
		retryBudget: retryBudget,
		log:         logger.Get(),
	}
}

// ReconcilePending processes up to limit pending_local_sync orders.
// Terminal failures (unusable payload, unit gone, dates taken by
// someone else) go straight to manual review; transient failures burn
// one retry from the budget and stay queued.
func (s *reconcileService) ReconcilePending(ctx context.Context, limit int) (*ReconcileStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconcile.pending")
	defer span.End()

	orders, err := s.orderRepo.ListPendingSync(ctx, limit)
	if err != nil {
		return nil, err
	}

	stats := &ReconcileStats{Scanned: len(orders)}
	for _, order := range orders {
		s.reconcileOne(ctx, order, stats)
	}

	if stats.Scanned > 0 {
		s.log.Info("reconciliation sweep finished",
			zap.Int("scanned", stats.Scanned),
			zap.Int("synced", stats.Synced),
			zap.Int("retried", stats.Retried),
			zap.Int("manual_review", stats.ManualReview))
	}

	return stats, nil
}

func (s *reconcileService) reconcileOne(ctx context.Context, order *domain.Order, stats *ReconcileStats) {
	if reason, ok := invalidPayloadReason(order); ok {
		s.toManualReview(ctx, order, "stored payload unusable: "+reason, stats)
		return
	}

	err := s.orderRepo.ApplyReconciliation(ctx, order, s.clk.Now())
	switch {
	case err == nil:
		stats.Synced++
		order.Status = domain.OrderStatusConfirmed
		order.SyncStatus = domain.SyncStatusSynced
		_ = s.publisher.PublishBookingEvent(ctx, EventBookingReconciled, order)
		s.log.Info("order reconciled",
			zap.String("booking_id", order.ID),
			zap.String("correlation_id", order.CorrelationID))

	case errors.Is(err, domain.ErrUnitNotFound):
		s.toManualReview(ctx, order, "unit no longer exists", stats)

	case errors.Is(err, domain.ErrHoldConflict):
		// A live hold blocks the dates only until it settles or
		// expires, so this is not a terminal conflict yet.
		s.retryLater(ctx, order, err, stats)

	case errors.Is(err, domain.ErrDateConflict):
		// The dates were given away while the order sat in the queue.
		// The provider booking is real, so an operator has to untangle
		// the double allocation.
		s.toManualReview(ctx, order, "dates conflict with a later booking", stats)

	default:
		s.retryLater(ctx, order, err, stats)
	}
}

// retryLater burns one retry from the order's budget and leaves it
// queued, parking it once the budget runs out.
func (s *reconcileService) retryLater(ctx context.Context, order *domain.Order, cause error, stats *ReconcileStats) {
	count, err := s.orderRepo.RecordSyncFailure(ctx, order.ID, cause.Error())
	if err != nil {
		s.log.Error("failed to record sync failure",
			zap.String("booking_id", order.ID),
			zap.Error(err))
		return
	}
	if count >= s.retryBudget {
		s.toManualReview(ctx, order, "retry budget exhausted: "+cause.Error(), stats)
		return
	}
	stats.Retried++
	s.log.Warn("reconciliation attempt failed, will retry",
		zap.String("booking_id", order.ID),
		zap.Int("retry_count", count),
		zap.Error(cause))
}

func (s *reconcileService) toManualReview(ctx context.Context, order *domain.Order, reason string, stats *ReconcileStats) {
	if err := s.orderRepo.MarkManualReview(ctx, order.ID, reason); err != nil {
		s.log.Error("failed to mark order for manual review",
			zap.String("booking_id", order.ID),
			zap.Error(err))
		return
	}
	stats.ManualReview++
	s.log.Error("order parked for manual review",
		zap.String("booking_id", order.ID),
		zap.String("reason", reason))
}

// invalidPayloadReason rejects stored orders the replay cannot act on.
func invalidPayloadReason(order *domain.Order) (string, bool) {
	switch {
	case order.ID == "":
		return "missing booking id", true
	case order.UnitID == "":
		return "missing unit id", true
	case !order.Range.Start.Before(order.Range.End):
		return "invalid date range", true
	case order.Nights <= 0:
		return "invalid night count", true
	}
	return "", false
}
