package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/marinapark/booking-backend/internal/domain"
)

// DBPool matches the methods from *pgxpool.Pool that the repositories
// use, so tests can substitute a pgxmock pool.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UnitRepository reads bookable units and their occupancies.
type UnitRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Unit, error)
	GetByResourceID(ctx context.Context, resourceID int) (*domain.Unit, error)
	ListByRoom(ctx context.Context, roomID string) ([]*domain.Unit, error)
	ListBookingsByRoom(ctx context.Context, roomID string) (map[string][]domain.BookingEntry, error)
}

// CreateHoldParams carries everything needed to lease a unit.
type CreateHoldParams struct {
	HoldID  string
	UnitID  string
	Kind    domain.BookingKind
	OwnerID string
	Range   domain.DateRange
	TTL     time.Duration
	Now     time.Time
}

// HoldRepository manages unit leases. Create is the exclusivity point:
// it locks the unit row, expires stale holds, and checks the requested
// range against confirmed bookings and active holds in one transaction.
type HoldRepository interface {
	Create(ctx context.Context, p CreateHoldParams) (*domain.Hold, error)
	GetByID(ctx context.Context, id string) (*domain.Hold, error)
	Release(ctx context.Context, id string, status domain.HoldStatus, reason string) error
	ExpireStale(ctx context.Context, now time.Time, limit int) (int, error)
	PurgeTerminal(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

// FinalizeParams carries the hold and the order draft to commit after
// the provider accepted the booking.
type FinalizeParams struct {
	HoldID string
	Order  *domain.Order
	Now    time.Time
}

// FinalizeResult reports whether the finalize was a replay of an
// already-recorded booking.
type FinalizeResult struct {
	AlreadyExisted bool
}

// OrderRepository owns the durable booking records and the
// reconciliation bookkeeping around them.
type OrderRepository interface {
	// Finalize commits a provider-confirmed booking: records the
	// occupancy, deletes the hold, and upserts the order, list view,
	// and owner profile in one transaction. Keyed by the external
	// booking id, so replays are no-ops.
	Finalize(ctx context.Context, p FinalizeParams) (*FinalizeResult, error)

	// SavePendingSync persists a provider-confirmed booking whose local
	// finalize failed, so the reconciliation sweep can retry it. Never
	// downgrades an order that already reached synced.
	SavePendingSync(ctx context.Context, order *domain.Order, syncErr string) error

	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListPendingSync(ctx context.Context, limit int) ([]*domain.Order, error)

	// ApplyReconciliation replays the local half of the finalize for a
	// pending_local_sync order.
	ApplyReconciliation(ctx context.Context, order *domain.Order, now time.Time) error

	RecordSyncFailure(ctx context.Context, id, syncErr string) (int, error)
	MarkManualReview(ctx context.Context, id, reason string) error

	// RemoveExternalBooking frees the dates of a booking the provider
	// reports as deleted, and cancels the matching order if one exists.
	RemoveExternalBooking(ctx context.Context, externalID string, now time.Time) (bool, error)

	ListViewsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.UserBookingView, error)
}
