package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/marinapark/booking-backend/internal/domain"
	"github.com/marinapark/booking-backend/internal/telemetry"
)

// PostgresOrderRepository implements OrderRepository using PostgreSQL
type PostgresOrderRepository struct {
	pool DBPool
}

// NewPostgresOrderRepository creates a new PostgresOrderRepository
func NewPostgresOrderRepository(pool DBPool) *PostgresOrderRepository {
	return &PostgresOrderRepository{pool: pool}
}

const orderColumns = `id, owner_id, kind, room_id, unit_id, resource_id, start_date, end_date,
	adults, children, first_name, last_name, email, phone, license_plate,
	nights, price_per_night, total_price, status, sync_status, sync_retry_count,
	sync_error, correlation_id, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	var kind, status, syncStatus string
	err := row.Scan(
		&o.ID, &o.OwnerID, &kind, &o.RoomID, &o.UnitID, &o.ResourceID,
		&o.Range.Start, &o.Range.End,
		&o.Adults, &o.Children,
		&o.Contact.FirstName, &o.Contact.LastName, &o.Contact.Email, &o.Contact.Phone,
		&o.LicensePlate,
		&o.Nights, &o.PricePerNight, &o.TotalPrice,
		&status, &syncStatus, &o.SyncRetryCount,
		&o.SyncError, &o.CorrelationID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Kind = domain.BookingKind(kind)
	o.Status = domain.OrderStatus(status)
	o.SyncStatus = domain.SyncStatus(syncStatus)
	o.Range.Start = domain.Day(o.Range.Start)
	o.Range.End = domain.Day(o.Range.End)
	return o, nil
}

// Finalize commits a provider-confirmed booking locally. The whole
// sequence runs under the unit row lock, the same lock hold creation
// takes, so availability decisions stay serialized per unit.
func (r *PostgresOrderRepository) Finalize(ctx context.Context, p FinalizeParams) (*FinalizeResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.finalize")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", p.Order.ID),
		attribute.String("unit_id", p.Order.UnitID),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var unitID string
	err = tx.QueryRow(ctx, `SELECT id FROM units WHERE id = $1 FOR UPDATE`, p.Order.UnitID).Scan(&unitID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnitNotFound
		}
		return nil, fmt.Errorf("failed to lock unit: %w", err)
	}

	// Replay detection: the provider booking id is the identity. If the
	// occupancy is already recorded this call is a retry; refresh the
	// dependent rows and report it, never double-book.
	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM unit_bookings WHERE external_booking_id = $1)`,
		p.Order.ID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check replay: %w", err)
	}

	if !exists {
		hold, err := scanHold(tx.QueryRow(ctx, `SELECT `+holdColumns+` FROM holds WHERE id = $1 FOR UPDATE`, p.HoldID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrHoldInactive
			}
			return nil, fmt.Errorf("failed to load hold: %w", err)
		}
		if !hold.Active(p.Now) {
			return nil, domain.ErrHoldInactive
		}

		if err := checkUnitFree(ctx, tx, p.Order.UnitID, p.HoldID, p.Order.Range, p.Now); err != nil {
			return nil, err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO unit_bookings (unit_id, external_booking_id, start_date, end_date, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, p.Order.UnitID, p.Order.ID, p.Order.Range.Start, p.Order.Range.End, p.Now)
		if err != nil {
			return nil, fmt.Errorf("failed to record occupancy: %w", err)
		}

		// The lease served its purpose; the occupancy row now blocks
		// the dates.
		if _, err := tx.Exec(ctx, `DELETE FROM holds WHERE id = $1`, p.HoldID); err != nil {
			return nil, fmt.Errorf("failed to delete hold: %w", err)
		}
	}

	if err := upsertOrderTx(ctx, tx, p.Order, domain.OrderStatusConfirmed, domain.SyncStatusSynced, "", p.Now); err != nil {
		return nil, err
	}
	if err := upsertViewTx(ctx, tx, p.Order, domain.OrderStatusConfirmed, domain.SyncStatusSynced, p.Now); err != nil {
		return nil, err
	}
	if !exists && p.Order.OwnerID != "" {
		if err := bumpProfileTx(ctx, tx, p.Order.OwnerID, p.Now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to commit finalize: %w", err)
	}

	return &FinalizeResult{AlreadyExisted: exists}, nil
}

func upsertOrderTx(ctx context.Context, tx pgx.Tx, o *domain.Order, status domain.OrderStatus, syncStatus domain.SyncStatus, syncErr string, now time.Time) error {
	// A synced order is the ground truth; never downgrade it.
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (
			id, owner_id, kind, room_id, unit_id, resource_id, start_date, end_date,
			adults, children, first_name, last_name, email, phone, license_plate,
			nights, price_per_night, total_price, status, sync_status, sync_error,
			correlation_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21,
			$22, $23, $23
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			sync_status = EXCLUDED.sync_status,
			sync_error = EXCLUDED.sync_error,
			updated_at = EXCLUDED.updated_at
		WHERE orders.sync_status <> 'synced'
	`,
		o.ID, o.OwnerID, string(o.Kind), o.RoomID, o.UnitID, o.ResourceID,
		o.Range.Start, o.Range.End,
		o.Adults, o.Children,
		o.Contact.FirstName, o.Contact.LastName, o.Contact.Email, o.Contact.Phone,
		o.LicensePlate,
		o.Nights, o.PricePerNight, o.TotalPrice,
		string(status), string(syncStatus), syncErr,
		o.CorrelationID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert order: %w", err)
	}
	return nil
}

func upsertViewTx(ctx context.Context, tx pgx.Tx, o *domain.Order, status domain.OrderStatus, syncStatus domain.SyncStatus, now time.Time) error {
	if o.OwnerID == "" {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO user_booking_views (
			owner_id, order_id, kind, room_id, unit_name, start_date, end_date,
			nights, total_price, status, sync_status, created_at
		)
		SELECT $1, $2, $3, $4, u.name, $5, $6, $7, $8, $9, $10, $11
		FROM units u WHERE u.id = $12
		ON CONFLICT (owner_id, order_id) DO UPDATE SET
			status = EXCLUDED.status,
			sync_status = EXCLUDED.sync_status
	`,
		o.OwnerID, o.ID, string(o.Kind), o.RoomID,
		o.Range.Start, o.Range.End, o.Nights, o.TotalPrice,
		string(status), string(syncStatus), now, o.UnitID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert booking view: %w", err)
	}
	return nil
}

func bumpProfileTx(ctx context.Context, tx pgx.Tx, ownerID string, now time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO user_profiles (user_id, booking_count, last_booking_at, updated_at)
		VALUES ($1, 1, $2, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			booking_count = user_profiles.booking_count + 1,
			last_booking_at = EXCLUDED.last_booking_at,
			updated_at = EXCLUDED.updated_at
	`, ownerID, now)
	if err != nil {
		return fmt.Errorf("failed to bump profile: %w", err)
	}
	return nil
}

// SavePendingSync persists a provider-confirmed booking whose local
// finalize failed. The order carries the full request payload so the
// reconciliation sweep can replay the finalize from it alone.
func (r *PostgresOrderRepository) SavePendingSync(ctx context.Context, order *domain.Order, syncErr string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.save_pending_sync")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", order.ID))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := order.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if err := upsertOrderTx(ctx, tx, order, domain.OrderStatusPending, domain.SyncStatusPendingLocal, syncErr, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := upsertViewTx(ctx, tx, order, domain.OrderStatusPending, domain.SyncStatusPendingLocal, now); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pending sync order: %w", err)
	}

	return nil
}

// GetByID retrieves an order by the external booking id
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", id))

	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return order, nil
}

// ListPendingSync returns orders awaiting local reconciliation, oldest
// first.
func (r *PostgresOrderRepository) ListPendingSync(ctx context.Context, limit int) ([]*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.list_pending_sync")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE sync_status = 'pending_local_sync'
		ORDER BY updated_at
		LIMIT $1
	`, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list pending sync orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	return orders, nil
}

// ApplyReconciliation replays the local half of the finalize for a
// pending_local_sync order. Unit-gone and booking-overlap failures are
// returned as their domain errors so the sweep can route the order to
// manual review; an overlap with a live hold comes back as the
// retryable ErrHoldConflict instead, since the hold settles or expires
// on its own.
func (r *PostgresOrderRepository) ApplyReconciliation(ctx context.Context, order *domain.Order, now time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.apply_reconciliation")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", order.ID))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var unitID string
	err = tx.QueryRow(ctx, `SELECT id FROM units WHERE id = $1 FOR UPDATE`, order.UnitID).Scan(&unitID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrUnitNotFound
		}
		return fmt.Errorf("failed to lock unit: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM unit_bookings WHERE external_booking_id = $1)`,
		order.ID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check replay: %w", err)
	}

	if !exists {
		if err := checkUnitFree(ctx, tx, order.UnitID, "", order.Range, now); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO unit_bookings (unit_id, external_booking_id, start_date, end_date, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, order.UnitID, order.ID, order.Range.Start, order.Range.End, now)
		if err != nil {
			return fmt.Errorf("failed to record occupancy: %w", err)
		}

		if order.OwnerID != "" {
			if err := bumpProfileTx(ctx, tx, order.OwnerID, now); err != nil {
				return err
			}
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = 'confirmed', sync_status = 'synced', sync_error = '', updated_at = $2
		WHERE id = $1
	`, order.ID, now)
	if err != nil {
		return fmt.Errorf("failed to mark order synced: %w", err)
	}

	if order.OwnerID != "" {
		_, err = tx.Exec(ctx, `
			UPDATE user_booking_views
			SET status = 'confirmed', sync_status = 'synced'
			WHERE owner_id = $1 AND order_id = $2
		`, order.OwnerID, order.ID)
		if err != nil {
			return fmt.Errorf("failed to update booking view: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to commit reconciliation: %w", err)
	}

	return nil
}

// RecordSyncFailure increments the retry counter after a transient
// reconciliation failure and returns the new count.
func (r *PostgresOrderRepository) RecordSyncFailure(ctx context.Context, id, syncErr string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.record_sync_failure")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", id))

	var count int
	err := r.pool.QueryRow(ctx, `
		UPDATE orders
		SET sync_retry_count = sync_retry_count + 1, sync_error = $2, updated_at = now()
		WHERE id = $1
		RETURNING sync_retry_count
	`, id, syncErr).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrOrderNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to record sync failure: %w", err)
	}

	return count, nil
}

// MarkManualReview parks an order for operator attention. The booking
// is real at the provider, so it must never be silently dropped.
func (r *PostgresOrderRepository) MarkManualReview(ctx context.Context, id, reason string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.mark_manual_review")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", id))

	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET sync_status = 'failed_manual_review', sync_error = $2, updated_at = now()
		WHERE id = $1
	`, id, reason)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to mark manual review: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

// RemoveExternalBooking frees the dates of a booking the provider
// deleted. The occupancy row is found through its unique external id;
// the order, when one exists, is cancelled alongside it. Returns false
// when nothing referenced the id.
func (r *PostgresOrderRepository) RemoveExternalBooking(ctx context.Context, externalID string, now time.Time) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.remove_external_booking")
	defer span.End()

	span.SetAttributes(attribute.String("external_booking_id", externalID))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM unit_bookings WHERE external_booking_id = $1`, externalID)
	if err != nil {
		return false, fmt.Errorf("failed to delete occupancy: %w", err)
	}
	removed := tag.RowsAffected() > 0

	tag, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND status <> 'cancelled'
	`, externalID, now)
	if err != nil {
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}
	removed = removed || tag.RowsAffected() > 0

	_, err = tx.Exec(ctx, `
		UPDATE user_booking_views SET status = 'cancelled' WHERE order_id = $1
	`, externalID)
	if err != nil {
		return false, fmt.Errorf("failed to update booking views: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to commit removal: %w", err)
	}

	return removed, nil
}

// ListViewsByOwner returns a user's bookings, newest first.
func (r *PostgresOrderRepository) ListViewsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.UserBookingView, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.list_views_by_owner")
	defer span.End()

	span.SetAttributes(attribute.String("owner_id", ownerID))

	rows, err := r.pool.Query(ctx, `
		SELECT owner_id, order_id, kind, room_id, unit_name, start_date, end_date,
			nights, total_price, status, sync_status, created_at
		FROM user_booking_views
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list booking views: %w", err)
	}
	defer rows.Close()

	var views []*domain.UserBookingView
	for rows.Next() {
		v := &domain.UserBookingView{}
		var kind, status, syncStatus string
		err := rows.Scan(
			&v.OwnerID, &v.OrderID, &kind, &v.RoomID, &v.UnitName,
			&v.Range.Start, &v.Range.End, &v.Nights, &v.TotalPrice,
			&status, &syncStatus, &v.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking view: %w", err)
		}
		v.Kind = domain.BookingKind(kind)
		v.Status = domain.OrderStatus(status)
		v.SyncStatus = domain.SyncStatus(syncStatus)
		v.Range.Start = domain.Day(v.Range.Start)
		v.Range.End = domain.Day(v.Range.End)
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate booking views: %w", err)
	}

	return views, nil
}
