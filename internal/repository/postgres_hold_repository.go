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

// PostgresHoldRepository implements HoldRepository using PostgreSQL
type PostgresHoldRepository struct {
	pool DBPool
}

// NewPostgresHoldRepository creates a new PostgresHoldRepository
func NewPostgresHoldRepository(pool DBPool) *PostgresHoldRepository {
	return &PostgresHoldRepository{pool: pool}
}

const holdColumns = `id, unit_id, kind, owner_id, start_date, end_date, status, expires_at, failure_reason, created_at, updated_at`

func scanHold(row pgx.Row) (*domain.Hold, error) {
	h := &domain.Hold{}
	var kind, status string
	err := row.Scan(
		&h.ID,
		&h.UnitID,
		&kind,
		&h.OwnerID,
		&h.Range.Start,
		&h.Range.End,
		&status,
		&h.ExpiresAt,
		&h.FailureReason,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	h.Kind = domain.BookingKind(kind)
	h.Status = domain.HoldStatus(status)
	h.Range.Start = domain.Day(h.Range.Start)
	h.Range.End = domain.Day(h.Range.End)
	return h, nil
}

// Create leases a unit for the requested range. The unit row lock
// serializes concurrent attempts on the same unit, so the availability
// check and the hold insert are atomic.
func (r *PostgresHoldRepository) Create(ctx context.Context, p CreateHoldParams) (*domain.Hold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.hold.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("unit_id", p.UnitID),
		attribute.String("date_range", p.Range.String()),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var unitID string
	err = tx.QueryRow(ctx, `SELECT id FROM units WHERE id = $1 FOR UPDATE`, p.UnitID).Scan(&unitID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnitNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to lock unit: %w", err)
	}

	// Expire stale holds on this unit before judging availability, so
	// an abandoned hold never blocks a live request.
	_, err = tx.Exec(ctx, `
		UPDATE holds
		SET status = 'expired', updated_at = $2
		WHERE unit_id = $1 AND status = 'pending' AND expires_at <= $2
	`, p.UnitID, p.Now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale holds: %w", err)
	}

	if err := checkUnitFree(ctx, tx, p.UnitID, "", p.Range, p.Now); err != nil {
		return nil, err
	}

	hold := &domain.Hold{
		ID:        p.HoldID,
		UnitID:    p.UnitID,
		Kind:      p.Kind,
		OwnerID:   p.OwnerID,
		Range:     p.Range,
		Status:    domain.HoldStatusPending,
		ExpiresAt: p.Now.Add(p.TTL),
		CreatedAt: p.Now,
		UpdatedAt: p.Now,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO holds (id, unit_id, kind, owner_id, start_date, end_date, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		hold.ID, hold.UnitID, string(hold.Kind), hold.OwnerID,
		hold.Range.Start, hold.Range.End, string(hold.Status),
		hold.ExpiresAt, hold.CreatedAt, hold.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to insert hold: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit hold: %w", err)
	}

	return hold, nil
}

// checkUnitFree verifies r does not collide with anything blocking the
// unit. A confirmed booking overlap returns ErrDateConflict; an overlap
// with a live pending hold returns ErrHoldConflict. excludeHoldID skips
// the caller's own hold during finalize re-checks.
func checkUnitFree(ctx context.Context, tx pgx.Tx, unitID, excludeHoldID string, r domain.DateRange, now time.Time) error {
	booked, err := loadBookedRanges(ctx, tx, unitID)
	if err != nil {
		return err
	}
	for _, existing := range booked {
		if r.Overlaps(existing) {
			return domain.ErrDateConflict
		}
	}

	held, err := loadHeldRanges(ctx, tx, unitID, excludeHoldID, now)
	if err != nil {
		return err
	}
	for _, existing := range held {
		if r.Overlaps(existing) {
			return domain.ErrHoldConflict
		}
	}
	return nil
}

func loadBookedRanges(ctx context.Context, tx pgx.Tx, unitID string) ([]domain.DateRange, error) {
	rows, err := tx.Query(ctx, `SELECT start_date, end_date FROM unit_bookings WHERE unit_id = $1`, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}
	return appendRanges(nil, rows)
}

// loadHeldRanges only considers holds whose expiry is still ahead. A
// hold past its expiry never blocks capacity, whether or not the GC
// sweep has settled it yet.
func loadHeldRanges(ctx context.Context, tx pgx.Tx, unitID, excludeHoldID string, now time.Time) ([]domain.DateRange, error) {
	rows, err := tx.Query(ctx, `
		SELECT start_date, end_date FROM holds
		WHERE unit_id = $1 AND status = 'pending' AND expires_at > $2 AND id::text <> $3
	`, unitID, now, excludeHoldID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holds: %w", err)
	}
	return appendRanges(nil, rows)
}

func appendRanges(ranges []domain.DateRange, rows pgx.Rows) ([]domain.DateRange, error) {
	defer rows.Close()
	for rows.Next() {
		var r domain.DateRange
		if err := rows.Scan(&r.Start, &r.End); err != nil {
			return nil, fmt.Errorf("failed to scan range: %w", err)
		}
		r.Start = domain.Day(r.Start)
		r.End = domain.Day(r.End)
		ranges = append(ranges, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ranges: %w", err)
	}
	return ranges, nil
}

// GetByID retrieves a hold by its ID
func (r *PostgresHoldRepository) GetByID(ctx context.Context, id string) (*domain.Hold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.hold.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("hold_id", id))

	query := `SELECT ` + holdColumns + ` FROM holds WHERE id = $1`

	hold, err := scanHold(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrHoldNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get hold: %w", err)
	}

	return hold, nil
}

// Release moves a pending hold to a terminal status with a reason.
// Releasing a hold that already settled is a no-op, so callers can
// retry without checking state first.
func (r *PostgresHoldRepository) Release(ctx context.Context, id string, status domain.HoldStatus, reason string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.hold.release")
	defer span.End()

	span.SetAttributes(
		attribute.String("hold_id", id),
		attribute.String("status", string(status)),
	)

	tag, err := r.pool.Exec(ctx, `
		UPDATE holds
		SET status = $2, failure_reason = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, string(status), reason)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to release hold: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Either the hold never existed or it is already terminal;
		// only the former is an error.
		var existing string
		err := r.pool.QueryRow(ctx, `SELECT status FROM holds WHERE id = $1`, id).Scan(&existing)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrHoldNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check hold status: %w", err)
		}
	}

	return nil
}

// ExpireStale moves overdue pending holds to expired, up to limit rows.
func (r *PostgresHoldRepository) ExpireStale(ctx context.Context, now time.Time, limit int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.hold.expire_stale")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `
		UPDATE holds
		SET status = 'expired', updated_at = $1
		WHERE id IN (
			SELECT id FROM holds
			WHERE status = 'pending' AND expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)
	`, now, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to expire holds: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// PurgeTerminal deletes failed and expired holds past the retention
// window, up to limit rows.
func (r *PostgresHoldRepository) PurgeTerminal(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.hold.purge_terminal")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM holds
		WHERE id IN (
			SELECT id FROM holds
			WHERE status IN ('failed', 'expired') AND updated_at <= $1
			ORDER BY updated_at
			LIMIT $2
		)
	`, olderThan, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to purge holds: %w", err)
	}

	return int(tag.RowsAffected()), nil
}
