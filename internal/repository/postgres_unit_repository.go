package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/marinapark/booking-backend/internal/domain"
	"github.com/marinapark/booking-backend/internal/telemetry"
)

// PostgresUnitRepository implements UnitRepository using PostgreSQL
type PostgresUnitRepository struct {
	pool DBPool
}

// NewPostgresUnitRepository creates a new PostgresUnitRepository
func NewPostgresUnitRepository(pool DBPool) *PostgresUnitRepository {
	return &PostgresUnitRepository{pool: pool}
}

const unitColumns = `id, room_id, resource_id, name, kind, price_per_night, created_at, updated_at`

func scanUnit(row pgx.Row) (*domain.Unit, error) {
	unit := &domain.Unit{}
	var kind string
	err := row.Scan(
		&unit.ID,
		&unit.RoomID,
		&unit.ResourceID,
		&unit.Name,
		&kind,
		&unit.PricePerNight,
		&unit.CreatedAt,
		&unit.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	unit.Kind = domain.BookingKind(kind)
	return unit, nil
}

// GetByID retrieves a unit by its ID
func (r *PostgresUnitRepository) GetByID(ctx context.Context, id string) (*domain.Unit, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.unit.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("unit_id", id))

	query := `SELECT ` + unitColumns + ` FROM units WHERE id = $1`

	unit, err := scanUnit(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnitNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}

	return unit, nil
}

// GetByResourceID retrieves a unit by the provider's resource id
func (r *PostgresUnitRepository) GetByResourceID(ctx context.Context, resourceID int) (*domain.Unit, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.unit.get_by_resource_id")
	defer span.End()

	span.SetAttributes(attribute.Int("resource_id", resourceID))

	query := `SELECT ` + unitColumns + ` FROM units WHERE resource_id = $1`

	unit, err := scanUnit(r.pool.QueryRow(ctx, query, resourceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnitNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get unit by resource id: %w", err)
	}

	return unit, nil
}

// ListByRoom retrieves all units belonging to a room
func (r *PostgresUnitRepository) ListByRoom(ctx context.Context, roomID string) ([]*domain.Unit, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.unit.list_by_room")
	defer span.End()

	span.SetAttributes(attribute.String("room_id", roomID))

	query := `SELECT ` + unitColumns + ` FROM units WHERE room_id = $1 ORDER BY name`

	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	var units []*domain.Unit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate units: %w", err)
	}

	if len(units) == 0 {
		return nil, domain.ErrRoomNotFound
	}

	return units, nil
}

// ListBookingsByRoom retrieves confirmed occupancies for every unit of
// a room, keyed by unit id.
func (r *PostgresUnitRepository) ListBookingsByRoom(ctx context.Context, roomID string) (map[string][]domain.BookingEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.unit.list_bookings_by_room")
	defer span.End()

	span.SetAttributes(attribute.String("room_id", roomID))

	query := `
		SELECT ub.unit_id, ub.external_booking_id, ub.start_date, ub.end_date, ub.created_at
		FROM unit_bookings ub
		JOIN units u ON u.id = ub.unit_id
		WHERE u.room_id = $1
	`

	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list room bookings: %w", err)
	}
	defer rows.Close()

	bookings := make(map[string][]domain.BookingEntry)
	for rows.Next() {
		var entry domain.BookingEntry
		if err := rows.Scan(&entry.UnitID, &entry.ExternalID, &entry.Range.Start, &entry.Range.End, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan booking entry: %w", err)
		}
		entry.Range.Start = domain.Day(entry.Range.Start)
		entry.Range.End = domain.Day(entry.Range.End)
		bookings[entry.UnitID] = append(bookings[entry.UnitID], entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate room bookings: %w", err)
	}

	return bookings, nil
}
