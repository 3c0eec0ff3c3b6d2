package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/marinapark/booking-backend/internal/domain"
)

func newUnitRepo(t *testing.T) (*PostgresUnitRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewPostgresUnitRepository(mock), mock
}

var unitColumnNames = []string{
	"id", "room_id", "resource_id", "name", "kind", "price_per_night", "created_at", "updated_at",
}

func unitRow(id, roomID string, resourceID int, kind string) []any {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []any{id, roomID, resourceID, "Seaview Double", kind, int64(12000), created, created}
}

func TestPostgresUnitRepository_GetByID(t *testing.T) {
	repo, mock := newUnitRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM units WHERE id = \$1`).
		WithArgs("unit-001").
		WillReturnRows(pgxmock.NewRows(unitColumnNames).AddRow(unitRow("unit-001", "room-001", 42, "room")...))

	unit, err := repo.GetByID(context.Background(), "unit-001")
	if err != nil {
		t.Fatalf("GetByID() unexpected error = %v", err)
	}
	if unit.Kind != domain.KindRoom || unit.ResourceID != 42 {
		t.Errorf("unit = %+v, want room resource 42", unit)
	}

	mock.ExpectQuery(`SELECT .+ FROM units WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(unitColumnNames))

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, domain.ErrUnitNotFound) {
		t.Errorf("GetByID() error = %v, want ErrUnitNotFound", err)
	}
}

func TestPostgresUnitRepository_GetByResourceID(t *testing.T) {
	repo, mock := newUnitRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM units WHERE resource_id = \$1`).
		WithArgs(42).
		WillReturnRows(pgxmock.NewRows(unitColumnNames).AddRow(unitRow("unit-001", "room-001", 42, "camping")...))

	unit, err := repo.GetByResourceID(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetByResourceID() unexpected error = %v", err)
	}
	if unit.Kind != domain.KindCamping {
		t.Errorf("kind = %q, want camping", unit.Kind)
	}
}

func TestPostgresUnitRepository_ListByRoom(t *testing.T) {
	t.Run("returns units", func(t *testing.T) {
		repo, mock := newUnitRepo(t)

		mock.ExpectQuery(`SELECT .+ FROM units WHERE room_id = \$1`).
			WithArgs("room-001").
			WillReturnRows(pgxmock.NewRows(unitColumnNames).
				AddRow(unitRow("unit-001", "room-001", 42, "room")...).
				AddRow(unitRow("unit-002", "room-001", 43, "room")...))

		units, err := repo.ListByRoom(context.Background(), "room-001")
		if err != nil {
			t.Fatalf("ListByRoom() unexpected error = %v", err)
		}
		if len(units) != 2 {
			t.Errorf("units = %d, want 2", len(units))
		}
	})

	t.Run("unknown room", func(t *testing.T) {
		repo, mock := newUnitRepo(t)

		mock.ExpectQuery(`SELECT .+ FROM units WHERE room_id = \$1`).
			WithArgs("room-999").
			WillReturnRows(pgxmock.NewRows(unitColumnNames))

		_, err := repo.ListByRoom(context.Background(), "room-999")
		if !errors.Is(err, domain.ErrRoomNotFound) {
			t.Errorf("ListByRoom() error = %v, want ErrRoomNotFound", err)
		}
	})
}

func TestPostgresUnitRepository_ListBookingsByRoom(t *testing.T) {
	repo, mock := newUnitRepo(t)
	created := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT ub.unit_id, ub.external_booking_id`).
		WithArgs("room-001").
		WillReturnRows(pgxmock.NewRows([]string{"unit_id", "external_booking_id", "start_date", "end_date", "created_at"}).
			AddRow("unit-001", "98765",
				time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 7, 13, 0, 0, 0, 0, time.UTC), created).
			AddRow("unit-001", "98766",
				time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC), time.Date(2026, 7, 22, 0, 0, 0, 0, time.UTC), created).
			AddRow("unit-002", "98767",
				time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 7, 12, 0, 0, 0, 0, time.UTC), created))

	bookings, err := repo.ListBookingsByRoom(context.Background(), "room-001")
	if err != nil {
		t.Fatalf("ListBookingsByRoom() unexpected error = %v", err)
	}
	if len(bookings["unit-001"]) != 2 || len(bookings["unit-002"]) != 1 {
		t.Errorf("bookings = %+v, want 2 entries for unit-001 and 1 for unit-002", bookings)
	}
	if bookings["unit-001"][0].ExternalID != "98765" {
		t.Errorf("external id = %q, want 98765", bookings["unit-001"][0].ExternalID)
	}
}
