package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/marinapark/booking-backend/internal/domain"
)

func newOrderRepo(t *testing.T) (*PostgresOrderRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewPostgresOrderRepository(mock), mock
}

func orderRow(id string, created time.Time) []any {
	return []any{
		id, "user-001", "room", "room-001", "unit-001", 42,
		time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 7, 13, 0, 0, 0, 0, time.UTC),
		2, 0, "Ana", "Petrescu", "ana@example.com", "+40 700 000 000", "",
		3, int64(12000), int64(36000), "pending", "pending_local_sync", 1,
		"connection reset", "corr-001", created, created,
	}
}

var orderColumnNames = []string{
	"id", "owner_id", "kind", "room_id", "unit_id", "resource_id",
	"start_date", "end_date", "adults", "children",
	"first_name", "last_name", "email", "phone", "license_plate",
	"nights", "price_per_night", "total_price", "status", "sync_status",
	"sync_retry_count", "sync_error", "correlation_id", "created_at", "updated_at",
}

func TestPostgresOrderRepository_ListPendingSync(t *testing.T) {
	repo, mock := newOrderRepo(t)
	created := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM orders`).
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows(orderColumnNames).
			AddRow(orderRow("98765", created)...).
			AddRow(orderRow("98766", created.Add(time.Minute))...))

	orders, err := repo.ListPendingSync(context.Background(), 50)
	if err != nil {
		t.Fatalf("ListPendingSync() unexpected error = %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(orders))
	}
	o := orders[0]
	if o.ID != "98765" || o.SyncStatus != domain.SyncStatusPendingLocal {
		t.Errorf("order = %+v, want pending_local_sync 98765", o)
	}
	if o.Nights != 3 || o.TotalPrice != 36000 {
		t.Errorf("payload = nights %d price %d, want 3 / 36000", o.Nights, o.TotalPrice)
	}
	if got := o.Range.Start.Format(domain.DayFormat); got != "2026-07-10" {
		t.Errorf("start = %s, want 2026-07-10", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresOrderRepository_RecordSyncFailure(t *testing.T) {
	t.Run("increments counter", func(t *testing.T) {
		repo, mock := newOrderRepo(t)

		mock.ExpectQuery(`UPDATE orders`).
			WithArgs("98765", "connection refused").
			WillReturnRows(pgxmock.NewRows([]string{"sync_retry_count"}).AddRow(3))

		count, err := repo.RecordSyncFailure(context.Background(), "98765", "connection refused")
		if err != nil {
			t.Fatalf("RecordSyncFailure() unexpected error = %v", err)
		}
		if count != 3 {
			t.Errorf("count = %d, want 3", count)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		repo, mock := newOrderRepo(t)

		mock.ExpectQuery(`UPDATE orders`).
			WithArgs("missing", "boom").
			WillReturnRows(pgxmock.NewRows([]string{"sync_retry_count"}))

		_, err := repo.RecordSyncFailure(context.Background(), "missing", "boom")
		if !errors.Is(err, domain.ErrOrderNotFound) {
			t.Errorf("RecordSyncFailure() error = %v, want ErrOrderNotFound", err)
		}
	})
}

func TestPostgresOrderRepository_MarkManualReview(t *testing.T) {
	t.Run("parks the order", func(t *testing.T) {
		repo, mock := newOrderRepo(t)

		mock.ExpectExec(`UPDATE orders`).
			WithArgs("98765", "retry budget exhausted").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		if err := repo.MarkManualReview(context.Background(), "98765", "retry budget exhausted"); err != nil {
			t.Fatalf("MarkManualReview() unexpected error = %v", err)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		repo, mock := newOrderRepo(t)

		mock.ExpectExec(`UPDATE orders`).
			WithArgs("missing", "reason").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.MarkManualReview(context.Background(), "missing", "reason")
		if !errors.Is(err, domain.ErrOrderNotFound) {
			t.Errorf("MarkManualReview() error = %v, want ErrOrderNotFound", err)
		}
	})
}

func TestPostgresOrderRepository_ApplyReconciliation(t *testing.T) {
	now := time.Date(2026, 7, 1, 11, 0, 0, 0, time.UTC)
	order := &domain.Order{
		ID:      "98765",
		OwnerID: "user-001",
		UnitID:  "unit-001",
		Range:   mustRange(t, "2026-07-10", "2026-07-13"),
		Nights:  3,
	}

	t.Run("first replay records occupancy", func(t *testing.T) {
		repo, mock := newOrderRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM units WHERE id = \$1 FOR UPDATE`).
			WithArgs(order.UnitID).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("unit-001"))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(order.ID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(`SELECT start_date, end_date FROM unit_bookings`).
			WithArgs(order.UnitID).
			WillReturnRows(pgxmock.NewRows([]string{"start_date", "end_date"}))
		mock.ExpectQuery(`SELECT start_date, end_date FROM holds`).
			WithArgs(order.UnitID, now, "").
			WillReturnRows(pgxmock.NewRows([]string{"start_date", "end_date"}))
		mock.ExpectExec(`INSERT INTO unit_bookings`).
			WithArgs(order.UnitID, order.ID, order.Range.Start, order.Range.End, now).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO user_profiles`).
			WithArgs(order.OwnerID, now).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`UPDATE orders`).
			WithArgs(order.ID, now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`UPDATE user_booking_views`).
			WithArgs(order.OwnerID, order.ID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		if err := repo.ApplyReconciliation(context.Background(), order, now); err != nil {
			t.Fatalf("ApplyReconciliation() unexpected error = %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("replay after occupancy exists only refreshes the order", func(t *testing.T) {
		repo, mock := newOrderRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM units WHERE id = \$1 FOR UPDATE`).
			WithArgs(order.UnitID).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("unit-001"))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(order.ID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectExec(`UPDATE orders`).
			WithArgs(order.ID, now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`UPDATE user_booking_views`).
			WithArgs(order.OwnerID, order.ID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		if err := repo.ApplyReconciliation(context.Background(), order, now); err != nil {
			t.Fatalf("ApplyReconciliation() unexpected error = %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("unit gone", func(t *testing.T) {
		repo, mock := newOrderRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM units WHERE id = \$1 FOR UPDATE`).
			WithArgs(order.UnitID).
			WillReturnRows(pgxmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		err := repo.ApplyReconciliation(context.Background(), order, now)
		if !errors.Is(err, domain.ErrUnitNotFound) {
			t.Errorf("ApplyReconciliation() error = %v, want ErrUnitNotFound", err)
		}
	})

	t.Run("dates taken meanwhile", func(t *testing.T) {
		repo, mock := newOrderRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM units WHERE id = \$1 FOR UPDATE`).
			WithArgs(order.UnitID).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("unit-001"))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(order.ID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(`SELECT start_date, end_date FROM unit_bookings`).
			WithArgs(order.UnitID).
			WillReturnRows(pgxmock.NewRows([]string{"start_date", "end_date"}).
				AddRow(time.Date(2026, 7, 11, 0, 0, 0, 0, time.UTC), time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)))
		mock.ExpectRollback()

		err := repo.ApplyReconciliation(context.Background(), order, now)
		if !errors.Is(err, domain.ErrDateConflict) {
			t.Errorf("ApplyReconciliation() error = %v, want ErrDateConflict", err)
		}
	})

	// A pending hold the GC has not swept yet must stop blocking the
	// replay the moment its expiry passes, so the query filters on
	// expires_at instead of trusting the status column alone.
	t.Run("expired hold does not block the replay", func(t *testing.T) {
		repo, mock := newOrderRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM units WHERE id = \$1 FOR UPDATE`).
			WithArgs(order.UnitID).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("unit-001"))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(order.ID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(`SELECT start_date, end_date FROM unit_bookings`).
			WithArgs(order.UnitID).
			WillReturnRows(pgxmock.NewRows([]string{"start_date", "end_date"}))
		mock.ExpectQuery(`FROM holds\s+WHERE unit_id = \$1 AND status = 'pending' AND expires_at > \$2`).
			WithArgs(order.UnitID, now, "").
			WillReturnRows(pgxmock.NewRows([]string{"start_date", "end_date"}))
		mock.ExpectExec(`INSERT INTO unit_bookings`).
			WithArgs(order.UnitID, order.ID, order.Range.Start, order.Range.End, now).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO user_profiles`).
			WithArgs(order.OwnerID, now).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`UPDATE orders`).
			WithArgs(order.ID, now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`UPDATE user_booking_views`).
			WithArgs(order.OwnerID, order.ID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		if err := repo.ApplyReconciliation(context.Background(), order, now); err != nil {
			t.Fatalf("ApplyReconciliation() unexpected error = %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("live hold defers the replay", func(t *testing.T) {
		repo, mock := newOrderRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM units WHERE id = \$1 FOR UPDATE`).
			WithArgs(order.UnitID).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("unit-001"))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(order.ID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(`SELECT start_date, end_date FROM unit_bookings`).
			WithArgs(order.UnitID).
			WillReturnRows(pgxmock.NewRows([]string{"start_date", "end_date"}))
		mock.ExpectQuery(`SELECT start_date, end_date FROM holds`).
			WithArgs(order.UnitID, now, "").
			WillReturnRows(pgxmock.NewRows([]string{"start_date", "end_date"}).
				AddRow(time.Date(2026, 7, 12, 0, 0, 0, 0, time.UTC), time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)))
		mock.ExpectRollback()

		err := repo.ApplyReconciliation(context.Background(), order, now)
		if !errors.Is(err, domain.ErrHoldConflict) {
			t.Errorf("ApplyReconciliation() error = %v, want ErrHoldConflict", err)
		}
	})
}
