package domain

import "time"

// OrderStatus is the customer-facing state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// SyncStatus tracks whether the local calendar agrees with the external
// provider about this order.
type SyncStatus string

const (
	// SyncStatusSynced means the booking exists both at the provider and
	// in the local calendar.
	SyncStatusSynced SyncStatus = "synced"
	// SyncStatusPendingLocal means the provider accepted the booking but
	// the local finalize failed; the reconciliation sweep will retry it.
	SyncStatusPendingLocal SyncStatus = "pending_local_sync"
	// SyncStatusManualReview means reconciliation gave up; an operator
	// has to resolve the divergence by hand.
	SyncStatusManualReview SyncStatus = "failed_manual_review"
)

// GuestContact is the contact snapshot captured at booking time.
type GuestContact struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// Order is the durable record of a booking. Its ID is the booking id
// issued by the external provider, which makes finalization idempotent.
type Order struct {
	ID             string
	OwnerID        string
	Kind           BookingKind
	RoomID         string
	UnitID         string
	ResourceID     int
	Range          DateRange
	Adults         int
	Children       int
	Contact        GuestContact
	LicensePlate   string
	Nights         int
	PricePerNight  int64
	TotalPrice     int64
	Status         OrderStatus
	SyncStatus     SyncStatus
	SyncRetryCount int
	SyncError      string
	CorrelationID  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserBookingView is the denormalized per-user listing row, written at
// finalize time so listing a user's bookings never joins across units.
type UserBookingView struct {
	OwnerID    string
	OrderID    string
	Kind       BookingKind
	RoomID     string
	UnitName   string
	Range      DateRange
	Nights     int
	TotalPrice int64
	Status     OrderStatus
	SyncStatus SyncStatus
	CreatedAt  time.Time
}

// UserProfile aggregates booking activity per authenticated user.
type UserProfile struct {
	UserID        string
	BookingCount  int
	LastBookingAt time.Time
	UpdatedAt     time.Time
}
