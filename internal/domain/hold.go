package domain

import "time"

// HoldStatus tracks the lifecycle of a reservation hold. A pending hold
// blocks the unit until it expires or is resolved; failed and expired
// holds are kept for a retention window before being purged.
type HoldStatus string

const (
	HoldStatusPending HoldStatus = "pending"
	HoldStatusFailed  HoldStatus = "failed"
	HoldStatusExpired HoldStatus = "expired"
)

// Hold is a short-lived lease on a unit's date range, taken before the
// external provider is called. On confirmation the hold is deleted and
// replaced by a BookingEntry.
type Hold struct {
	ID            string
	UnitID        string
	Kind          BookingKind
	OwnerID       string
	Range         DateRange
	Status        HoldStatus
	ExpiresAt     time.Time
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Active reports whether the hold still blocks its unit at the given time.
func (h *Hold) Active(now time.Time) bool {
	return h.Status == HoldStatusPending && h.ExpiresAt.After(now)
}
