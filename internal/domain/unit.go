package domain

import "time"

// BookingKind selects the product line a unit belongs to.
type BookingKind string

const (
	KindRoom    BookingKind = "room"
	KindCamping BookingKind = "camping"
)

// Valid reports whether k is a known booking kind.
func (k BookingKind) Valid() bool {
	return k == KindRoom || k == KindCamping
}

// AllowsLicensePlate reports whether a booking of this kind may carry
// a vehicle license plate. Only camping spots take vehicles.
func (k BookingKind) AllowsLicensePlate() bool {
	return k == KindCamping
}

// Unit is a single bookable resource: one hotel room or one camping spot.
// ResourceID is the identifier the external provider uses for the same
// physical unit.
type Unit struct {
	ID            string
	RoomID        string
	ResourceID    int
	Name          string
	Kind          BookingKind
	PricePerNight int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BookingEntry is a confirmed occupancy of a unit, keyed by the
// provider-issued booking id.
type BookingEntry struct {
	UnitID     string
	ExternalID string
	Range      DateRange
	CreatedAt  time.Time
}
