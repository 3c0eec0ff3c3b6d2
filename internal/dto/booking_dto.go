package dto

// CreateBookingRequest is the payload for POST /api/v1/bookings.
// Either Dates (the raw calendar selection, first entry check-in and
// last entry check-out) or the CheckIn/CheckOut pair must be present.
type CreateBookingRequest struct {
	Kind         string   `json:"kind" binding:"required"`
	RoomID       string   `json:"room_id" binding:"required"`
	UnitID       string   `json:"unit_id" binding:"required"`
	ResourceID   int      `json:"resource_id"`
	Dates        []string `json:"dates"`
	CheckIn      string   `json:"check_in"`
	CheckOut     string   `json:"check_out"`
	Adults       int      `json:"adults"`
	Children     int      `json:"children"`
	FirstName    string   `json:"first_name" binding:"required"`
	LastName     string   `json:"last_name" binding:"required"`
	Email        string   `json:"email" binding:"required"`
	Phone        string   `json:"phone" binding:"required"`
	LicensePlate string   `json:"license_plate"`
	CaptchaToken string   `json:"captcha_token"`
	DeviceID     string   `json:"device_id"`
}

// RequestMeta carries the caller identity the middleware extracted.
type RequestMeta struct {
	OwnerID  string
	ClientIP string
	DeviceID string
}

// CreateBookingResponse is the success payload for a booking attempt.
// SyncStatus is "synced" on the happy path and "pending_local_sync"
// when the provider accepted the booking but the local finalize has to
// be replayed by the reconciliation sweep; the booking is real either
// way.
type CreateBookingResponse struct {
	BookingID      string `json:"booking_id"`
	UnitName       string `json:"unit_name"`
	Kind           string `json:"kind"`
	CheckIn        string `json:"check_in"`
	CheckOut       string `json:"check_out"`
	Nights         int    `json:"nights"`
	Adults         int    `json:"adults"`
	Children       int    `json:"children"`
	TotalPrice     int64  `json:"total_price"`
	SyncStatus     string `json:"sync_status"`
	AlreadyExisted bool   `json:"already_existed,omitempty"`
	CorrelationID  string `json:"correlation_id"`
	Warning        string `json:"warning,omitempty"`
}

// BookingSummary is one row of a user's booking list.
type BookingSummary struct {
	BookingID  string `json:"booking_id"`
	Kind       string `json:"kind"`
	RoomID     string `json:"room_id"`
	UnitName   string `json:"unit_name"`
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
	Nights     int    `json:"nights"`
	TotalPrice int64  `json:"total_price"`
	Status     string `json:"status"`
	SyncStatus string `json:"sync_status"`
	CreatedAt  string `json:"created_at"`
}

// ListBookingsResponse is the payload for GET /api/v1/bookings.
type ListBookingsResponse struct {
	Bookings []BookingSummary `json:"bookings"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// UnavailableDatesResponse lists the days on which no unit of the room
// has capacity left.
type UnavailableDatesResponse struct {
	RoomID           string   `json:"room_id"`
	UnavailableDates []string `json:"unavailable_dates"`
}

// ExternalRemovalResponse acknowledges a provider-side deletion notice.
type ExternalRemovalResponse struct {
	ExternalID string `json:"external_id"`
	Removed    bool   `json:"removed"`
}

// ErrorResponse is the uniform error payload
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Error code vocabulary shared with API consumers.
const (
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeNotFound           = "NOT_FOUND"
	CodeFailedPrecondition = "FAILED_PRECONDITION"
	CodeResourceExhausted  = "RESOURCE_EXHAUSTED"
	CodeDeadlineExceeded   = "DEADLINE_EXCEEDED"
	CodeUnavailable        = "UNAVAILABLE"
	CodeInternal           = "INTERNAL"
)
