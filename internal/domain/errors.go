package domain

import (
	"errors"
	"fmt"
)

// Validation errors map to HTTP 400.
var (
	ErrInvalidKind       = errors.New("invalid booking kind")
	ErrInvalidDateRange  = errors.New("invalid date range")
	ErrInvalidGuestCount = errors.New("invalid guest count")
	ErrInvalidContact    = errors.New("invalid contact details")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// Auth errors map to HTTP 401.
var (
	ErrCaptchaRequired = errors.New("captcha token required")
	ErrCaptchaFailed   = errors.New("captcha verification failed")
	ErrUnauthorized    = errors.New("unauthorized")
)

// Lookup errors map to HTTP 404.
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrUnitNotFound  = errors.New("unit not found")
	ErrHoldNotFound  = errors.New("hold not found")
	ErrOrderNotFound = errors.New("order not found")
)

// State errors map to HTTP 409.
var (
	ErrDateConflict = errors.New("requested dates are not available")
	ErrHoldInactive = errors.New("hold is no longer active")
)

// ErrHoldConflict means the dates are blocked by a live pending hold
// rather than a committed booking. Unlike a booking overlap the block
// is temporary: the hold either settles or expires. It unwraps to
// ErrDateConflict so availability checks can treat both the same.
var ErrHoldConflict = fmt.Errorf("%w: blocked by a pending hold", ErrDateConflict)

// ErrRateLimited maps to HTTP 429.
var ErrRateLimited = errors.New("too many booking attempts")

// Upstream errors from the external booking provider.
var (
	ErrProviderTimeout     = errors.New("provider request timed out")
	ErrProviderUnavailable = errors.New("provider unreachable")
	ErrProviderRejected    = errors.New("provider rejected the booking")
	ErrProviderBadResponse = errors.New("provider returned an unusable response")
)

// IsValidationError reports whether err should be treated as bad input
// rather than a server-side failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrInvalidGuestCount) ||
		errors.Is(err, ErrInvalidContact) ||
		errors.Is(err, ErrInvalidArgument)
}

// IsNotFoundError reports whether err means a referenced entity does not exist.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrRoomNotFound) ||
		errors.Is(err, ErrUnitNotFound) ||
		errors.Is(err, ErrHoldNotFound) ||
		errors.Is(err, ErrOrderNotFound)
}
