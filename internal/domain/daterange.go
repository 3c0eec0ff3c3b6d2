package domain

import (
	"fmt"
	"time"
)

// CheckoutBlocksUnit pins the stay-overlap convention: a unit's
// check-out day still blocks the unit for other guests. Flipping this
// to false would allow back-to-back stays where one guest checks out
// the morning another checks in.
const CheckoutBlocksUnit = true

// DayFormat is the wire format for calendar days.
const DayFormat = "2006-01-02"

// DateRange is an inclusive span of whole calendar days in UTC.
// Start is the check-in day and End is the check-out day.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewDateRange builds a stay range from check-in and check-out days.
// A stay is at least one night, so start must be strictly before end.
func NewDateRange(start, end time.Time) (DateRange, error) {
	s, e := Day(start), Day(end)
	if !s.Before(e) {
		return DateRange{}, fmt.Errorf("%w: check-in %s is not before check-out %s",
			ErrInvalidDateRange, s.Format(DayFormat), e.Format(DayFormat))
	}
	return DateRange{Start: s, End: e}, nil
}

// ParseDateRange parses "YYYY-MM-DD" check-in and check-out strings.
func ParseDateRange(checkIn, checkOut string) (DateRange, error) {
	s, err := time.ParseInLocation(DayFormat, checkIn, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: bad check-in date %q", ErrInvalidDateRange, checkIn)
	}
	e, err := time.ParseInLocation(DayFormat, checkOut, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: bad check-out date %q", ErrInvalidDateRange, checkOut)
	}
	return NewDateRange(s, e)
}

// Nights returns the number of nights in the stay.
func (r DateRange) Nights() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// Overlaps reports whether two stays contend for the same unit.
// Both endpoints count: a stay ending on day X overlaps a stay
// starting on day X because the check-out day blocks the unit.
func (r DateRange) Overlaps(o DateRange) bool {
	if CheckoutBlocksUnit {
		return !r.End.Before(o.Start) && !o.End.Before(r.Start)
	}
	return r.End.After(o.Start) && o.End.After(r.Start)
}

// Contains reports whether day falls inside the range, endpoints included.
func (r DateRange) Contains(day time.Time) bool {
	d := Day(day)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Days returns every calendar day of the stay, check-out day included.
func (r DateRange) Days() []time.Time {
	n := r.Nights() + 1
	days := make([]time.Time, 0, n)
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (r DateRange) String() string {
	return r.Start.Format(DayFormat) + " - " + r.End.Format(DayFormat)
}
