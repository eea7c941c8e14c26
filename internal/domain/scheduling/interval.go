package scheduling

import (
	"time"

	"github.com/clinichq/clinic/internal/platform/apperror"
)

// Interval is a named recall period. The set is closed: the booking form
// offers exactly these choices and anything else is rejected.
type Interval string

const (
	OneDay     Interval = "1 day"
	TwoDays    Interval = "2 days"
	ThreeDays  Interval = "3 days"
	OneWeek    Interval = "1 week"
	TwoWeeks   Interval = "2 weeks"
	OneMonth   Interval = "1 month"
	SixWeeks   Interval = "6 weeks"
	ThreeMonth Interval = "3 months"
	SixMonths  Interval = "6 months"
)

// intervalOffsets holds the calendar arithmetic for each interval. Months
// use calendar months, not fixed day counts.
var intervalOffsets = map[Interval]struct{ years, months, days int }{
	OneDay:     {0, 0, 1},
	TwoDays:    {0, 0, 2},
	ThreeDays:  {0, 0, 3},
	OneWeek:    {0, 0, 7},
	TwoWeeks:   {0, 0, 14},
	OneMonth:   {0, 1, 0},
	SixWeeks:   {0, 0, 42},
	ThreeMonth: {0, 3, 0},
	SixMonths:  {0, 6, 0},
}

// Intervals lists the accepted recall periods in booking-form order.
func Intervals() []Interval {
	return []Interval{OneDay, TwoDays, ThreeDays, OneWeek, TwoWeeks, OneMonth, SixWeeks, ThreeMonth, SixMonths}
}

// Resolve turns an interval into a concrete appointment date counted from
// base. The clinic is closed on Sundays, so a resolved Sunday shifts to
// Monday.
func Resolve(base time.Time, iv Interval) (time.Time, error) {
	off, ok := intervalOffsets[iv]
	if !ok {
		return time.Time{}, apperror.Validation("unknown appointment interval %q", iv)
	}
	d := base.AddDate(off.years, off.months, off.days)
	if d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d, nil
}
