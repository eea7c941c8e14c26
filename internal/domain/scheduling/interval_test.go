package scheduling

import (
	"testing"
	"time"

	"github.com/clinichq/clinic/internal/platform/apperror"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 0, 0, 0, time.UTC)
}

func TestResolve(t *testing.T) {
	// 2024-01-02 is a Tuesday.
	base := date(2024, time.January, 2)

	cases := []struct {
		iv   Interval
		want time.Time
	}{
		{OneDay, date(2024, time.January, 3)},
		{TwoDays, date(2024, time.January, 4)},
		{ThreeDays, date(2024, time.January, 5)},
		{OneWeek, date(2024, time.January, 9)},
		{TwoWeeks, date(2024, time.January, 16)},
		{OneMonth, date(2024, time.February, 2)},
		{SixWeeks, date(2024, time.February, 13)},
		{ThreeMonth, date(2024, time.April, 2)},
		{SixMonths, date(2024, time.July, 2)},
	}
	for _, tc := range cases {
		t.Run(string(tc.iv), func(t *testing.T) {
			got, err := Resolve(base, tc.iv)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("got %s, want %s", got.Format(time.DateOnly), tc.want.Format(time.DateOnly))
			}
		})
	}
}

func TestResolve_SundayShiftsToMonday(t *testing.T) {
	// 2024-01-06 is a Saturday, so one day out lands on Sunday the 7th
	// and must shift to Monday the 8th.
	base := date(2024, time.January, 6)
	got, err := Resolve(base, OneDay)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := date(2024, time.January, 8)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got.Format(time.DateOnly), want.Format(time.DateOnly))
	}
	if got.Weekday() == time.Sunday {
		t.Error("resolved date fell on a Sunday")
	}
}

func TestResolve_OneWeekFromSunday(t *testing.T) {
	// A week from Sunday is the following Sunday, which shifts to Monday.
	base := date(2024, time.January, 7)
	got, err := Resolve(base, OneWeek)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := date(2024, time.January, 15)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got.Format(time.DateOnly), want.Format(time.DateOnly))
	}
}

func TestResolve_MonthEndClamping(t *testing.T) {
	// AddDate normalizes Jan 31 + 1 month to Mar 2 in non-leap years;
	// 2024 is a leap year so it lands on Mar 2 as well.
	base := date(2024, time.January, 31)
	got, err := Resolve(base, OneMonth)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Month() != time.March {
		t.Errorf("got %s, want a March date", got.Format(time.DateOnly))
	}
}

func TestResolve_UnknownInterval(t *testing.T) {
	for _, iv := range []Interval{"", "4 days", "1 year", "tomorrow"} {
		if _, err := Resolve(time.Now(), iv); !apperror.IsValidation(err) {
			t.Errorf("Resolve(%q) = %v, want validation error", iv, err)
		}
	}
}

func TestIntervals_Closed(t *testing.T) {
	ivs := Intervals()
	if len(ivs) != 9 {
		t.Fatalf("got %d intervals, want 9", len(ivs))
	}
	for _, iv := range ivs {
		if _, ok := intervalOffsets[iv]; !ok {
			t.Errorf("interval %q has no offset", iv)
		}
	}
}
