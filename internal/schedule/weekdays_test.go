package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func TestIndexIsMondayFirst(t *testing.T) {
	require.Equal(t, 0, Index(time.Monday))
	require.Equal(t, 5, Index(time.Saturday))
	require.Equal(t, 6, Index(time.Sunday))
}

func TestNextRunDate(t *testing.T) {
	// 2025-01-29 is a Wednesday.
	today := date(t, "2025-01-29")

	cases := []struct {
		name string
		days Weekdays
		want string
	}{
		{"next day enabled", NewWeekdays(false, false, false, true, false, false, false), "2025-01-30"},
		{"wraps into next week", NewWeekdays(true, false, false, false, false, false, false), "2025-02-03"},
		{"same weekday is a week later", NewWeekdays(false, false, true, false, false, false, false), "2025-02-05"},
		{"sunday across week boundary", NewWeekdays(false, false, false, false, false, false, true), "2025-02-02"},
		{"nothing enabled falls back to tomorrow", Weekdays{}, "2025-01-30"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := New(today, tc.days).NextRunDate()
			require.Equal(t, date(t, tc.want), got)
		})
	}
}

func TestPreviousRunDate(t *testing.T) {
	today := date(t, "2025-01-29") // Wednesday
	monFri := NewWeekdays(true, false, false, false, true, false, false)
	s := New(today, monFri)

	// Thursday 2025-02-06 -> Monday 2025-02-03.
	require.Equal(t, date(t, "2025-02-03"), s.PreviousRunDate(date(t, "2025-02-06")))
	// Target on an enabled day is kept.
	require.Equal(t, date(t, "2025-02-07"), s.PreviousRunDate(date(t, "2025-02-07")))
	// Thursday 2025-01-30 -> Monday 2025-01-27 precedes today, clamped.
	require.Equal(t, today, s.PreviousRunDate(date(t, "2025-01-30")))
	// Past target clamps to today.
	require.Equal(t, today, s.PreviousRunDate(date(t, "2025-01-10")))
}

func TestPreviousRunDateWithoutDays(t *testing.T) {
	today := date(t, "2025-01-29")
	s := New(today, Weekdays{})

	require.Equal(t, today, s.PreviousRunDate(date(t, "2025-01-01")))
	require.Equal(t, date(t, "2025-03-01"), s.PreviousRunDate(date(t, "2025-03-01")))
}

func TestPreviousRunDateBounds(t *testing.T) {
	today := date(t, "2025-01-29")
	sets := []Weekdays{
		NewWeekdays(true, false, false, false, false, false, false),
		NewWeekdays(false, false, false, false, false, true, true),
		NewWeekdays(true, true, true, true, true, true, true),
	}
	for _, days := range sets {
		s := New(today, days)
		for offset := 0; offset < 30; offset++ {
			target := today.AddDate(0, 0, offset)
			got := s.PreviousRunDate(target)
			require.False(t, got.Before(today), "days=%s target=%s", days, target)
			require.False(t, got.After(target), "days=%s target=%s", days, target)
		}
	}
}

func TestDayTruncates(t *testing.T) {
	in := time.Date(2025, 3, 4, 17, 45, 0, 0, time.FixedZone("WIB", 7*3600))
	require.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), Day(in))
}

func TestWeekdaysString(t *testing.T) {
	require.Equal(t, "monday,friday", NewWeekdays(true, false, false, false, true, false, false).String())
	require.False(t, Weekdays{}.Any())
}
