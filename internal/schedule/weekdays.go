// Package schedule computes automation run dates from a weekly day set.
package schedule

import (
	"strings"
	"time"
)

// Weekdays holds the enabled automation days indexed Monday first.
type Weekdays [7]bool

var dayNames = [7]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// NewWeekdays builds a day set from Monday-first flags.
func NewWeekdays(mon, tue, wed, thu, fri, sat, sun bool) Weekdays {
	return Weekdays{mon, tue, wed, thu, fri, sat, sun}
}

// Index maps a time.Weekday onto the Monday-first index used by Weekdays.
func Index(day time.Weekday) int {
	return (int(day) + 6) % 7
}

// Any reports whether at least one day is enabled.
func (w Weekdays) Any() bool {
	for _, on := range w {
		if on {
			return true
		}
	}
	return false
}

// Enabled reports whether the weekday of t is part of the set.
func (w Weekdays) Enabled(t time.Time) bool {
	return w[Index(t.Weekday())]
}

// String lists the enabled day names, e.g. "monday,thursday".
func (w Weekdays) String() string {
	names := make([]string, 0, 7)
	for i, on := range w {
		if on {
			names = append(names, dayNames[i])
		}
	}
	return strings.Join(names, ",")
}

// Day truncates t to its calendar date at UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Schedule answers run-date questions relative to a fixed "today".
type Schedule struct {
	today time.Time
	days  Weekdays
}

// New returns a Schedule anchored at the calendar date of today.
func New(today time.Time, days Weekdays) Schedule {
	return Schedule{today: Day(today), days: days}
}

// Today returns the anchor date.
func (s Schedule) Today() time.Time {
	return s.today
}

// Days returns the enabled day set.
func (s Schedule) Days() Weekdays {
	return s.days
}

// NextRunDate returns the nearest enabled date strictly after today, or
// tomorrow when no day is enabled.
func (s Schedule) NextRunDate() time.Time {
	if !s.days.Any() {
		return s.today.AddDate(0, 0, 1)
	}
	idx := Index(s.today.Weekday())
	for i := 1; i <= 7; i++ {
		if s.days[(idx+i)%7] {
			return s.today.AddDate(0, 0, i)
		}
	}
	return s.today.AddDate(0, 0, 1)
}

// PreviousRunDate returns the latest enabled date on or before target,
// clamped so it never precedes today.
func (s Schedule) PreviousRunDate(target time.Time) time.Time {
	target = Day(target)
	if !s.days.Any() {
		if target.Before(s.today) {
			return s.today
		}
		return target
	}
	idx := Index(target.Weekday())
	for i := 0; i < 7; i++ {
		if !s.days[((idx-i)%7+7)%7] {
			continue
		}
		candidate := target.AddDate(0, 0, -i)
		if candidate.Before(s.today) {
			return s.today
		}
		return candidate
	}
	return target
}
