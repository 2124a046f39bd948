// Package calendar projects appointments or free slots onto a day, week
// or month view and keeps that projection in step with navigation.
package calendar

import (
	"fmt"
	"time"

	"github.com/wellness/booking/internal/domain/booking"
)

// View is a calendar granularity.
type View string

const (
	ViewDay   View = "day"
	ViewWeek  View = "week"
	ViewMonth View = "month"
)

// ParseView validates a view name.
func ParseView(s string) (View, error) {
	switch v := View(s); v {
	case ViewDay, ViewWeek, ViewMonth:
		return v, nil
	}
	return "", fmt.Errorf("unknown calendar view %q", s)
}

// Direction moves the visible range.
type Direction int

const (
	Prev Direction = -1
	Next Direction = 1
)

// monthGridDays is six full weeks, enough for any month.
const monthGridDays = 42

// Range is the visible span [Start, End) in the anchor's location.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Dates converts the range to the inclusive calendar-day span used by
// remote queries.
func (r Range) Dates() booking.DateRange {
	return booking.DateRange{From: r.Start, To: r.End.AddDate(0, 0, -1)}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// mondayOnOrBefore returns local midnight of the Monday starting t's week.
func mondayOnOrBefore(t time.Time) time.Time {
	d := midnight(t)
	offset := (int(d.Weekday()) + 6) % 7
	return time.Date(d.Year(), d.Month(), d.Day()-offset, 0, 0, 0, 0, d.Location())
}

// RangeFor returns the visible range of view around date. Weeks run Monday
// to Sunday. Months show a six-week grid starting on the Monday on or
// before the first of the month.
func RangeFor(view View, date time.Time) Range {
	switch view {
	case ViewWeek:
		start := mondayOnOrBefore(date)
		return Range{Start: start, End: start.AddDate(0, 0, 7)}
	case ViewMonth:
		first := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
		start := mondayOnOrBefore(first)
		return Range{Start: start, End: start.AddDate(0, 0, monthGridDays)}
	}
	start := midnight(date)
	return Range{Start: start, End: start.AddDate(0, 0, 1)}
}

// Shift moves date by one view unit in dir.
func Shift(view View, date time.Time, dir Direction) time.Time {
	n := int(dir)
	switch view {
	case ViewWeek:
		return date.AddDate(0, 0, 7*n)
	case ViewMonth:
		// Normalize to the first so Jan 31 + 1 month lands in February.
		first := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
		return first.AddDate(0, n, 0)
	}
	return date.AddDate(0, 0, n)
}
