// Package availability turns a service, an optional specialist and a range
// of calendar days into bookable start times.
package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/wellness/booking/internal/domain/booking"
)

const (
	DefaultStepMinutes = 30
	minutesPerDay      = 24 * 60
)

// Window is the daily working window in minutes after local midnight.
type Window struct {
	OpenMinute  int
	CloseMinute int
}

// DefaultWindow is 08:00 to 21:00.
var DefaultWindow = Window{OpenMinute: 8 * 60, CloseMinute: 21 * 60}

// ParseWindow builds a window from "HH:MM" clock strings.
func ParseWindow(open, closing string) (Window, error) {
	o, err := parseClock(open)
	if err != nil {
		return Window{}, fmt.Errorf("open: %w", err)
	}
	c, err := parseClock(closing)
	if err != nil {
		return Window{}, fmt.Errorf("close: %w", err)
	}
	w := Window{OpenMinute: o, CloseMinute: c}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q, expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Validate checks that the window is a non-empty span inside one day.
func (w Window) Validate() error {
	if w.OpenMinute < 0 || w.CloseMinute > minutesPerDay {
		return fmt.Errorf("working window %s must lie within one day", w)
	}
	if w.CloseMinute <= w.OpenMinute {
		return fmt.Errorf("working window %s closes before it opens", w)
	}
	return nil
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.OpenMinute/60, w.OpenMinute%60, w.CloseMinute/60, w.CloseMinute%60)
}

// bounds returns the window's open and close instants on the calendar day
// of day, in day's location.
func (w Window) bounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return midnight.Add(time.Duration(w.OpenMinute) * time.Minute),
		midnight.Add(time.Duration(w.CloseMinute) * time.Minute)
}

// FreeStarts returns the start times on day's calendar day where a booking
// of length duration fits inside the window and overlaps none of busy.
// Candidates are aligned to step from the window opening and a slot may end
// exactly at closing. Starts strictly before now are dropped.
func FreeStarts(day time.Time, w Window, duration, step time.Duration, busy []booking.Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	open, closing := w.bounds(day)
	if !closing.After(open) || open.Add(duration).After(closing) {
		return nil
	}

	var starts []time.Time
	for t := open; !t.Add(duration).After(closing); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(t, t.Add(duration), busy) {
			starts = append(starts, t)
		}
	}
	return starts
}

func overlapsAny(start, end time.Time, busy []booking.Interval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// Params carries everything except the busy data that shapes a slot grid.
type Params struct {
	Range    booking.DateRange
	Duration time.Duration
	Window   Window
	Step     time.Duration
	Location *time.Location
}

// Days lists the calendar days covered by the range, inclusive, as local
// midnights.
func (p Params) Days() []time.Time {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	from := p.Range.From.In(loc)
	to := p.Range.To.In(loc)
	y, m, d := from.Date()
	ty, tm, td := to.Date()
	last := time.Date(ty, tm, td, 0, 0, 0, 0, loc)

	var days []time.Time
	for i := 0; ; i++ {
		day := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		if day.After(last) {
			break
		}
		days = append(days, day)
	}
	return days
}

// Result is the single normalized availability shape handed to callers.
type Result struct {
	Slots []booking.Slot `json:"slots"`
}

// Len returns the number of slots.
func (r Result) Len() int { return len(r.Slots) }

// Contains reports whether start is one of the offered slot starts.
func (r Result) Contains(start time.Time) bool {
	for _, s := range r.Slots {
		if s.Start.Equal(start) {
			return true
		}
	}
	return false
}

// OnDay returns the slots whose start falls on day's calendar day in day's
// location.
func (r Result) OnDay(day time.Time) []booking.Slot {
	y, m, d := day.Date()
	var out []booking.Slot
	for _, s := range r.Slots {
		sy, sm, sd := s.Start.In(day.Location()).Date()
		if sy == y && sm == m && sd == d {
			out = append(out, s)
		}
	}
	return out
}

// Compute derives the slot set for the given specialists. A single
// specialist yields slots tagged with its ID. Several specialists yield the
// union of their free starts, de-duplicated by instant and left untagged,
// meaning any available specialist. Busy intervals without a specialist ID
// block every specialist.
func Compute(p Params, specialistIDs []string, busy []booking.Interval, now time.Time) Result {
	if len(specialistIDs) == 0 || p.Duration <= 0 {
		return Result{Slots: []booking.Slot{}}
	}
	step := p.Step
	if step <= 0 {
		step = DefaultStepMinutes * time.Minute
	}

	perSpecialist := make(map[string][]booking.Interval, len(specialistIDs))
	var shared []booking.Interval
	for _, b := range busy {
		if b.SpecialistID == "" {
			shared = append(shared, b)
			continue
		}
		perSpecialist[b.SpecialistID] = append(perSpecialist[b.SpecialistID], b)
	}

	tag := ""
	if len(specialistIDs) == 1 {
		tag = specialistIDs[0]
	}

	seen := make(map[int64]struct{})
	slots := []booking.Slot{}
	for _, day := range p.Days() {
		for _, id := range specialistIDs {
			blocked := append(append([]booking.Interval(nil), shared...), perSpecialist[id]...)
			for _, start := range FreeStarts(day, p.Window, p.Duration, step, blocked, now) {
				key := start.UnixNano()
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				slots = append(slots, booking.Slot{Start: start, End: start.Add(p.Duration), SpecialistID: tag})
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return Result{Slots: slots}
}

// BusyFromAppointments converts the appointments that still hold their
// specialist's time into busy intervals.
func BusyFromAppointments(appts []booking.Appointment) []booking.Interval {
	var out []booking.Interval
	for _, a := range appts {
		if !a.Status.Active() || a.DurationMinutes <= 0 {
			continue
		}
		out = append(out, a.Interval())
	}
	return out
}
