package availability

import (
	"testing"
	"time"

	"github.com/wellness/booking/internal/domain/booking"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFreeStarts_Basic(t *testing.T) {
	d := day(2026, 3, 2)
	w := Window{OpenMinute: 9 * 60, CloseMinute: 10 * 60}
	busy := []booking.Interval{
		{Start: d.Add(9*time.Hour + 15*time.Minute), End: d.Add(9*time.Hour + 45*time.Minute)},
	}

	starts := FreeStarts(d, w, 15*time.Minute, 15*time.Minute, busy, d)
	if len(starts) != 2 {
		t.Fatalf("expected 2 starts, got %d", len(starts))
	}
	if !starts[0].Equal(d.Add(9 * time.Hour)) {
		t.Errorf("expected 09:00, got %s", starts[0].Format(time.RFC3339))
	}
	if !starts[1].Equal(d.Add(9*time.Hour + 45*time.Minute)) {
		t.Errorf("expected 09:45, got %s", starts[1].Format(time.RFC3339))
	}
}

func TestFreeStarts_SkipsPast(t *testing.T) {
	d := day(2026, 3, 2)
	w := Window{OpenMinute: 9 * 60, CloseMinute: 10 * 60}

	now := d.Add(9*time.Hour + 30*time.Minute)
	starts := FreeStarts(d, w, 15*time.Minute, 15*time.Minute, nil, now)
	// 09:30 equals now and is kept; 09:00 and 09:15 are gone.
	if len(starts) != 2 {
		t.Fatalf("expected 2 starts, got %d", len(starts))
	}
	if !starts[0].Equal(now) {
		t.Errorf("expected first start at now, got %s", starts[0].Format(time.RFC3339))
	}
}

func TestFreeStarts_TouchingBusyDoesNotBlock(t *testing.T) {
	d := day(2026, 3, 2)
	w := Window{OpenMinute: 9 * 60, CloseMinute: 11 * 60}
	busy := []booking.Interval{{Start: d.Add(10 * time.Hour), End: d.Add(11 * time.Hour)}}

	starts := FreeStarts(d, w, time.Hour, 30*time.Minute, busy, d)
	if len(starts) != 1 || !starts[0].Equal(d.Add(9*time.Hour)) {
		t.Fatalf("expected only 09:00, got %v", starts)
	}
}

func TestFreeStarts_DurationLongerThanWindow(t *testing.T) {
	d := day(2026, 3, 2)
	w := Window{OpenMinute: 9 * 60, CloseMinute: 10 * 60}
	if got := FreeStarts(d, w, 2*time.Hour, 30*time.Minute, nil, d); len(got) != 0 {
		t.Errorf("expected none, got %v", got)
	}
}

func TestCompute_FullDay(t *testing.T) {
	d := day(2026, 3, 2)
	p := Params{
		Range:    booking.DateRange{From: d, To: d},
		Duration: time.Hour,
		Window:   DefaultWindow,
		Step:     30 * time.Minute,
	}

	res := Compute(p, []string{"sp-1"}, nil, d.Add(-24*time.Hour))
	// 08:00 through 20:00 inclusive: the last slot ends exactly at closing.
	if res.Len() != 25 {
		t.Fatalf("expected 25 slots, got %d", res.Len())
	}
	first, last := res.Slots[0], res.Slots[res.Len()-1]
	if !first.Start.Equal(d.Add(8 * time.Hour)) {
		t.Errorf("first slot %s", first.Start)
	}
	if !last.Start.Equal(d.Add(20 * time.Hour)) {
		t.Errorf("last slot %s", last.Start)
	}
	if first.SpecialistID != "sp-1" {
		t.Errorf("expected slots tagged with specialist, got %q", first.SpecialistID)
	}
}

func TestCompute_Properties(t *testing.T) {
	d := day(2026, 3, 2)
	busy := []booking.Interval{
		{Start: d.Add(9 * time.Hour), End: d.Add(10*time.Hour + 15*time.Minute), SpecialistID: "a"},
		{Start: d.Add(14 * time.Hour), End: d.Add(15 * time.Hour), SpecialistID: "a"},
		{Start: d.Add(31 * time.Hour), End: d.Add(33 * time.Hour), SpecialistID: "a"},
	}
	p := Params{
		Range:    booking.DateRange{From: d, To: d.Add(48 * time.Hour)},
		Duration: 45 * time.Minute,
		Window:   DefaultWindow,
		Step:     15 * time.Minute,
	}
	now := d.Add(8*time.Hour + 20*time.Minute)

	res := Compute(p, []string{"a"}, busy, now)
	if res.Len() == 0 {
		t.Fatal("expected slots")
	}
	for _, s := range res.Slots {
		for _, b := range busy {
			if b.Overlaps(s.Start, s.End) {
				t.Errorf("slot %s overlaps busy %s-%s", s.Start, b.Start, b.End)
			}
		}
		local := s.Start
		midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		openAt := midnight.Add(8 * time.Hour)
		if s.Start.Before(openAt) || s.End.After(midnight.Add(21*time.Hour)) {
			t.Errorf("slot %s-%s outside working window", s.Start, s.End)
		}
		if s.Start.Sub(openAt)%(15*time.Minute) != 0 {
			t.Errorf("slot %s not aligned to step", s.Start)
		}
		if s.Start.Before(now) {
			t.Errorf("slot %s is in the past", s.Start)
		}
	}
	for i := 1; i < res.Len(); i++ {
		if !res.Slots[i-1].Start.Before(res.Slots[i].Start) {
			t.Fatalf("slots not strictly ascending at %d", i)
		}
	}
	if len(res.OnDay(d.Add(48*time.Hour))) == 0 {
		t.Error("expected slots on the last day of the inclusive range")
	}
}

func TestCompute_UnionAcrossSpecialists(t *testing.T) {
	d := day(2026, 3, 2)
	w := Window{OpenMinute: 9 * 60, CloseMinute: 12 * 60}
	busy := []booking.Interval{
		{Start: d.Add(9 * time.Hour), End: d.Add(10 * time.Hour), SpecialistID: "a"},
		{Start: d.Add(10 * time.Hour), End: d.Add(12 * time.Hour), SpecialistID: "b"},
	}
	p := Params{Range: booking.DateRange{From: d, To: d}, Duration: time.Hour, Window: w, Step: time.Hour}

	a := Compute(p, []string{"a"}, busy, d)
	b := Compute(p, []string{"b"}, busy, d)
	union := Compute(p, []string{"a", "b"}, busy, d)

	want := map[time.Time]bool{}
	for _, s := range append(a.Slots, b.Slots...) {
		want[s.Start] = true
	}
	if union.Len() != len(want) {
		t.Fatalf("expected %d union slots, got %d", len(want), union.Len())
	}
	for _, s := range union.Slots {
		if !want[s.Start] {
			t.Errorf("unexpected slot %s", s.Start)
		}
		if s.SpecialistID != "" {
			t.Errorf("union slot should not be tagged, got %q", s.SpecialistID)
		}
	}
}

func TestCompute_SharedBusyBlocksEveryone(t *testing.T) {
	d := day(2026, 3, 2)
	w := Window{OpenMinute: 9 * 60, CloseMinute: 11 * 60}
	busy := []booking.Interval{{Start: d.Add(9 * time.Hour), End: d.Add(10 * time.Hour)}}
	p := Params{Range: booking.DateRange{From: d, To: d}, Duration: time.Hour, Window: w, Step: time.Hour}

	res := Compute(p, []string{"a", "b"}, busy, d)
	if res.Len() != 1 || !res.Slots[0].Start.Equal(d.Add(10*time.Hour)) {
		t.Fatalf("expected only 10:00, got %+v", res.Slots)
	}
}

func TestCompute_NoSpecialists(t *testing.T) {
	d := day(2026, 3, 2)
	p := Params{Range: booking.DateRange{From: d, To: d}, Duration: time.Hour, Window: DefaultWindow}
	res := Compute(p, nil, nil, d)
	if res.Slots == nil || res.Len() != 0 {
		t.Errorf("expected empty non-nil slots, got %+v", res.Slots)
	}
}

func TestParams_DaysAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	from := time.Date(2026, 3, 28, 0, 0, 0, 0, loc)
	p := Params{Range: booking.DateRange{From: from, To: from.AddDate(0, 0, 2)}, Location: loc}

	days := p.Days()
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(days))
	}
	for _, d := range days {
		if d.Hour() != 0 {
			t.Errorf("day %s does not start at local midnight", d)
		}
	}
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("08:00", "21:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != DefaultWindow {
		t.Errorf("got %v", w)
	}
	if _, err := ParseWindow("21:00", "08:00"); err == nil {
		t.Error("expected error for inverted window")
	}
	if _, err := ParseWindow("8am", "21:00"); err == nil {
		t.Error("expected error for malformed clock")
	}
}

func TestBusyFromAppointments(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	appts := []booking.Appointment{
		{ID: "1", SpecialistID: "a", StartAt: start, DurationMinutes: 60, Status: booking.StatusPending},
		{ID: "2", SpecialistID: "a", StartAt: start, DurationMinutes: 60, Status: booking.StatusCancelledByClient},
		{ID: "3", SpecialistID: "b", StartAt: start, DurationMinutes: 30, Status: booking.StatusConfirmed},
	}
	busy := BusyFromAppointments(appts)
	if len(busy) != 2 {
		t.Fatalf("expected 2 busy intervals, got %d", len(busy))
	}
	if !busy[1].End.Equal(start.Add(30 * time.Minute)) {
		t.Errorf("unexpected end %s", busy[1].End)
	}
}
