package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wellness/booking/internal/domain/availability"
	"github.com/wellness/booking/internal/domain/booking"
)

var (
	// ErrStale is returned when a newer request superseded this one before
	// it completed. Nothing was applied.
	ErrStale = errors.New("calendar: response superseded")
	// ErrClosed is returned once the projector has been torn down.
	ErrClosed = errors.New("calendar: projector closed")
)

// SlotSource resolves free slots.
type SlotSource interface {
	Resolve(ctx context.Context, q availability.Query) (availability.Result, error)
}

// AppointmentSource lists booked appointments.
type AppointmentSource interface {
	ListAppointments(ctx context.Context, f booking.AppointmentFilter) ([]booking.Appointment, error)
}

// Snapshot is a copy of the projector's visible state.
type Snapshot struct {
	Inputs Inputs  `json:"inputs"`
	Range  Range   `json:"range"`
	Events []Event `json:"events"`
	Epoch  uint64  `json:"epoch"`
	// Error is the last fetch failure, cleared by the next applied fetch.
	Error string `json:"error,omitempty"`
}

// Projector owns one calendar instance. Every change to its inputs issues
// exactly one fetch; only the response to the most recent fetch is
// applied.
type Projector struct {
	slots  SlotSource
	appts  AppointmentSource
	pub    booking.Publisher
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.Mutex
	in      Inputs
	rng     Range
	epoch   uint64
	cancel  context.CancelFunc
	closed  bool
	events  []Event
	lastErr error
}

// NewProjector creates a projector for the given inputs. No fetch happens
// until Refresh or an input change.
func NewProjector(in Inputs, slots SlotSource, appts AppointmentSource, pub booking.Publisher, now func() time.Time, logger zerolog.Logger) *Projector {
	if pub == nil {
		pub = booking.Discard
	}
	if now == nil {
		now = time.Now
	}
	if in.View == "" {
		in.View = ViewWeek
	}
	if in.Anchor.IsZero() {
		in.Anchor = now()
	}
	return &Projector{
		slots:  slots,
		appts:  appts,
		pub:    pub,
		now:    now,
		logger: logger,
		in:     in,
		rng:    RangeFor(in.View, in.Anchor),
	}
}

// Refresh re-fetches the current range.
func (p *Projector) Refresh(ctx context.Context) error {
	return p.update(ctx, func(*Inputs) {})
}

// SetView switches granularity, keeping the anchor date.
func (p *Projector) SetView(ctx context.Context, v View) error {
	return p.update(ctx, func(in *Inputs) { in.View = v })
}

// Navigate moves one view unit backward or forward.
func (p *Projector) Navigate(ctx context.Context, dir Direction) error {
	return p.update(ctx, func(in *Inputs) { in.Anchor = Shift(in.View, in.Anchor, dir) })
}

// Today jumps to the range containing the current date.
func (p *Projector) Today(ctx context.Context) error {
	today := p.now()
	return p.update(ctx, func(in *Inputs) { in.Anchor = today.In(in.Anchor.Location()) })
}

// GoTo jumps to the range containing date.
func (p *Projector) GoTo(ctx context.Context, date time.Time) error {
	return p.update(ctx, func(in *Inputs) { in.Anchor = date })
}

// SetFilters replaces service, specialist and status filters.
func (p *Projector) SetFilters(ctx context.Context, f Filters) error {
	return p.update(ctx, func(in *Inputs) {
		in.ServiceID = f.ServiceID
		in.SpecialistID = f.SpecialistID
		in.Status = f.Status
		in.DurationMinutes = f.DurationMinutes
	})
}

// SetSession swaps the identity the projection is built for.
func (p *Projector) SetSession(ctx context.Context, s booking.Session) error {
	return p.update(ctx, func(in *Inputs) { in.Session = s })
}

// update applies mutate to the inputs and runs the resulting fetch. The
// lock is not held while the fetch is in flight.
func (p *Projector) update(ctx context.Context, mutate func(*Inputs)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	mutate(&p.in)
	req, ok := BuildRequest(p.in)
	p.rng = req.Range
	p.epoch++
	epoch := p.epoch
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if !ok {
		p.events = []Event{}
		p.lastErr = nil
		p.pub.Publish(EventsPublished{Range: p.rng, Events: p.copyEvents()})
		p.mu.Unlock()
		return nil
	}
	fctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	session := p.in.Session
	p.mu.Unlock()
	defer cancel()

	events, err := p.fetch(fctx, req, session)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if epoch != p.epoch {
		p.logger.Debug().Uint64("epoch", epoch).Uint64("latest", p.epoch).Msg("dropping stale calendar response")
		return ErrStale
	}
	p.cancel = nil
	if err != nil {
		p.lastErr = err
		return err
	}
	p.events = events
	p.lastErr = nil
	p.pub.Publish(EventsPublished{Range: p.rng, Events: p.copyEvents()})
	return nil
}

func (p *Projector) fetch(ctx context.Context, req FetchRequest, session booking.Session) ([]Event, error) {
	switch req.Kind {
	case RequestSlots:
		res, err := p.slots.Resolve(ctx, req.Slots)
		if err != nil {
			return nil, fmt.Errorf("calendar slots: %w", err)
		}
		return SlotEvents(res.Slots), nil
	case RequestAppointments:
		appts, err := p.appts.ListAppointments(ctx, req.Appointments)
		if err != nil {
			return nil, fmt.Errorf("calendar appointments: %w", err)
		}
		return AppointmentEvents(appts, session), nil
	}
	return nil, fmt.Errorf("calendar: unknown request kind %q", req.Kind)
}

func (p *Projector) copyEvents() []Event {
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// State returns a copy of the current projection.
func (p *Projector) State() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := Snapshot{Inputs: p.in, Range: p.rng, Events: p.copyEvents(), Epoch: p.epoch}
	if p.lastErr != nil {
		snap.Error = p.lastErr.Error()
	}
	return snap
}

// SelectSlot emits SlotSelected for a start picked on the calendar. Past
// starts are ignored. The end comes from the projected slot at that start,
// or from the selected service's duration.
func (p *Projector) SelectSlot(start time.Time) (SlotSelected, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || start.Before(p.now()) {
		return SlotSelected{}, false
	}

	sel := SlotSelected{Start: start}
	for _, e := range p.events {
		if e.Kind == EventSlot && e.Start.Equal(start) {
			sel.End = e.End
			sel.SpecialistID = e.Slot.SpecialistID
			break
		}
	}
	if sel.End.IsZero() {
		if p.in.DurationMinutes <= 0 {
			return SlotSelected{}, false
		}
		sel.End = start.Add(time.Duration(p.in.DurationMinutes) * time.Minute)
		sel.SpecialistID = p.in.SpecialistID
	}
	p.pub.Publish(sel)
	return sel, true
}

// SelectAppointment emits AppointmentSelected for a projected appointment.
func (p *Projector) SelectAppointment(id string) (booking.Appointment, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return booking.Appointment{}, false
	}
	for _, e := range p.events {
		if e.Kind == EventAppointment && e.Appointment.ID == id {
			a := *e.Appointment
			p.pub.Publish(AppointmentSelected{Appointment: a})
			return a, true
		}
	}
	return booking.Appointment{}, false
}

// Close tears the projector down. An in-flight fetch is cancelled and its
// result, if any, is discarded.
func (p *Projector) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}
