package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wellness/booking/internal/domain/booking"
)

// BusySource returns the busy intervals the booking authority knows about.
type BusySource interface {
	ResolveBusyIntervals(ctx context.Context, q booking.BusyQuery) ([]booking.Interval, error)
}

// Directory answers catalog questions the resolver needs.
type Directory interface {
	Service(ctx context.Context, id string) (booking.Service, error)
	SpecialistsForService(ctx context.Context, serviceID string) ([]booking.Specialist, error)
}

// Query describes one availability request.
type Query struct {
	ServiceID    string
	SpecialistID string
	Range        booking.DateRange
	// DurationMinutes overrides the catalog duration when positive.
	DurationMinutes int
}

// Options tunes the slot grid.
type Options struct {
	Window   Window
	Step     time.Duration
	Location *time.Location
	Now      func() time.Time
	Logger   zerolog.Logger
}

// Resolver fetches busy data and catalog facts and computes slots.
type Resolver struct {
	busy   BusySource
	dir    Directory
	window Window
	step   time.Duration
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

// NewResolver creates a resolver. Zero options fall back to the default
// window, a 30 minute step, UTC and the wall clock.
func NewResolver(busy BusySource, dir Directory, opts Options) *Resolver {
	r := &Resolver{
		busy:   busy,
		dir:    dir,
		window: opts.Window,
		step:   opts.Step,
		loc:    opts.Location,
		now:    opts.Now,
		logger: opts.Logger,
	}
	if r.window == (Window{}) {
		r.window = DefaultWindow
	}
	if r.step <= 0 {
		r.step = DefaultStepMinutes * time.Minute
	}
	if r.loc == nil {
		r.loc = time.UTC
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Location returns the zone slot grids are computed in.
func (r *Resolver) Location() *time.Location { return r.loc }

// Resolve returns the bookable slots for q. It returns an empty result, not
// an error, when no service is selected, the service is inactive or nobody
// offers it. Failures to reach the booking authority come back as
// *booking.NetworkError.
func (r *Resolver) Resolve(ctx context.Context, q Query) (Result, error) {
	empty := Result{Slots: []booking.Slot{}}
	if q.ServiceID == "" {
		return empty, nil
	}

	svc, err := r.dir.Service(ctx, q.ServiceID)
	if err != nil {
		return empty, fmt.Errorf("resolve slots: look up service %s: %w", q.ServiceID, err)
	}
	if !svc.IsActive {
		r.logger.Debug().Str("service_id", q.ServiceID).Msg("service is not bookable")
		return empty, nil
	}
	duration := svc.Duration()
	if q.DurationMinutes > 0 {
		duration = time.Duration(q.DurationMinutes) * time.Minute
	}
	if duration <= 0 {
		return empty, nil
	}

	specialists, err := r.dir.SpecialistsForService(ctx, q.ServiceID)
	if err != nil {
		return empty, fmt.Errorf("resolve slots: list specialists for %s: %w", q.ServiceID, err)
	}
	var specialistIDs []string
	for _, s := range specialists {
		if q.SpecialistID != "" && s.ID != q.SpecialistID {
			continue
		}
		if s.Offers(q.ServiceID) {
			specialistIDs = append(specialistIDs, s.ID)
		}
	}
	if len(specialistIDs) == 0 {
		r.logger.Debug().
			Str("service_id", q.ServiceID).
			Str("specialist_id", q.SpecialistID).
			Msg("no specialists offer service")
		return empty, nil
	}

	busy, err := r.busy.ResolveBusyIntervals(ctx, booking.BusyQuery{
		ServiceID:    q.ServiceID,
		SpecialistID: q.SpecialistID,
		Range:        q.Range,
	})
	if err != nil {
		return empty, fmt.Errorf("resolve slots: %w", err)
	}

	res := Compute(Params{
		Range:    q.Range,
		Duration: duration,
		Window:   r.window,
		Step:     r.step,
		Location: r.loc,
	}, specialistIDs, busy, r.now())

	r.logger.Debug().
		Str("service_id", q.ServiceID).
		Str("specialist_id", q.SpecialistID).
		Int("specialists", len(specialistIDs)).
		Int("busy", len(busy)).
		Int("slots", res.Len()).
		Msg("slots resolved")

	return res, nil
}
