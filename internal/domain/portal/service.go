// Package portal is the backend for the booking portal front end. It hosts
// calendar and wizard instances per browser tab, lists appointments through
// the access policy and routes status changes through the state machine.
package portal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wellness/booking/internal/domain/access"
	"github.com/wellness/booking/internal/domain/availability"
	"github.com/wellness/booking/internal/domain/booking"
	"github.com/wellness/booking/internal/domain/calendar"
	"github.com/wellness/booking/internal/domain/lifecycle"
	"github.com/wellness/booking/internal/domain/wizard"
	"github.com/wellness/booking/internal/platform/bookingapi"
	"github.com/wellness/booking/pkg/pagination"
)

const (
	kindCalendar = "calendar"
	kindWizard   = "wizard"

	defaultMaxInstances = 10000
	defaultInstanceTTL  = 30 * time.Minute
	maxSlotRangeDays    = 62
)

// SlotResolver resolves bookable slots.
type SlotResolver interface {
	Resolve(ctx context.Context, q availability.Query) (availability.Result, error)
}

// Catalog answers service and specialist lookups.
type Catalog interface {
	Services(ctx context.Context) ([]booking.Service, error)
	Service(ctx context.Context, id string) (booking.Service, error)
	SpecialistsForService(ctx context.Context, serviceID string) ([]booking.Specialist, error)
}

// Remote is the part of the booking authority the portal calls directly.
// Status updates go through the lifecycle machine.
type Remote interface {
	ListAppointments(ctx context.Context, f booking.AppointmentFilter) ([]booking.Appointment, error)
	GetAppointment(ctx context.Context, id string) (booking.Appointment, error)
	CreateAppointment(ctx context.Context, d booking.Draft, idempotencyKey string) (booking.Appointment, error)
}

// SignalHub fans instance signals out to subscribers.
type SignalHub interface {
	Publisher(topic string) booking.Publisher
	CloseTopic(topic string)
}

// Metrics receives portal counters.
type Metrics interface {
	SlotsResolved(scope string, n int)
	StaleDropped(component string)
	Submission(mode string, err error)
	Transition(role booking.Role, to booking.AppointmentStatus, override bool, err error)
	InstanceOpened(kind string)
	InstanceClosed(kind string)
}

type nopMetrics struct{}

func (nopMetrics) SlotsResolved(string, int)                                       {}
func (nopMetrics) StaleDropped(string)                                             {}
func (nopMetrics) Submission(string, error)                                        {}
func (nopMetrics) Transition(booking.Role, booking.AppointmentStatus, bool, error) {}
func (nopMetrics) InstanceOpened(string)                                           {}
func (nopMetrics) InstanceClosed(string)                                           {}

type nopHub struct{}

func (nopHub) Publisher(string) booking.Publisher { return booking.Discard }
func (nopHub) CloseTopic(string)                  {}

// Caller is the identity and bearer token of one request.
type Caller struct {
	Session booking.Session
	Token   string
}

// Options configures a Service.
type Options struct {
	Location *time.Location
	Now      func() time.Time
	Logger   zerolog.Logger
	Metrics  Metrics
	Hub      SignalHub
	// MaxInstances caps live instances per kind.
	MaxInstances int
	// InstanceTTL tears down instances idle for this long.
	InstanceTTL time.Duration
}

// Service implements the portal operations.
type Service struct {
	resolver  SlotResolver
	catalog   Catalog
	remote    Remote
	machine   *lifecycle.Machine
	overrides lifecycle.OverrideRepository
	loc       *time.Location
	now       func() time.Time
	logger    zerolog.Logger
	metrics   Metrics

	calendars *registry[*calendar.Projector]
	wizards   *registry[*wizard.Controller]
}

func NewService(resolver SlotResolver, catalog Catalog, remote Remote, machine *lifecycle.Machine, overrides lifecycle.OverrideRepository, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Hub == nil {
		opts.Hub = nopHub{}
	}
	if opts.MaxInstances <= 0 {
		opts.MaxInstances = defaultMaxInstances
	}
	if opts.InstanceTTL <= 0 {
		opts.InstanceTTL = defaultInstanceTTL
	}
	return &Service{
		resolver:  resolver,
		catalog:   catalog,
		remote:    remote,
		machine:   machine,
		overrides: overrides,
		loc:       opts.Location,
		now:       opts.Now,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		calendars: newRegistry[*calendar.Projector](kindCalendar, opts.MaxInstances, opts.InstanceTTL, opts.Hub, opts.Metrics),
		wizards:   newRegistry[*wizard.Controller](kindWizard, opts.MaxInstances, opts.InstanceTTL, opts.Hub, opts.Metrics),
	}
}

// Shutdown tears down every live instance.
func (s *Service) Shutdown() {
	s.calendars.items.Purge()
	s.wizards.items.Purge()
}

// CanFollow reports whether sess may subscribe to topic. It matches the
// websocket topic guard.
func (s *Service) CanFollow(sess booking.Session, topic string) bool {
	kind, id, ok := strings.Cut(topic, "/")
	if !ok {
		return false
	}
	switch kind {
	case kindCalendar:
		return s.calendars.canFollow(id, sess)
	case kindWizard:
		return s.wizards.canFollow(id, sess)
	}
	return false
}

func (s *Service) parseDay(field, value string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, value, s.loc)
	if err != nil {
		return time.Time{}, &booking.ValidationError{Fields: booking.FieldErrors{field: "expected YYYY-MM-DD"}}
	}
	return d, nil
}

// -- Catalog --

// Services lists active services with the specialists offering them.
func (s *Service) Services(ctx context.Context) ([]ServiceView, error) {
	all, err := s.catalog.Services(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	out := make([]ServiceView, 0, len(all))
	for _, svc := range all {
		if !svc.IsActive {
			continue
		}
		specialists, err := s.Specialists(ctx, svc.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ServiceView{Service: svc, Specialists: specialists})
	}
	return out, nil
}

// Specialists lists who delivers serviceID.
func (s *Service) Specialists(ctx context.Context, serviceID string) ([]SpecialistView, error) {
	all, err := s.catalog.SpecialistsForService(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list specialists for %s: %w", serviceID, err)
	}
	out := make([]SpecialistView, 0, len(all))
	for _, sp := range all {
		out = append(out, SpecialistView{Specialist: sp, Name: sp.Name()})
	}
	return out, nil
}

// -- Slots --

// Slots resolves bookable starts for a service over an inclusive day range.
// An empty dateTo means a single day; an empty dateFrom means today.
func (s *Service) Slots(ctx context.Context, serviceID, specialistID, dateFrom, dateTo string, durationMinutes int) (*SlotsResponse, error) {
	if serviceID == "" {
		return nil, &booking.ValidationError{Fields: booking.FieldErrors{access.FieldService: "required"}}
	}
	from := s.now().In(s.loc)
	if dateFrom != "" {
		d, err := s.parseDay("date_from", dateFrom)
		if err != nil {
			return nil, err
		}
		from = d
	}
	to := from
	if dateTo != "" {
		d, err := s.parseDay("date_to", dateTo)
		if err != nil {
			return nil, err
		}
		to = d
	}
	if to.Before(from) {
		return nil, &booking.ValidationError{Fields: booking.FieldErrors{"date_to": "must not be before date_from"}}
	}
	if to.Sub(from) > maxSlotRangeDays*24*time.Hour {
		return nil, &booking.ValidationError{Fields: booking.FieldErrors{"date_to": fmt.Sprintf("range exceeds %d days", maxSlotRangeDays)}}
	}

	res, err := s.resolver.Resolve(ctx, availability.Query{
		ServiceID:       serviceID,
		SpecialistID:    specialistID,
		Range:           booking.DateRange{From: from, To: to},
		DurationMinutes: durationMinutes,
	})
	if err != nil {
		return nil, err
	}
	scope := "any"
	if specialistID != "" {
		scope = "specialist"
	}
	s.metrics.SlotsResolved(scope, res.Len())
	return &SlotsResponse{
		ServiceID:    serviceID,
		SpecialistID: specialistID,
		DateFrom:     from.Format(dateLayout),
		DateTo:       to.Format(dateLayout),
		Slots:        res.Slots,
	}, nil
}

// -- Calendars --

func (s *Service) calendarResponse(inst *instance[*calendar.Projector]) *CalendarResponse {
	return &CalendarResponse{ID: inst.id, Topic: inst.topic, State: inst.value.State()}
}

func (s *Service) calendarFailed(err error) error {
	if errors.Is(err, calendar.ErrStale) {
		s.metrics.StaleDropped(kindCalendar)
	}
	return err
}

// OpenCalendar creates a calendar instance and runs its first fetch. The
// instance is discarded if that fetch fails.
func (s *Service) OpenCalendar(ctx context.Context, who Caller, req CalendarRequest) (*CalendarResponse, error) {
	in := calendar.Inputs{
		Session:         who.Session,
		View:            calendar.ViewWeek,
		Anchor:          s.now().In(s.loc),
		ServiceID:       req.ServiceID,
		SpecialistID:    req.SpecialistID,
		Status:          req.Status,
		DurationMinutes: req.DurationMinutes,
	}
	if req.View != "" {
		v, err := calendar.ParseView(req.View)
		if err != nil {
			return nil, &booking.ValidationError{Fields: booking.FieldErrors{"view": err.Error()}}
		}
		in.View = v
	}
	if req.Date != "" {
		d, err := s.parseDay("date", req.Date)
		if err != nil {
			return nil, err
		}
		in.Anchor = d
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, &booking.ValidationError{Fields: booking.FieldErrors{access.FieldStatus: "unknown status"}}
	}

	inst := s.calendars.open(who.Session, who.Token, func(pub booking.Publisher) *calendar.Projector {
		return calendar.NewProjector(in, s.resolver, s.remote, pub, s.now, s.logger)
	}, s.followCalendarSession)

	if err := inst.value.Refresh(ctx); err != nil {
		s.calendars.close(inst.id)
		return nil, s.calendarFailed(err)
	}
	s.logger.Debug().Str("calendar_id", inst.id).Str("view", string(in.View)).Str("role", string(who.Session.Role)).Msg("calendar opened")
	return s.calendarResponse(inst), nil
}

func (s *Service) followCalendarSession(inst *instance[*calendar.Projector], sess booking.Session) {
	err := inst.value.SetSession(inst.ctx(), sess)
	switch {
	case err == nil, errors.Is(err, calendar.ErrClosed):
	case errors.Is(err, calendar.ErrStale):
		s.metrics.StaleDropped(kindCalendar)
	default:
		s.logger.Warn().Err(err).Str("calendar_id", inst.id).Msg("calendar refresh after session change failed")
	}
}

// Calendar returns the state of a calendar instance.
func (s *Service) Calendar(id string, who Caller) (*CalendarResponse, error) {
	inst, err := s.calendars.get(id, who.Session, who.Token)
	if err != nil {
		return nil, err
	}
	return s.calendarResponse(inst), nil
}

func (s *Service) updateCalendar(ctx context.Context, id string, who Caller, fn func(ctx context.Context, p *calendar.Projector) error) (*CalendarResponse, error) {
	inst, err := s.calendars.get(id, who.Session, who.Token)
	if err != nil {
		return nil, err
	}
	if err := fn(ctx, inst.value); err != nil {
		return nil, s.calendarFailed(err)
	}
	return s.calendarResponse(inst), nil
}

// NavigateCalendar moves the visible range.
func (s *Service) NavigateCalendar(ctx context.Context, id string, who Caller, req NavigateRequest) (*CalendarResponse, error) {
	var date time.Time
	switch req.Direction {
	case "prev", "next", "today":
	case "date":
		d, err := s.parseDay("date", req.Date)
		if err != nil {
			return nil, err
		}
		date = d
	default:
		return nil, &booking.ValidationError{Fields: booking.FieldErrors{"direction": "expected prev, next, today or date"}}
	}
	return s.updateCalendar(ctx, id, who, func(ctx context.Context, p *calendar.Projector) error {
		switch req.Direction {
		case "prev":
			return p.Navigate(ctx, calendar.Prev)
		case "next":
			return p.Navigate(ctx, calendar.Next)
		case "today":
			return p.Today(ctx)
		}
		return p.GoTo(ctx, date)
	})
}

// SetCalendarView switches granularity.
func (s *Service) SetCalendarView(ctx context.Context, id string, who Caller, req ViewRequest) (*CalendarResponse, error) {
	v, err := calendar.ParseView(req.View)
	if err != nil {
		return nil, &booking.ValidationError{Fields: booking.FieldErrors{"view": err.Error()}}
	}
	return s.updateCalendar(ctx, id, who, func(ctx context.Context, p *calendar.Projector) error {
		return p.SetView(ctx, v)
	})
}

// SetCalendarFilters replaces service, specialist and status filters.
func (s *Service) SetCalendarFilters(ctx context.Context, id string, who Caller, req FiltersRequest) (*CalendarResponse, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, &booking.ValidationError{Fields: booking.FieldErrors{access.FieldStatus: "unknown status"}}
	}
	return s.updateCalendar(ctx, id, who, func(ctx context.Context, p *calendar.Projector) error {
		return p.SetFilters(ctx, calendar.Filters{
			ServiceID:       req.ServiceID,
			SpecialistID:    req.SpecialistID,
			Status:          req.Status,
			DurationMinutes: req.DurationMinutes,
		})
	})
}

// RefreshCalendar re-fetches the current range.
func (s *Service) RefreshCalendar(ctx context.Context, id string, who Caller) (*CalendarResponse, error) {
	return s.updateCalendar(ctx, id, who, func(ctx context.Context, p *calendar.Projector) error {
		return p.Refresh(ctx)
	})
}

// SelectCalendarSlot handles a click on a free start. ok is false for past
// starts and starts that cannot be sized.
func (s *Service) SelectCalendarSlot(id string, who Caller, start time.Time) (calendar.SlotSelected, bool, error) {
	inst, err := s.calendars.get(id, who.Session, who.Token)
	if err != nil {
		return calendar.SlotSelected{}, false, err
	}
	sel, ok := inst.value.SelectSlot(start)
	return sel, ok, nil
}

// SelectCalendarAppointment handles a click on a projected appointment.
func (s *Service) SelectCalendarAppointment(id string, who Caller, appointmentID string) (*AppointmentView, error) {
	inst, err := s.calendars.get(id, who.Session, who.Token)
	if err != nil {
		return nil, err
	}
	appt, ok := inst.value.SelectAppointment(appointmentID)
	if !ok {
		return nil, errNotFound
	}
	v := s.view(appt, who.Session)
	return &v, nil
}

// CloseCalendar tears a calendar instance down.
func (s *Service) CloseCalendar(id string, who Caller) error {
	if _, err := s.calendars.get(id, who.Session, who.Token); err != nil {
		return err
	}
	s.calendars.close(id)
	return nil
}

// -- Wizards --

func (s *Service) wizardResponse(inst *instance[*wizard.Controller], errs booking.FieldErrors) *WizardResponse {
	return &WizardResponse{ID: inst.id, Topic: inst.topic, State: inst.value.State(), Errors: errs}
}

func (s *Service) wizardFailed(err error) error {
	if errors.Is(err, wizard.ErrStale) {
		s.metrics.StaleDropped(kindWizard)
	}
	return err
}

// OpenWizard creates a wizard instance. A start clicked on the calendar is
// fixed up front.
func (s *Service) OpenWizard(ctx context.Context, who Caller, req WizardRequest) (*WizardResponse, error) {
	var day time.Time
	if req.Day != "" {
		d, err := s.parseDay("day", req.Day)
		if err != nil {
			return nil, err
		}
		day = d
	}
	if req.StartAt != nil && !req.StartAt.After(s.now()) {
		return nil, &booking.ValidationError{Fields: booking.FieldErrors{access.FieldStartAt: "this time is in the past"}}
	}

	inst := s.wizards.open(who.Session, who.Token, func(pub booking.Publisher) *wizard.Controller {
		opts := wizard.Options{Location: s.loc, Now: s.now, Logger: s.logger, Publisher: pub}
		if s.machine != nil {
			opts.Transitioner = s.machine
		}
		return wizard.New(who.Session, s.resolver, s.remote, opts)
	}, func(inst *instance[*wizard.Controller], sess booking.Session) {
		inst.value.SetSession(sess)
	})

	w := inst.value
	var err error
	if !day.IsZero() {
		err = w.SelectDay(ctx, day)
	}
	if err == nil && req.SpecialistID != "" {
		err = w.SelectSpecialist(ctx, req.SpecialistID)
	}
	if err == nil && req.ServiceID != "" {
		err = w.SelectService(ctx, req.ServiceID)
	}
	if err != nil {
		s.wizards.close(inst.id)
		return nil, s.wizardFailed(err)
	}
	var errs booking.FieldErrors
	if req.StartAt != nil {
		errs = w.FixStart(*req.StartAt, req.SpecialistID).Errors
	}
	s.logger.Debug().Str("wizard_id", inst.id).Str("mode", string(w.State().Mode)).Msg("wizard opened")
	return s.wizardResponse(inst, errs), nil
}

// Wizard returns the state of a wizard instance after syncing its session.
func (s *Service) Wizard(id string, who Caller) (*WizardResponse, error) {
	inst, err := s.wizards.get(id, who.Session, who.Token)
	if err != nil {
		return nil, err
	}
	return s.wizardResponse(inst, nil), nil
}

// SignOutWizard drops the signed-in identity from a wizard, as on logout.
// Selections are kept; pre-filled contact details are cleared.
func (s *Service) SignOutWizard(id string, who Caller) (*WizardResponse, error) {
	inst, err := s.wizards.get(id, who.Session, who.Token)
	if err != nil {
		return nil, err
	}
	s.wizards.release(inst)
	return s.wizardResponse(inst, nil), nil
}

// SelectWizard changes day, specialist or service, in that order.
func (s *Service) SelectWizard(ctx context.Context, id string, who Caller, req SelectionRequest) (*WizardResponse, error) {
	var day time.Time
	if req.Day != nil {
		d, err := s.parseDay("day", *req.Day)
		if err != nil {
			return nil, err
		}
		day = d
	}
	inst, err := s.wizards.get(id, who.Session, who.Token)
	if err != nil {
		return nil, err
	}
	w := inst.value
	if req.Day != nil {
		err = w.SelectDay(ctx, day)
	}
	if err == nil && req.SpecialistID != nil {
		err = w.SelectSpecialist(ctx, *req.SpecialistID)
	}
	if err == nil && req.ServiceID != nil {
		err = w.SelectService(ctx, *req.ServiceID)
	}
	if err != nil {
		return nil, s.wizardFailed(err)
	}
	return s.wizardResponse(inst, nil), nil
}

// RefreshWizardSlots re-resolves the offered slots.
func (s *Service) RefreshWizardSlots(ctx context.Context, id string, who Caller) (*WizardResponse, error) {
	inst, err := s.wizards.get(id, who.Session, who.Token)
	if err != nil {
		return nil, err
	}
	if err := inst.value.RefreshSlots(ctx); err != nil {
		return nil, s.wizardFailed(err)
	}
	return s.wizardResponse(inst, nil), nil
}

// wizardStep runs a local step action and reports its field errors.
func (s *Service) wizardStep(id string, who Caller, fn func(w *wizard.Controller) wizard.Outcome) (*WizardResponse, error) {
	inst, err := s.wizards.get(id, who.Session, who.Token)
	if err != nil {
		return nil, err
	}
	out := fn(inst.value)
	return s.wizardResponse(inst, out.Errors), nil
}

// SelectWizardStart picks a start from the offered slots.
func (s *Service) SelectWizardStart(id string, who Caller, start time.Time) (*WizardResponse, error) {
	return s.wizardStep(id, who, func(w *wizard.Controller) wizard.Outcome { return w.SelectStart(start) })
}

// SetWizardContact stores identity fields.
func (s *Service) SetWizardContact(id string, who Caller, contact booking.Contact) (*WizardResponse, error) {
	return s.wizardStep(id, who, func(w *wizard.Controller) wizard.Outcome { return w.SetContact(contact) })
}

// SetWizardNotes stores client notes.
func (s *Service) SetWizardNotes(id string, who Caller, notes string) (*WizardResponse, error) {
	return s.wizardStep(id, who, func(w *wizard.Controller) wizard.Outcome {
		w.SetNotes(notes)
		return wizard.Outcome{Step: w.State().Step}
	})
}

// SetWizardAdminFields sets the client account, status and admin notes.
func (s *Service) SetWizardAdminFields(id string, who Caller, req AdminFieldsRequest) (*WizardResponse, error) {
	return s.wizardStep(id, who, func(w *wizard.Controller) wizard.Outcome {
		return w.SetAdminFields(req.UserID, req.Status, req.AdminNotes)
	})
}

// AdvanceWizard validates the current step and moves forward.
func (s *Service) AdvanceWizard(id string, who Caller) (*WizardResponse, error) {
	return s.wizardStep(id, who, (*wizard.Controller).Advance)
}

// BackWizard moves one step backward.
func (s *Service) BackWizard(id string, who Caller) (*WizardResponse, error) {
	return s.wizardStep(id, who, (*wizard.Controller).Back)
}

// SubmitWizard creates the appointment. The response carries the wizard
// state after the attempt, including on failure.
func (s *Service) SubmitWizard(ctx context.Context, id string, who Caller) (*WizardResponse, error) {
	inst, err := s.wizards.get(id, who.Session, who.Token)
	if err != nil {
		return nil, err
	}
	mode := string(inst.value.State().Mode)
	_, err = inst.value.Submit(ctx)
	s.metrics.Submission(mode, err)
	resp := s.wizardResponse(inst, nil)
	if err != nil {
		var ve *booking.ValidationError
		if errors.As(err, &ve) {
			resp.Errors = ve.Fields
		}
		return resp, err
	}
	return resp, nil
}

// CloseWizard tears a wizard instance down.
func (s *Service) CloseWizard(id string, who Caller) error {
	if _, err := s.wizards.get(id, who.Session, who.Token); err != nil {
		return err
	}
	s.wizards.close(id)
	return nil
}

// -- Appointments --

func (s *Service) view(appt booking.Appointment, sess booking.Session) AppointmentView {
	redacted := access.Redact(appt, sess)
	return AppointmentView{
		Appointment: redacted,
		Title:       calendar.AppointmentTitle(redacted),
		EndAt:       appt.EndAt(),
		Actions:     access.ActionsFor(appt, sess, s.now()),
		Fields:      access.VisibleFields(appt, sess),
	}
}

// scopeFilter narrows f to what the session may list. ok is false when
// the session can list nothing.
func scopeFilter(f booking.AppointmentFilter, sess booking.Session) (booking.AppointmentFilter, bool) {
	switch sess.Role {
	case booking.RoleAdmin:
		return f, true
	case booking.RoleSpecialist:
		if sess.SpecialistProfileID == "" {
			return f, false
		}
		f.SpecialistID = sess.SpecialistProfileID
		f.UserID = ""
		return f, true
	case booking.RoleClient:
		if sess.UserID == "" {
			return f, false
		}
		f.UserID = sess.UserID
		return f, true
	}
	return f, false
}

// ListAppointments lists the appointments the session may see, newest
// start last, one page at a time.
func (s *Service) ListAppointments(ctx context.Context, sess booking.Session, f booking.AppointmentFilter, p pagination.Params) ([]AppointmentView, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, &booking.ValidationError{Fields: booking.FieldErrors{access.FieldStatus: "unknown status"}}
	}
	scoped, ok := scopeFilter(f, sess)
	if !ok {
		return []AppointmentView{}, 0, nil
	}
	appts, err := s.remote.ListAppointments(ctx, scoped)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	visible := make([]booking.Appointment, 0, len(appts))
	for _, a := range appts {
		if access.CanView(a, sess) {
			visible = append(visible, a)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool { return visible[i].StartAt.Before(visible[j].StartAt) })

	page := pagination.Slice(visible, p)
	out := make([]AppointmentView, 0, len(page))
	for _, a := range page {
		out = append(out, s.view(a, sess))
	}
	return out, len(visible), nil
}

func (s *Service) visibleAppointment(ctx context.Context, sess booking.Session, id string) (booking.Appointment, error) {
	appt, err := s.remote.GetAppointment(ctx, id)
	if err != nil {
		if bookingapi.IsNotFound(err) {
			return booking.Appointment{}, errNotFound
		}
		return booking.Appointment{}, fmt.Errorf("get appointment %s: %w", id, err)
	}
	if !access.CanView(appt, sess) {
		return booking.Appointment{}, errNotFound
	}
	return appt, nil
}

// GetAppointment returns one appointment as the session may see it.
func (s *Service) GetAppointment(ctx context.Context, sess booking.Session, id string) (*AppointmentView, error) {
	appt, err := s.visibleAppointment(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	v := s.view(appt, sess)
	return &v, nil
}

// ChangeStatus moves an appointment through the lifecycle machine. Admin
// overrides out of a terminal status are audited by the machine.
func (s *Service) ChangeStatus(ctx context.Context, sess booking.Session, id string, req StatusChangeRequest) (*AppointmentView, error) {
	if !req.Status.Valid() {
		return nil, &booking.ValidationError{Fields: booking.FieldErrors{access.FieldStatus: "unknown status"}}
	}
	if req.AdminNotes != nil && sess.Role == booking.RoleClient {
		return nil, &booking.ValidationError{Fields: booking.FieldErrors{access.FieldAdminNotes: "read-only"}}
	}
	appt, err := s.visibleAppointment(ctx, sess, id)
	if err != nil {
		return nil, err
	}

	updated, dec, err := s.machine.Transition(ctx, appt, sess, req.Status, req.AdminNotes)
	s.metrics.Transition(sess.Role, req.Status, dec.Override, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", id).
		Str("actor_id", sess.UserID).
		Str("role", string(sess.Role)).
		Str("from", string(appt.Status)).
		Str("to", string(updated.Status)).
		Bool("override", dec.Override).
		Msg("appointment status changed")
	v := s.view(updated, sess)
	return &v, nil
}

// Overrides lists audited admin overrides, optionally for one appointment.
func (s *Service) Overrides(ctx context.Context, appointmentID string, p pagination.Params) ([]*lifecycle.OverrideEntry, int, error) {
	if s.overrides == nil {
		return []*lifecycle.OverrideEntry{}, 0, nil
	}
	return s.overrides.List(ctx, appointmentID, p.Limit, p.Offset)
}
