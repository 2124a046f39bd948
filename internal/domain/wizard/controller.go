package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wellness/booking/internal/domain/access"
	"github.com/wellness/booking/internal/domain/availability"
	"github.com/wellness/booking/internal/domain/booking"
	"github.com/wellness/booking/internal/domain/lifecycle"
)

var (
	// ErrStale is returned by a slot refresh superseded by a newer one.
	ErrStale = errors.New("wizard: slot response superseded")
	// ErrClosed is returned once the wizard has been torn down.
	ErrClosed = errors.New("wizard: closed")
)

// SlotResolver resolves bookable slots.
type SlotResolver interface {
	Resolve(ctx context.Context, q availability.Query) (availability.Result, error)
}

// Creator submits a booking to the authority.
type Creator interface {
	CreateAppointment(ctx context.Context, d booking.Draft, idempotencyKey string) (booking.Appointment, error)
}

// Transitioner applies a follow-up status change after an admin booking.
type Transitioner interface {
	Transition(ctx context.Context, appt booking.Appointment, s booking.Session, target booking.AppointmentStatus, adminNotes *string) (booking.Appointment, lifecycle.Decision, error)
}

// Outcome is the result of a local step action. Validation problems are
// reported here and never as errors.
type Outcome struct {
	Step   Step                `json:"step"`
	Errors booking.FieldErrors `json:"errors,omitempty"`
}

// OK reports whether the action passed validation.
func (o Outcome) OK() bool { return len(o.Errors) == 0 }

// Snapshot is a copy of the wizard's state for rendering.
type Snapshot struct {
	Mode   access.DraftMode            `json:"mode"`
	Step   Step                        `json:"step"`
	Draft  Draft                       `json:"draft"`
	Slots  []booking.Slot              `json:"slots"`
	Fields map[string]access.FieldRule `json:"fields"`
	// Error is the last remote failure shown to the user.
	Error string `json:"error,omitempty"`
	// CanRetry is set after a submission failed in transit.
	CanRetry    bool                 `json:"can_retry,omitempty"`
	Appointment *booking.Appointment `json:"appointment,omitempty"`
}

// StepChanged is emitted whenever the visible step changes.
type StepChanged struct {
	Index Step  `json:"index"`
	Draft Draft `json:"draft"`
}

func (StepChanged) SignalName() string { return booking.SignalWizardStepChanged }

// Submitted is emitted after every submission attempt.
type Submitted struct {
	OK          bool                 `json:"ok"`
	Appointment *booking.Appointment `json:"appointment,omitempty"`
	Kind        string               `json:"kind,omitempty"`
	Message     string               `json:"message,omitempty"`
}

func (Submitted) SignalName() string { return booking.SignalWizardSubmitted }

// Options configures a controller.
type Options struct {
	Location     *time.Location
	Now          func() time.Time
	Logger       zerolog.Logger
	Publisher    booking.Publisher
	Transitioner Transitioner
}

// Controller is one booking wizard instance. The same implementation
// serves guests, signed-in clients and admins; the mode only changes the
// field rules.
type Controller struct {
	resolver SlotResolver
	creator  Creator
	trans    Transitioner
	pub      booking.Publisher
	loc      *time.Location
	now      func() time.Time
	logger   zerolog.Logger

	mu       sync.Mutex
	session  booking.Session
	mode     access.DraftMode
	rules    map[string]access.FieldRule
	step     Step
	draft    Draft
	slots    availability.Result
	epoch    uint64
	cancel   context.CancelFunc
	closed   bool
	lastErr  error
	canRetry bool
	created  *booking.Appointment
}

// New creates a wizard for session.
func New(session booking.Session, resolver SlotResolver, creator Creator, opts Options) *Controller {
	c := &Controller{
		resolver: resolver,
		creator:  creator,
		trans:    opts.Transitioner,
		pub:      opts.Publisher,
		loc:      opts.Location,
		now:      opts.Now,
		logger:   opts.Logger,
		slots:    availability.Result{Slots: []booking.Slot{}},
	}
	if c.pub == nil {
		c.pub = booking.Discard
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.applySession(session)
	c.draft.IdempotencyKey = uuid.NewString()
	return c
}

// applySession sets the mode and pre-fills identity. Caller holds mu or
// owns c exclusively.
func (c *Controller) applySession(s booking.Session) {
	wasAuthenticated := c.mode == access.ModeAuthenticated
	c.session = s
	c.mode = access.ModeFor(s)
	c.rules = access.DraftFields(c.mode)

	switch c.mode {
	case access.ModeAuthenticated:
		c.draft.Contact = s.Contact()
		c.draft.UserID = s.UserID
	case access.ModeGuest:
		if wasAuthenticated {
			c.draft.Contact = booking.Contact{}
		}
		c.draft.UserID = ""
	}
}

// SetSession re-derives mode and identity after login or logout. Draft
// selections are kept.
func (c *Controller) SetSession(s booking.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applySession(s)
}

// State returns a copy of the wizard state.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() Snapshot {
	slots := make([]booking.Slot, len(c.slots.Slots))
	copy(slots, c.slots.Slots)
	rules := make(map[string]access.FieldRule, len(c.rules))
	for k, v := range c.rules {
		rules[k] = v
	}
	snap := Snapshot{
		Mode:     c.mode,
		Step:     c.step,
		Draft:    c.draft,
		Slots:    slots,
		Fields:   rules,
		CanRetry: c.canRetry,
	}
	if c.lastErr != nil {
		snap.Error = c.lastErr.Error()
	}
	if c.created != nil {
		a := *c.created
		snap.Appointment = &a
	}
	return snap
}

// SelectService picks the service and re-resolves slots. A start chosen
// from the previous slot list is dropped.
func (c *Controller) SelectService(ctx context.Context, serviceID string) error {
	return c.changeSelection(ctx, true, func(d *Draft) { d.ServiceID = serviceID })
}

// SelectSpecialist pins a specialist, or clears the pin with "".
func (c *Controller) SelectSpecialist(ctx context.Context, specialistID string) error {
	return c.changeSelection(ctx, true, func(d *Draft) { d.SpecialistID = specialistID })
}

// SelectDay switches the day whose slots are offered.
func (c *Controller) SelectDay(ctx context.Context, day time.Time) error {
	return c.changeSelection(ctx, true, func(d *Draft) { d.Day = day.In(c.loc) })
}

// RefreshSlots re-resolves slots for the current selection. The chosen
// start is kept; Advance rejects it if it has disappeared.
func (c *Controller) RefreshSlots(ctx context.Context) error {
	return c.changeSelection(ctx, false, func(*Draft) {})
}

func (c *Controller) changeSelection(ctx context.Context, clearStart bool, mutate func(*Draft)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.step == StepDone {
		c.mu.Unlock()
		return &booking.ValidationError{Message: "booking already submitted"}
	}
	mutate(&c.draft)
	if clearStart && !c.draft.FixedStart {
		c.draft.StartAt = time.Time{}
	}
	if c.draft.Day.IsZero() {
		c.draft.Day = c.now().In(c.loc)
	}
	return c.resolveLocked(ctx)
}

// resolveLocked issues an epoch-guarded slot fetch. It is entered with mu
// held and returns with mu released.
func (c *Controller) resolveLocked(ctx context.Context) error {
	c.epoch++
	epoch := c.epoch
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.draft.ServiceID == "" {
		c.slots = availability.Result{Slots: []booking.Slot{}}
		c.mu.Unlock()
		return nil
	}

	day := c.draft.Day
	q := availability.Query{
		ServiceID:    c.draft.ServiceID,
		SpecialistID: c.draft.SpecialistID,
		Range:        booking.DateRange{From: day, To: day},
	}
	fctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	res, err := c.resolver.Resolve(fctx, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if epoch != c.epoch {
		c.logger.Debug().Uint64("epoch", epoch).Msg("dropping stale slot response")
		return ErrStale
	}
	c.cancel = nil
	if err != nil {
		c.lastErr = err
		return err
	}
	if res.Slots == nil {
		res.Slots = []booking.Slot{}
	}
	c.slots = res
	c.lastErr = nil
	return nil
}

// SelectStart picks a start from the resolved slot list.
func (c *Controller) SelectStart(start time.Time) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.slots.Contains(start) {
		return Outcome{Step: c.step, Errors: booking.FieldErrors{access.FieldStartAt: "this time is not available"}}
	}
	if !c.draft.StartAt.Equal(start) {
		c.draft.IdempotencyKey = uuid.NewString()
	}
	c.draft.StartAt = start
	c.draft.FixedStart = false
	for _, s := range c.slots.Slots {
		if s.Start.Equal(start) && s.SpecialistID != "" {
			c.draft.SpecialistID = s.SpecialistID
		}
	}
	return Outcome{Step: c.step}
}

// FixStart sets a start chosen on the calendar. It bypasses the slot list
// check on advance; the authority still has the final word.
func (c *Controller) FixStart(start time.Time, specialistID string) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if start.Before(c.now()) {
		return Outcome{Step: c.step, Errors: booking.FieldErrors{access.FieldStartAt: "this time is in the past"}}
	}
	c.draft.StartAt = start
	c.draft.FixedStart = true
	c.draft.Day = start.In(c.loc)
	if specialistID != "" {
		c.draft.SpecialistID = specialistID
	}
	c.draft.IdempotencyKey = uuid.NewString()
	return Outcome{Step: c.step}
}

// SetNotes stores the client's free-text notes.
func (c *Controller) SetNotes(notes string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.ClientNotes = notes
}

// SetContact stores identity fields. Read-only fields for the current mode
// are rejected.
func (c *Controller) SetContact(contact booking.Contact) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	errs := booking.FieldErrors{}
	next := c.draft.Contact
	set := func(field, value string, dst *string) {
		if value == *dst {
			return
		}
		if !c.rules[field].Editable {
			errs[field] = "read-only"
			return
		}
		*dst = value
	}
	set(access.FieldFirstName, contact.FirstName, &next.FirstName)
	set(access.FieldLastName, contact.LastName, &next.LastName)
	set(access.FieldEmail, contact.Email, &next.Email)
	set(access.FieldPhone, contact.Phone, &next.Phone)
	if len(errs) > 0 {
		return Outcome{Step: c.step, Errors: errs}
	}
	c.draft.Contact = next
	return Outcome{Step: c.step}
}

// SetAdminFields sets the client account, target status and admin notes.
// Only available in admin-edit mode.
func (c *Controller) SetAdminFields(userID string, status booking.AppointmentStatus, adminNotes string) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != access.ModeAdminEdit {
		return Outcome{Step: c.step, Errors: booking.FieldErrors{access.FieldStatus: "read-only"}}
	}
	if status != "" && !status.Valid() {
		return Outcome{Step: c.step, Errors: booking.FieldErrors{access.FieldStatus: "unknown status"}}
	}
	c.draft.UserID = userID
	c.draft.Status = status
	c.draft.AdminNotes = adminNotes
	return Outcome{Step: c.step}
}

// Advance validates the current step and moves forward.
func (c *Controller) Advance() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs booking.FieldErrors
	switch c.step {
	case StepSelect:
		errs = validateSelect(c.draft, c.slots)
	case StepIdentify:
		errs = validateIdentify(c.draft, c.rules)
	default:
		return Outcome{Step: c.step}
	}
	if len(errs) > 0 {
		return Outcome{Step: c.step, Errors: errs}
	}
	c.setStep(c.step + 1)
	return Outcome{Step: c.step}
}

// Back moves one step backward without touching the draft.
func (c *Controller) Back() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step > StepSelect && c.step < StepDone {
		c.setStep(c.step - 1)
	}
	return Outcome{Step: c.step}
}

func (c *Controller) setStep(s Step) {
	if s == c.step {
		return
	}
	c.step = s
	c.pub.Publish(StepChanged{Index: s, Draft: c.draft})
}

// Submit creates the appointment from the confirmed draft. On a slot
// conflict the wizard returns to the first step and re-resolves slots. On
// a transport failure it stays on the confirm step so the user can retry;
// nothing is retried automatically.
func (c *Controller) Submit(ctx context.Context) (booking.Appointment, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return booking.Appointment{}, ErrClosed
	}
	if c.step != StepConfirm {
		step := c.step
		c.mu.Unlock()
		return booking.Appointment{}, &booking.ValidationError{Message: fmt.Sprintf("cannot submit from step %s", step)}
	}
	if errs := validateSelect(c.draft, c.slots); len(errs) > 0 {
		c.mu.Unlock()
		return booking.Appointment{}, &booking.ValidationError{Fields: errs}
	}
	if errs := validateIdentify(c.draft, c.rules); len(errs) > 0 {
		c.mu.Unlock()
		return booking.Appointment{}, &booking.ValidationError{Fields: errs}
	}
	draft := c.draft
	session := c.session
	mode := c.mode
	c.mu.Unlock()

	appt, err := c.creator.CreateAppointment(ctx, draft.Booking(), draft.IdempotencyKey)
	if err != nil {
		return booking.Appointment{}, c.submitFailed(ctx, err)
	}

	var followUp error
	if mode == access.ModeAdminEdit && c.trans != nil && draft.Status != "" && draft.Status != appt.Status {
		var notes *string
		if draft.AdminNotes != "" {
			notes = &draft.AdminNotes
		}
		updated, _, err := c.trans.Transition(ctx, appt, session, draft.Status, notes)
		if err != nil {
			followUp = fmt.Errorf("appointment %s created but status not applied: %w", appt.ID, err)
			c.logger.Warn().Err(err).Str("appointment_id", appt.ID).Msg("admin status follow-up failed")
		} else {
			appt = updated
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		// Torn down while the request was in flight: report to the caller
		// but leave the wizard untouched.
		c.logger.Info().Str("appointment_id", appt.ID).Msg("booking submitted after wizard closed")
		return appt, nil
	}
	c.created = &appt
	c.lastErr = followUp
	c.canRetry = false
	c.setStep(StepDone)
	c.pub.Publish(Submitted{OK: true, Appointment: &appt})
	c.logger.Info().Str("appointment_id", appt.ID).Str("service_id", appt.ServiceID).Msg("booking submitted")
	return appt, nil
}

func (c *Controller) submitFailed(ctx context.Context, err error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return err
	}
	c.lastErr = err
	sig := Submitted{Message: err.Error()}
	if kind := booking.Kind(err); kind != nil {
		sig.Kind = kind.Error()
	}

	if errors.Is(err, booking.ErrSlotUnavailable) {
		c.canRetry = false
		c.draft.StartAt = time.Time{}
		c.draft.FixedStart = false
		c.draft.IdempotencyKey = uuid.NewString()
		c.setStep(StepSelect)
		c.pub.Publish(sig)
		c.logger.Info().Str("service_id", c.draft.ServiceID).Msg("slot taken, returning to selection")
		if rerr := c.resolveLocked(ctx); rerr != nil && !errors.Is(rerr, ErrStale) {
			c.logger.Warn().Err(rerr).Msg("slot refresh after conflict failed")
		}
		c.mu.Lock()
		// Keep the conflict as the visible message over any refresh error.
		c.lastErr = err
		c.mu.Unlock()
		return err
	}

	c.canRetry = errors.Is(err, booking.ErrNetwork)
	c.pub.Publish(sig)
	c.logger.Warn().Err(err).Bool("retryable", c.canRetry).Msg("booking submission failed")
	c.mu.Unlock()
	return err
}

// Close tears the wizard down and cancels any in-flight slot fetch.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
