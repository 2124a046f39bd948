package portal

import (
	"time"

	"github.com/wellness/booking/internal/domain/access"
	"github.com/wellness/booking/internal/domain/booking"
	"github.com/wellness/booking/internal/domain/calendar"
	"github.com/wellness/booking/internal/domain/wizard"
)

// CalendarRequest opens a calendar instance.
type CalendarRequest struct {
	View            string                    `json:"view"`
	Date            string                    `json:"date,omitempty"`
	ServiceID       string                    `json:"service_id,omitempty"`
	SpecialistID    string                    `json:"specialist_id,omitempty"`
	Status          booking.AppointmentStatus `json:"status,omitempty"`
	DurationMinutes int                       `json:"duration_minutes,omitempty"`
}

// NavigateRequest moves a calendar. Direction is "prev", "next", "today"
// or "date", the last one with Date set.
type NavigateRequest struct {
	Direction string `json:"direction"`
	Date      string `json:"date,omitempty"`
}

// ViewRequest switches calendar granularity.
type ViewRequest struct {
	View string `json:"view"`
}

// FiltersRequest replaces calendar filters.
type FiltersRequest struct {
	ServiceID       string                    `json:"service_id,omitempty"`
	SpecialistID    string                    `json:"specialist_id,omitempty"`
	Status          booking.AppointmentStatus `json:"status,omitempty"`
	DurationMinutes int                       `json:"duration_minutes,omitempty"`
}

// SelectSlotRequest is a click on a calendar slot.
type SelectSlotRequest struct {
	Start time.Time `json:"start"`
}

// SelectAppointmentRequest is a click on a calendar appointment.
type SelectAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

// CalendarResponse describes a calendar instance.
type CalendarResponse struct {
	ID    string            `json:"id"`
	Topic string            `json:"topic"`
	State calendar.Snapshot `json:"state"`
}

// WizardRequest opens a wizard instance. StartAt pre-selects a start
// clicked on the calendar.
type WizardRequest struct {
	ServiceID    string     `json:"service_id,omitempty"`
	SpecialistID string     `json:"specialist_id,omitempty"`
	Day          string     `json:"day,omitempty"`
	StartAt      *time.Time `json:"start_at,omitempty"`
}

// SelectionRequest changes the step 0 selection. Nil fields are left
// alone; an empty specialist clears the pin.
type SelectionRequest struct {
	ServiceID    *string `json:"service_id,omitempty"`
	SpecialistID *string `json:"specialist_id,omitempty"`
	Day          *string `json:"day,omitempty"`
}

// StartRequest picks a start from the offered slots.
type StartRequest struct {
	StartAt time.Time `json:"start_at"`
}

// NotesRequest sets client notes.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// AdminFieldsRequest sets the admin-only booking fields.
type AdminFieldsRequest struct {
	UserID     string                    `json:"user_id"`
	Status     booking.AppointmentStatus `json:"status"`
	AdminNotes string                    `json:"admin_notes"`
}

// WizardResponse describes a wizard instance.
type WizardResponse struct {
	ID    string          `json:"id"`
	Topic string          `json:"topic"`
	State wizard.Snapshot `json:"state"`
	// Errors carries field problems of the last step action.
	Errors booking.FieldErrors `json:"errors,omitempty"`
}

// StatusChangeRequest asks for an appointment status transition.
type StatusChangeRequest struct {
	Status     booking.AppointmentStatus `json:"status"`
	AdminNotes *string                   `json:"admin_notes,omitempty"`
}

// AppointmentView is an appointment as one session may see it.
type AppointmentView struct {
	booking.Appointment
	Title   string          `json:"title"`
	EndAt   time.Time       `json:"end_at"`
	Actions access.Actions  `json:"actions"`
	Fields  access.FieldSet `json:"visible_fields"`
}

// SlotsResponse is the result of a slot lookup.
type SlotsResponse struct {
	ServiceID    string         `json:"service_id"`
	SpecialistID string         `json:"specialist_id,omitempty"`
	DateFrom     string         `json:"date_from"`
	DateTo       string         `json:"date_to"`
	Slots        []booking.Slot `json:"slots"`
}

// ServiceView is a catalog entry with its specialists.
type ServiceView struct {
	booking.Service
	Specialists []SpecialistView `json:"specialists,omitempty"`
}

// SpecialistView is a specialist with a display name.
type SpecialistView struct {
	booking.Specialist
	Name string `json:"name"`
}

const dateLayout = "2006-01-02"
