// Package wizard drives the three-step booking flow: pick a slot, leave
// contact details, confirm.
package wizard

import (
	"regexp"
	"strings"
	"time"

	"github.com/wellness/booking/internal/domain/access"
	"github.com/wellness/booking/internal/domain/availability"
	"github.com/wellness/booking/internal/domain/booking"
)

// Step is a wizard page.
type Step int

const (
	StepSelect Step = iota
	StepIdentify
	StepConfirm
	// StepDone follows a successful submission.
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepSelect:
		return "select"
	case StepIdentify:
		return "identify"
	case StepConfirm:
		return "confirm"
	case StepDone:
		return "done"
	}
	return "unknown"
}

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// Draft accumulates the user's choices across steps.
type Draft struct {
	ServiceID    string    `json:"service_id,omitempty"`
	SpecialistID string    `json:"specialist_id,omitempty"`
	Day          time.Time `json:"day"`
	StartAt      time.Time `json:"start_at"`

	// FixedStart is set when the start came from a calendar click rather
	// than from the resolved slot list.
	FixedStart bool `json:"fixed_start,omitempty"`

	ClientNotes string          `json:"client_notes,omitempty"`
	Contact     booking.Contact `json:"contact"`
	UserID      string          `json:"user_id,omitempty"`

	Status     booking.AppointmentStatus `json:"status,omitempty"`
	AdminNotes string                    `json:"admin_notes,omitempty"`

	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Booking converts the draft into the submission payload.
func (d Draft) Booking() booking.Draft {
	return booking.Draft{
		ServiceID:    d.ServiceID,
		SpecialistID: d.SpecialistID,
		UserID:       d.UserID,
		StartAt:      d.StartAt,
		ClientNotes:  strings.TrimSpace(d.ClientNotes),
		Client:       d.Contact,
	}
}

// validateSelect checks the step 0 gate.
func validateSelect(d Draft, slots availability.Result) booking.FieldErrors {
	errs := booking.FieldErrors{}
	if d.ServiceID == "" {
		errs[access.FieldService] = "choose a service"
	}
	switch {
	case d.StartAt.IsZero():
		errs[access.FieldStartAt] = "choose a time"
	case !d.FixedStart && !slots.Contains(d.StartAt):
		errs[access.FieldStartAt] = "this time is not available"
	}
	return errs
}

// validateIdentify checks the step 1 gate against the mode's field rules.
func validateIdentify(d Draft, rules map[string]access.FieldRule) booking.FieldErrors {
	errs := booking.FieldErrors{}
	values := map[string]string{
		access.FieldFirstName: d.Contact.FirstName,
		access.FieldLastName:  d.Contact.LastName,
		access.FieldEmail:     d.Contact.Email,
		access.FieldPhone:     d.Contact.Phone,
	}
	for field, v := range values {
		if rules[field].Required && strings.TrimSpace(v) == "" {
			errs[field] = "required"
		}
	}
	if _, missing := errs[access.FieldEmail]; !missing && d.Contact.Email != "" && !emailPattern.MatchString(d.Contact.Email) {
		errs[access.FieldEmail] = "invalid email"
	}
	if rules[access.FieldStatus].Editable && d.Status != "" && !d.Status.Valid() {
		errs[access.FieldStatus] = "unknown status"
	}
	return errs
}
