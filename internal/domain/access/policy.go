// Package access decides what a session may see and do with an
// appointment. Every function is pure in its arguments.
package access

import (
	"time"

	"github.com/wellness/booking/internal/domain/booking"
	"github.com/wellness/booking/internal/domain/lifecycle"
)

func ownsAsSpecialist(appt booking.Appointment, s booking.Session) bool {
	return s.Role == booking.RoleSpecialist &&
		s.SpecialistProfileID != "" &&
		appt.SpecialistID == s.SpecialistProfileID
}

func ownsAsClient(appt booking.Appointment, s booking.Session) bool {
	return s.Role == booking.RoleClient && s.UserID != "" && appt.UserID == s.UserID
}

// CanView reports whether the appointment may be shown to the session at
// all.
func CanView(appt booking.Appointment, s booking.Session) bool {
	switch s.Role {
	case booking.RoleAdmin:
		return true
	case booking.RoleSpecialist:
		return ownsAsSpecialist(appt, s)
	case booking.RoleClient:
		return ownsAsClient(appt, s)
	}
	return false
}

// CanEdit reports whether the session may edit appointment details. Admins
// may edit anything, specialists only their own appointments.
func CanEdit(appt booking.Appointment, s booking.Session) bool {
	switch s.Role {
	case booking.RoleAdmin:
		return true
	case booking.RoleSpecialist:
		return ownsAsSpecialist(appt, s)
	}
	return false
}

// CanCancel reports whether the session may cancel the appointment. A
// client may cancel their own pending or confirmed bookings; an admin may
// cancel any booking that still holds time.
func CanCancel(appt booking.Appointment, s booking.Session) bool {
	switch s.Role {
	case booking.RoleClient:
		return ownsAsClient(appt, s) && appt.Status.Active()
	case booking.RoleAdmin:
		return appt.Status.Active()
	}
	return false
}

// StatusOptions lists the statuses the session may move the appointment
// to. Clients and specialists are limited to their own appointments.
func StatusOptions(appt booking.Appointment, s booking.Session, now time.Time) []booking.AppointmentStatus {
	switch s.Role {
	case booking.RoleClient:
		if !ownsAsClient(appt, s) {
			return nil
		}
	case booking.RoleSpecialist:
		if !ownsAsSpecialist(appt, s) {
			return nil
		}
	case booking.RoleAdmin:
	default:
		return nil
	}
	return lifecycle.Allowed(appt, s.Role, now)
}

// CanChangeStatus reports whether at least one status change is offered.
func CanChangeStatus(appt booking.Appointment, s booking.Session, now time.Time) bool {
	return len(StatusOptions(appt, s, now)) > 0
}

// Actions bundles the permitted actions for one appointment.
type Actions struct {
	Edit         bool                        `json:"edit"`
	Cancel       bool                        `json:"cancel"`
	ChangeStatus bool                        `json:"change_status"`
	Statuses     []booking.AppointmentStatus `json:"statuses,omitempty"`
}

// ActionsFor derives the action set for a dashboard row.
func ActionsFor(appt booking.Appointment, s booking.Session, now time.Time) Actions {
	statuses := StatusOptions(appt, s, now)
	return Actions{
		Edit:         CanEdit(appt, s),
		Cancel:       CanCancel(appt, s),
		ChangeStatus: len(statuses) > 0,
		Statuses:     statuses,
	}
}

// FieldSet lists which sensitive appointment fields a session may read.
type FieldSet struct {
	ClientContact bool `json:"client_contact"`
	ClientNotes   bool `json:"client_notes"`
	AdminNotes    bool `json:"admin_notes"`
}

// VisibleFields returns the readable sensitive fields. Clients never see
// admin notes. Specialists see admin notes but client contact details only
// on appointments booked with them.
func VisibleFields(appt booking.Appointment, s booking.Session) FieldSet {
	switch s.Role {
	case booking.RoleAdmin:
		return FieldSet{ClientContact: true, ClientNotes: true, AdminNotes: true}
	case booking.RoleSpecialist:
		own := ownsAsSpecialist(appt, s)
		return FieldSet{ClientContact: own, ClientNotes: own, AdminNotes: true}
	case booking.RoleClient:
		own := ownsAsClient(appt, s)
		return FieldSet{ClientContact: own, ClientNotes: own}
	}
	return FieldSet{}
}

// Redact returns a copy of appt with every field the session may not read
// cleared.
func Redact(appt booking.Appointment, s booking.Session) booking.Appointment {
	fs := VisibleFields(appt, s)
	if !fs.ClientContact {
		appt.Client = booking.Contact{}
		appt.UserID = ""
	}
	if !fs.ClientNotes {
		appt.ClientNotes = ""
	}
	if !fs.AdminNotes {
		appt.AdminNotes = ""
	}
	return appt
}
