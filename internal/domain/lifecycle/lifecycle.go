// Package lifecycle governs which appointment status changes each role may
// perform.
package lifecycle

import (
	"time"

	"github.com/wellness/booking/internal/domain/booking"
)

type edge struct {
	from booking.AppointmentStatus
	to   booking.AppointmentStatus
}

var clientEdges = map[edge]bool{
	{booking.StatusPending, booking.StatusCancelledByClient}:   true,
	{booking.StatusConfirmed, booking.StatusCancelledByClient}: true,
}

var specialistEdges = map[edge]bool{
	{booking.StatusPending, booking.StatusConfirmed}:   true,
	{booking.StatusConfirmed, booking.StatusCompleted}: true,
	{booking.StatusConfirmed, booking.StatusNoShow}:    true,
}

// Decision is the outcome of an approved transition.
type Decision struct {
	From booking.AppointmentStatus
	To   booking.AppointmentStatus
	Role booking.Role
	// Override marks an admin moving an appointment out of a terminal
	// status. Overrides must be audited.
	Override bool
}

// Evaluate checks whether role may move appt to target at now. A rejected
// transition returns *booking.InvalidTransitionError.
func Evaluate(appt booking.Appointment, role booking.Role, target booking.AppointmentStatus, now time.Time) (Decision, error) {
	from := appt.Status
	reject := func(cause string) (Decision, error) {
		return Decision{}, &booking.InvalidTransitionError{From: from, To: target, Role: role, Cause: cause}
	}

	if !target.Valid() {
		return reject("unknown target status")
	}
	if !from.Valid() {
		return reject("unknown current status")
	}
	if from == target {
		return reject("already in that status")
	}

	e := edge{from, target}
	switch role {
	case booking.RoleClient:
		if !clientEdges[e] {
			return reject("")
		}
		if from == booking.StatusConfirmed && !appt.StartAt.After(now) {
			return reject("appointment has already started")
		}
	case booking.RoleSpecialist:
		if !specialistEdges[e] {
			return reject("")
		}
	case booking.RoleAdmin:
		return Decision{From: from, To: target, Role: role, Override: from.Terminal()}, nil
	default:
		return reject("role may not change status")
	}
	return Decision{From: from, To: target, Role: role}, nil
}

// Allowed lists the targets role may pick for appt at now, in display order.
func Allowed(appt booking.Appointment, role booking.Role, now time.Time) []booking.AppointmentStatus {
	var out []booking.AppointmentStatus
	for _, s := range booking.Statuses {
		if _, err := Evaluate(appt, role, s, now); err == nil {
			out = append(out, s)
		}
	}
	return out
}
