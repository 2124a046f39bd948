package calendar

import (
	"time"

	"github.com/wellness/booking/internal/domain/availability"
	"github.com/wellness/booking/internal/domain/booking"
)

// Inputs is everything the visible projection depends on.
type Inputs struct {
	Session      booking.Session           `json:"session"`
	View         View                      `json:"view"`
	Anchor       time.Time                 `json:"anchor"`
	ServiceID    string                    `json:"service_id,omitempty"`
	SpecialistID string                    `json:"specialist_id,omitempty"`
	Status       booking.AppointmentStatus `json:"status,omitempty"`
	// DurationMinutes is the selected service's length, used to size a
	// clicked slot that is not part of the projection.
	DurationMinutes int `json:"duration_minutes,omitempty"`
}

// Filters are the user-adjustable parts of Inputs.
type Filters struct {
	ServiceID       string
	SpecialistID    string
	Status          booking.AppointmentStatus
	DurationMinutes int
}

// RequestKind says which remote query a projection needs.
type RequestKind string

const (
	RequestSlots        RequestKind = "slots"
	RequestAppointments RequestKind = "appointments"
)

// FetchRequest is the data query for one projection.
type FetchRequest struct {
	Kind         RequestKind
	Range        Range
	Slots        availability.Query
	Appointments booking.AppointmentFilter
}

// BuildRequest derives the query for in. It reports false when nothing
// should be fetched, such as a client view without a service or a
// specialist session without a profile.
func BuildRequest(in Inputs) (FetchRequest, bool) {
	view := in.View
	if view == "" {
		view = ViewWeek
	}
	r := RangeFor(view, in.Anchor)

	switch in.Session.Role {
	case booking.RoleAdmin:
		return FetchRequest{
			Kind:  RequestAppointments,
			Range: r,
			Appointments: booking.AppointmentFilter{
				SpecialistID: in.SpecialistID,
				Status:       in.Status,
				From:         r.Start,
				To:           r.End,
			},
		}, true
	case booking.RoleSpecialist:
		if in.Session.SpecialistProfileID == "" {
			return FetchRequest{Range: r}, false
		}
		return FetchRequest{
			Kind:  RequestAppointments,
			Range: r,
			Appointments: booking.AppointmentFilter{
				SpecialistID: in.Session.SpecialistProfileID,
				Status:       in.Status,
				From:         r.Start,
				To:           r.End,
			},
		}, true
	}

	if in.ServiceID == "" {
		return FetchRequest{Range: r}, false
	}
	return FetchRequest{
		Kind:  RequestSlots,
		Range: r,
		Slots: availability.Query{
			ServiceID:       in.ServiceID,
			SpecialistID:    in.SpecialistID,
			Range:           r.Dates(),
			DurationMinutes: in.DurationMinutes,
		},
	}, true
}
