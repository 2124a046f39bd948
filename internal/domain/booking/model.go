// Package booking holds the data model shared by the scheduling core:
// appointments, the service catalog, derived slots and the caller session.
package booking

import (
	"time"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusPending           AppointmentStatus = "pending"
	StatusConfirmed         AppointmentStatus = "confirmed"
	StatusCompleted         AppointmentStatus = "completed"
	StatusNoShow            AppointmentStatus = "no_show"
	StatusCancelledByClient AppointmentStatus = "cancelled_by_client"
	StatusCancelledByAdmin  AppointmentStatus = "cancelled_by_admin"
)

// Statuses lists every lifecycle state in display order.
var Statuses = []AppointmentStatus{
	StatusPending,
	StatusConfirmed,
	StatusCompleted,
	StatusNoShow,
	StatusCancelledByClient,
	StatusCancelledByAdmin,
}

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further non-override transition leaves s.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusNoShow, StatusCancelledByClient, StatusCancelledByAdmin:
		return true
	}
	return false
}

// Active reports whether the appointment still occupies its specialist's time.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Role identifies what kind of actor a session belongs to.
type Role string

const (
	RoleGuest      Role = "guest"
	RoleClient     Role = "client"
	RoleSpecialist Role = "specialist"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleClient, RoleSpecialist, RoleAdmin:
		return true
	}
	return false
}

// Contact is the personal data a client leaves with a booking.
type Contact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// FullName joins first and last name, skipping empty parts.
func (c Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// IsZero reports whether no contact field is set.
func (c Contact) IsZero() bool {
	return c == Contact{}
}

// Appointment is a booked time span for a service, optionally with a
// specific specialist. The remote booking authority owns the record; this
// copy is a read snapshot.
type Appointment struct {
	ID              string            `json:"id"`
	ServiceID       string            `json:"service_id"`
	SpecialistID    string            `json:"specialist_id,omitempty"`
	UserID          string            `json:"user_id,omitempty"`
	StartAt         time.Time         `json:"start_at"`
	DurationMinutes int               `json:"duration_minutes"`
	Status          AppointmentStatus `json:"status"`
	ClientNotes     string            `json:"client_notes,omitempty"`
	AdminNotes      string            `json:"admin_notes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`

	// Denormalized by the booking authority for display.
	ServiceName    string  `json:"service_name,omitempty"`
	SpecialistName string  `json:"specialist_name,omitempty"`
	Client         Contact `json:"client"`
}

// Duration returns the booked length.
func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

// EndAt returns the exclusive end of the booked span.
func (a Appointment) EndAt() time.Time {
	return a.StartAt.Add(a.Duration())
}

// Interval returns the half-open busy span this appointment occupies.
func (a Appointment) Interval() Interval {
	return Interval{Start: a.StartAt, End: a.EndAt(), SpecialistID: a.SpecialistID}
}

// Draft is the payload of a booking submission. The authority assigns ID,
// status and creation time.
type Draft struct {
	ServiceID    string    `json:"service_id"`
	SpecialistID string    `json:"specialist_id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	StartAt      time.Time `json:"start_at"`
	ClientNotes  string    `json:"client_notes,omitempty"`
	Client       Contact   `json:"client"`
}

// Service is a bookable offering from the catalog.
type Service struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	IsActive        bool   `json:"is_active"`
}

// Duration returns the service length.
func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Specialist is a staff member who delivers services.
type Specialist struct {
	ID         string   `json:"id"`
	FirstName  string   `json:"first_name"`
	LastName   string   `json:"last_name"`
	ServiceIDs []string `json:"service_ids,omitempty"`
}

// Name returns the display name.
func (s Specialist) Name() string {
	return Contact{FirstName: s.FirstName, LastName: s.LastName}.FullName()
}

// Offers reports whether the specialist delivers the service. A specialist
// without an explicit service list is treated as offering everything.
func (s Specialist) Offers(serviceID string) bool {
	if len(s.ServiceIDs) == 0 {
		return true
	}
	for _, id := range s.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// Interval is a half-open busy span [Start, End) on a specialist's calendar.
type Interval struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	SpecialistID string    `json:"specialist_id,omitempty"`
}

// Overlaps reports whether [start, end) intersects the interval. Touching
// boundaries do not overlap.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && i.Start.Before(end)
}

// Slot is a bookable start time derived from the working window and busy
// intervals. Within one service+specialist query a slot is identified by
// its Start.
type Slot struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	SpecialistID string    `json:"specialist_id,omitempty"`
}

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	From time.Time `json:"date_from"`
	To   time.Time `json:"date_to"`
}

// BusyQuery scopes a busy-interval lookup. Empty IDs widen the query.
type BusyQuery struct {
	ServiceID    string
	SpecialistID string
	Range        DateRange
}

// Session is the authenticated identity of the caller. Guests carry an
// empty UserID.
type Session struct {
	UserID              string `json:"user_id,omitempty"`
	Role                Role   `json:"role"`
	SpecialistProfileID string `json:"specialist_profile_id,omitempty"`
	FirstName           string `json:"first_name,omitempty"`
	LastName            string `json:"last_name,omitempty"`
	Email               string `json:"email,omitempty"`
	Phone               string `json:"phone,omitempty"`
}

// GuestSession is the identity of an unauthenticated visitor.
func GuestSession() Session {
	return Session{Role: RoleGuest}
}

// Authenticated reports whether the session belongs to a signed-in user.
func (s Session) Authenticated() bool {
	return s.UserID != "" && s.Role != RoleGuest && s.Role != ""
}

// Contact returns the profile data usable to pre-fill a booking.
func (s Session) Contact() Contact {
	return Contact{FirstName: s.FirstName, LastName: s.LastName, Email: s.Email, Phone: s.Phone}
}

// AppointmentFilter narrows an appointment listing. Zero fields match all.
type AppointmentFilter struct {
	SpecialistID string
	UserID       string
	Status       AppointmentStatus
	From         time.Time
	To           time.Time
}
