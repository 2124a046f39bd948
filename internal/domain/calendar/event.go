package calendar

import (
	"time"

	"github.com/wellness/booking/internal/domain/access"
	"github.com/wellness/booking/internal/domain/booking"
)

// EventKind distinguishes free slots from booked appointments.
type EventKind string

const (
	EventSlot        EventKind = "slot"
	EventAppointment EventKind = "appointment"
)

const slotTitle = "Available"

// Event is one renderable calendar entry.
type Event struct {
	Title       string               `json:"title"`
	Start       time.Time            `json:"start"`
	End         time.Time            `json:"end"`
	Kind        EventKind            `json:"kind"`
	Slot        *booking.Slot        `json:"slot,omitempty"`
	Appointment *booking.Appointment `json:"appointment,omitempty"`
}

// SlotEvents renders free slots.
func SlotEvents(slots []booking.Slot) []Event {
	events := make([]Event, 0, len(slots))
	for i := range slots {
		s := slots[i]
		events = append(events, Event{Title: slotTitle, Start: s.Start, End: s.End, Kind: EventSlot, Slot: &s})
	}
	return events
}

// AppointmentEvents renders appointments as seen by session.
func AppointmentEvents(appts []booking.Appointment, session booking.Session) []Event {
	events := make([]Event, 0, len(appts))
	for _, a := range appts {
		a := access.Redact(a, session)
		events = append(events, Event{
			Title:       AppointmentTitle(a),
			Start:       a.StartAt,
			End:         a.EndAt(),
			Kind:        EventAppointment,
			Appointment: &a,
		})
	}
	return events
}

// AppointmentTitle combines the service and client names.
func AppointmentTitle(a booking.Appointment) string {
	service := a.ServiceName
	if service == "" {
		service = "Appointment"
	}
	who := a.Client.FullName()
	if who == "" {
		who = "Client"
	}
	return service + " (" + who + ")"
}

// SlotSelected is emitted when the user picks a free start.
type SlotSelected struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	SpecialistID string    `json:"specialist_id,omitempty"`
}

func (SlotSelected) SignalName() string { return booking.SignalSlotSelected }

// AppointmentSelected is emitted when the user opens an appointment.
type AppointmentSelected struct {
	Appointment booking.Appointment `json:"appointment"`
}

func (AppointmentSelected) SignalName() string { return booking.SignalAppointmentSelected }

// EventsPublished is emitted after a fetch has been applied.
type EventsPublished struct {
	Range  Range   `json:"range"`
	Events []Event `json:"events"`
}

func (EventsPublished) SignalName() string { return booking.SignalCalendarEvents }
