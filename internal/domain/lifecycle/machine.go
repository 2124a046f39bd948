package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wellness/booking/internal/domain/booking"
)

// StatusUpdater submits a status change to the booking authority and
// returns the acknowledged record.
type StatusUpdater interface {
	UpdateAppointmentStatus(ctx context.Context, id string, status booking.AppointmentStatus, adminNotes *string) (booking.Appointment, error)
}

// OverrideEntry records an admin moving an appointment out of a terminal
// status.
type OverrideEntry struct {
	ID            uuid.UUID                 `json:"id"`
	AppointmentID string                    `json:"appointment_id"`
	ActorID       string                    `json:"actor_id"`
	ActorRole     booking.Role              `json:"actor_role"`
	FromStatus    booking.AppointmentStatus `json:"from_status"`
	ToStatus      booking.AppointmentStatus `json:"to_status"`
	Notes         string                    `json:"notes,omitempty"`
	RecordedAt    time.Time                 `json:"recorded_at"`
}

// Auditor persists override entries.
type Auditor interface {
	RecordOverride(ctx context.Context, entry OverrideEntry) error
}

// AuditorFunc adapts a function to the Auditor interface.
type AuditorFunc func(ctx context.Context, entry OverrideEntry) error

func (f AuditorFunc) RecordOverride(ctx context.Context, entry OverrideEntry) error {
	return f(ctx, entry)
}

// Machine applies approved transitions against the booking authority.
type Machine struct {
	updater StatusUpdater
	auditor Auditor
	now     func() time.Time
	logger  zerolog.Logger
}

// NewMachine wires a state machine. now defaults to the wall clock.
func NewMachine(updater StatusUpdater, auditor Auditor, now func() time.Time, logger zerolog.Logger) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{updater: updater, auditor: auditor, now: now, logger: logger}
}

// Allowed lists the targets the session's role may pick for appt right now.
func (m *Machine) Allowed(appt booking.Appointment, session booking.Session) []booking.AppointmentStatus {
	return Allowed(appt, session.Role, m.now())
}

// Transition validates the change, writes the audit entry for overrides
// and submits it. The returned appointment is the authority's
// acknowledgement; no local state is changed on failure.
func (m *Machine) Transition(ctx context.Context, appt booking.Appointment, session booking.Session, target booking.AppointmentStatus, adminNotes *string) (booking.Appointment, Decision, error) {
	dec, err := Evaluate(appt, session.Role, target, m.now())
	if err != nil {
		return booking.Appointment{}, Decision{}, err
	}

	if dec.Override {
		entry := OverrideEntry{
			ID:            uuid.New(),
			AppointmentID: appt.ID,
			ActorID:       session.UserID,
			ActorRole:     session.Role,
			FromStatus:    dec.From,
			ToStatus:      dec.To,
			RecordedAt:    m.now().UTC(),
		}
		if adminNotes != nil {
			entry.Notes = *adminNotes
		}
		if m.auditor == nil {
			return booking.Appointment{}, Decision{}, fmt.Errorf("override of %s requires an audit log", appt.ID)
		}
		if err := m.auditor.RecordOverride(ctx, entry); err != nil {
			return booking.Appointment{}, Decision{}, fmt.Errorf("record override for %s: %w", appt.ID, err)
		}
		m.logger.Warn().
			Str("appointment_id", appt.ID).
			Str("actor_id", session.UserID).
			Str("from", string(dec.From)).
			Str("to", string(dec.To)).
			Msg("terminal status overridden")
	}

	updated, err := m.updater.UpdateAppointmentStatus(ctx, appt.ID, target, adminNotes)
	if err != nil {
		return booking.Appointment{}, Decision{}, fmt.Errorf("update status of %s: %w", appt.ID, err)
	}
	return updated, dec, nil
}
