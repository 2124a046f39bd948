package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wellness/booking/internal/domain/booking"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func appt(status booking.AppointmentStatus, start time.Time) booking.Appointment {
	return booking.Appointment{ID: "a-1", ServiceID: "massage", StartAt: start, DurationMinutes: 60, Status: status}
}

func TestEvaluate_Table(t *testing.T) {
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name   string
		status booking.AppointmentStatus
		start  time.Time
		role   booking.Role
		target booking.AppointmentStatus
		ok     bool
	}{
		{"client cancels pending", booking.StatusPending, future, booking.RoleClient, booking.StatusCancelledByClient, true},
		{"client cancels future confirmed", booking.StatusConfirmed, future, booking.RoleClient, booking.StatusCancelledByClient, true},
		{"client cannot cancel started confirmed", booking.StatusConfirmed, past, booking.RoleClient, booking.StatusCancelledByClient, false},
		{"client cannot complete", booking.StatusPending, future, booking.RoleClient, booking.StatusCompleted, false},
		{"client cannot confirm", booking.StatusPending, future, booking.RoleClient, booking.StatusConfirmed, false},
		{"client cannot admin-cancel", booking.StatusPending, future, booking.RoleClient, booking.StatusCancelledByAdmin, false},
		{"specialist confirms", booking.StatusPending, future, booking.RoleSpecialist, booking.StatusConfirmed, true},
		{"specialist completes", booking.StatusConfirmed, past, booking.RoleSpecialist, booking.StatusCompleted, true},
		{"specialist marks no-show", booking.StatusConfirmed, past, booking.RoleSpecialist, booking.StatusNoShow, true},
		{"specialist cannot complete pending", booking.StatusPending, past, booking.RoleSpecialist, booking.StatusCompleted, false},
		{"specialist cannot cancel", booking.StatusConfirmed, future, booking.RoleSpecialist, booking.StatusCancelledByAdmin, false},
		{"admin cancels", booking.StatusConfirmed, future, booking.RoleAdmin, booking.StatusCancelledByAdmin, true},
		{"admin overrides terminal", booking.StatusCancelledByClient, future, booking.RoleAdmin, booking.StatusConfirmed, true},
		{"guest cannot act", booking.StatusPending, future, booking.RoleGuest, booking.StatusCancelledByClient, false},
		{"same status rejected", booking.StatusPending, future, booking.RoleAdmin, booking.StatusPending, false},
		{"unknown target rejected", booking.StatusPending, future, booking.RoleAdmin, booking.AppointmentStatus("archived"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(appt(tt.status, tt.start), tt.role, tt.target, now)
			if tt.ok && err != nil {
				t.Fatalf("expected allowed, got %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected rejection")
				}
				if !errors.Is(err, booking.ErrInvalidTransition) {
					t.Errorf("expected invalid transition error, got %v", err)
				}
			}
		})
	}
}

func TestEvaluate_OverrideFlag(t *testing.T) {
	dec, err := Evaluate(appt(booking.StatusCompleted, now), booking.RoleAdmin, booking.StatusConfirmed, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Override {
		t.Error("expected override flag when leaving a terminal status")
	}

	dec, err = Evaluate(appt(booking.StatusPending, now), booking.RoleAdmin, booking.StatusCompleted, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Override {
		t.Error("non-terminal source is not an override")
	}
}

func TestAllowed(t *testing.T) {
	got := Allowed(appt(booking.StatusConfirmed, now.Add(-time.Minute)), booking.RoleSpecialist, now)
	want := []booking.AppointmentStatus{booking.StatusCompleted, booking.StatusNoShow}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}

	if got := Allowed(appt(booking.StatusConfirmed, now.Add(-time.Minute)), booking.RoleClient, now); len(got) != 0 {
		t.Errorf("client should have nothing on a started appointment, got %v", got)
	}
	if got := Allowed(appt(booking.StatusNoShow, now), booking.RoleAdmin, now); len(got) != len(booking.Statuses)-1 {
		t.Errorf("admin should reach every other status, got %v", got)
	}
}

type fakeUpdater struct {
	calls int
	err   error
}

func (f *fakeUpdater) UpdateAppointmentStatus(_ context.Context, id string, status booking.AppointmentStatus, notes *string) (booking.Appointment, error) {
	f.calls++
	if f.err != nil {
		return booking.Appointment{}, f.err
	}
	a := appt(status, now)
	a.ID = id
	if notes != nil {
		a.AdminNotes = *notes
	}
	return a, nil
}

func TestMachine_OverrideIsAudited(t *testing.T) {
	upd := &fakeUpdater{}
	var entries []OverrideEntry
	auditor := AuditorFunc(func(_ context.Context, e OverrideEntry) error {
		entries = append(entries, e)
		return nil
	})
	m := NewMachine(upd, auditor, func() time.Time { return now }, zerolog.Nop())
	admin := booking.Session{UserID: "u-admin", Role: booking.RoleAdmin}
	notes := "client called back"

	got, dec, err := m.Transition(context.Background(), appt(booking.StatusCancelledByClient, now.Add(time.Hour)), admin, booking.StatusConfirmed, &notes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Override {
		t.Error("expected override decision")
	}
	if got.Status != booking.StatusConfirmed || got.AdminNotes != notes {
		t.Errorf("unexpected acknowledged appointment %+v", got)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ActorID != "u-admin" || e.FromStatus != booking.StatusCancelledByClient || e.ToStatus != booking.StatusConfirmed || e.Notes != notes {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestMachine_AuditFailureBlocksUpdate(t *testing.T) {
	upd := &fakeUpdater{}
	auditor := AuditorFunc(func(context.Context, OverrideEntry) error { return errors.New("db down") })
	m := NewMachine(upd, auditor, func() time.Time { return now }, zerolog.Nop())

	_, _, err := m.Transition(context.Background(), appt(booking.StatusCompleted, now), booking.Session{Role: booking.RoleAdmin}, booking.StatusPending, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if upd.calls != 0 {
		t.Error("status must not be submitted without an audit entry")
	}
}

func TestMachine_RejectedTransitionNotSubmitted(t *testing.T) {
	upd := &fakeUpdater{}
	m := NewMachine(upd, nil, func() time.Time { return now }, zerolog.Nop())

	_, _, err := m.Transition(context.Background(), appt(booking.StatusPending, now.Add(time.Hour)), booking.Session{UserID: "c", Role: booking.RoleClient}, booking.StatusCompleted, nil)
	if !errors.Is(err, booking.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if upd.calls != 0 {
		t.Error("rejected transition must not reach the authority")
	}
}

func TestMachine_RemoteErrorWrapped(t *testing.T) {
	upd := &fakeUpdater{err: &booking.InvalidTransitionError{From: booking.StatusPending, To: booking.StatusConfirmed, Role: booking.RoleSpecialist, Cause: "server refused"}}
	m := NewMachine(upd, nil, func() time.Time { return now }, zerolog.Nop())

	_, _, err := m.Transition(context.Background(), appt(booking.StatusPending, now.Add(time.Hour)), booking.Session{UserID: "s", Role: booking.RoleSpecialist}, booking.StatusConfirmed, nil)
	if !errors.Is(err, booking.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from server, got %v", err)
	}
}
