package access

import (
	"testing"
	"time"

	"github.com/wellness/booking/internal/domain/booking"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

var (
	admin      = booking.Session{UserID: "u-admin", Role: booking.RoleAdmin}
	specialist = booking.Session{UserID: "u-spec", Role: booking.RoleSpecialist, SpecialistProfileID: "sp-1"}
	otherSpec  = booking.Session{UserID: "u-spec2", Role: booking.RoleSpecialist, SpecialistProfileID: "sp-2"}
	client     = booking.Session{UserID: "u-client", Role: booking.RoleClient, FirstName: "Ira", Email: "ira@example.com"}
	stranger   = booking.Session{UserID: "u-other", Role: booking.RoleClient}
	guest      = booking.GuestSession()
)

func sample(status booking.AppointmentStatus) booking.Appointment {
	return booking.Appointment{
		ID:              "a-1",
		ServiceID:       "massage",
		SpecialistID:    "sp-1",
		UserID:          "u-client",
		StartAt:         now.Add(48 * time.Hour),
		DurationMinutes: 60,
		Status:          status,
		ClientNotes:     "back pain",
		AdminNotes:      "prefers quiet room",
		Client:          booking.Contact{FirstName: "Ira", Email: "ira@example.com", Phone: "+380000"},
	}
}

func TestCanEdit(t *testing.T) {
	a := sample(booking.StatusPending)
	tests := []struct {
		name string
		s    booking.Session
		want bool
	}{
		{"admin", admin, true},
		{"own specialist", specialist, true},
		{"other specialist", otherSpec, false},
		{"client", client, false},
		{"guest", guest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanEdit(a, tt.s); got != tt.want {
				t.Errorf("CanEdit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanCancel(t *testing.T) {
	if !CanCancel(sample(booking.StatusPending), client) {
		t.Error("client should cancel own pending booking")
	}
	if !CanCancel(sample(booking.StatusConfirmed), client) {
		t.Error("client should cancel own confirmed booking")
	}
	if CanCancel(sample(booking.StatusCompleted), client) {
		t.Error("completed booking cannot be cancelled")
	}
	if CanCancel(sample(booking.StatusPending), stranger) {
		t.Error("client must not cancel someone else's booking")
	}
	if CanCancel(sample(booking.StatusPending), specialist) {
		t.Error("specialist has no cancel action")
	}
	if !CanCancel(sample(booking.StatusConfirmed), admin) {
		t.Error("admin should cancel active booking")
	}
}

func TestStatusOptions_Ownership(t *testing.T) {
	a := sample(booking.StatusPending)
	if got := StatusOptions(a, specialist, now); len(got) != 1 || got[0] != booking.StatusConfirmed {
		t.Errorf("own specialist options = %v", got)
	}
	if got := StatusOptions(a, otherSpec, now); len(got) != 0 {
		t.Errorf("foreign specialist options = %v", got)
	}
	if !CanChangeStatus(a, client, now) {
		t.Error("client can cancel own pending booking")
	}
	if CanChangeStatus(a, guest, now) {
		t.Error("guest cannot change status")
	}
}

func TestVisibleFields(t *testing.T) {
	a := sample(booking.StatusConfirmed)

	if fs := VisibleFields(a, client); fs.AdminNotes || !fs.ClientContact {
		t.Errorf("client fields = %+v", fs)
	}
	if fs := VisibleFields(a, specialist); !fs.AdminNotes || !fs.ClientContact {
		t.Errorf("own specialist fields = %+v", fs)
	}
	if fs := VisibleFields(a, otherSpec); !fs.AdminNotes || fs.ClientContact {
		t.Errorf("foreign specialist fields = %+v", fs)
	}
	if fs := VisibleFields(a, guest); fs != (FieldSet{}) {
		t.Errorf("guest fields = %+v", fs)
	}
}

func TestRedact(t *testing.T) {
	a := sample(booking.StatusConfirmed)

	got := Redact(a, client)
	if got.AdminNotes != "" {
		t.Error("client must never see admin notes")
	}
	if got.Client.Email == "" || got.ClientNotes == "" {
		t.Error("client should see own contact and notes")
	}

	got = Redact(a, otherSpec)
	if !got.Client.IsZero() || got.UserID != "" {
		t.Errorf("foreign specialist saw contact %+v", got.Client)
	}
	if got.AdminNotes == "" {
		t.Error("specialists see admin notes")
	}

	if full := Redact(a, admin); full != a {
		t.Error("admin sees everything")
	}
	if a.AdminNotes == "" {
		t.Error("Redact must not modify its argument")
	}
}

func TestActionsFor(t *testing.T) {
	acts := ActionsFor(sample(booking.StatusConfirmed), specialist, now)
	if !acts.Edit || acts.Cancel || !acts.ChangeStatus {
		t.Errorf("unexpected actions %+v", acts)
	}
}

func TestDraftFields(t *testing.T) {
	if ModeFor(guest) != ModeGuest || ModeFor(client) != ModeAuthenticated || ModeFor(admin) != ModeAdminEdit {
		t.Fatal("unexpected mode mapping")
	}

	g := DraftFields(ModeGuest)
	if !g[FieldEmail].Editable || !g[FieldEmail].Required {
		t.Error("guest email must be editable and required")
	}
	if g[FieldAdminNotes].Visible {
		t.Error("guests never see admin notes")
	}

	a := DraftFields(ModeAuthenticated)
	if a[FieldFirstName].Editable || !a[FieldFirstName].Visible {
		t.Error("authenticated identity is read-only")
	}
	if a[FieldFirstName].Required || a[FieldEmail].Required {
		t.Error("pre-filled identity must not block a session without profile claims")
	}

	e := DraftFields(ModeAdminEdit)
	if !e[FieldStatus].Editable || !e[FieldAdminNotes].Editable || !e[FieldUser].Editable {
		t.Error("admin edit exposes status, notes and client selection")
	}
}
