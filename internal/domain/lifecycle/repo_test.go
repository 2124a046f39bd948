package lifecycle

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wellness/booking/internal/domain/booking"
)

func TestLogAuditor_RecordAndList(t *testing.T) {
	var buf bytes.Buffer
	a := NewLogAuditor(zerolog.New(&buf), 3)
	ctx := context.Background()
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a1", "a2", "a1", "a3"} {
		err := a.RecordOverride(ctx, OverrideEntry{
			ID:            uuid.New(),
			AppointmentID: id,
			ActorID:       "admin-1",
			ActorRole:     booking.RoleAdmin,
			FromStatus:    booking.StatusCompleted,
			ToStatus:      booking.StatusConfirmed,
			RecordedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	if !strings.Contains(buf.String(), `"message":"status override"`) {
		t.Errorf("expected override to be logged, got %s", buf.String())
	}

	all, total, err := a.List(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("expected the 3 most recent entries, got %d/%d", len(all), total)
	}
	if all[0].AppointmentID != "a3" || all[2].AppointmentID != "a2" {
		t.Errorf("expected newest first, got %s..%s", all[0].AppointmentID, all[2].AppointmentID)
	}

	only, total, _ := a.List(ctx, "a1", 10, 0)
	if total != 1 || only[0].AppointmentID != "a1" {
		t.Errorf("expected one a1 entry, got %d", total)
	}

	page, total, _ := a.List(ctx, "", 1, 1)
	if total != 3 || len(page) != 1 || page[0].AppointmentID != "a1" {
		t.Errorf("unexpected page %+v (total %d)", page, total)
	}

	empty, _, _ := a.List(ctx, "", 10, 5)
	if len(empty) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(empty))
	}
}

func TestMachineWithLogAuditor(t *testing.T) {
	a := NewLogAuditor(zerolog.Nop(), 0)
	m := NewMachine(&fakeUpdater{}, a, func() time.Time { return now }, zerolog.Nop())

	noShow := appt(booking.StatusNoShow, now.Add(-time.Hour))
	noShow.ID = "a9"
	admin := booking.Session{UserID: "admin-1", Role: booking.RoleAdmin}
	if _, _, err := m.Transition(context.Background(), noShow, admin, booking.StatusCompleted, nil); err != nil {
		t.Fatalf("transition: %v", err)
	}

	entries, total, _ := a.List(context.Background(), "a9", 10, 0)
	if total != 1 || entries[0].FromStatus != booking.StatusNoShow || entries[0].ToStatus != booking.StatusCompleted {
		t.Errorf("unexpected audit entries %+v", entries)
	}
}
