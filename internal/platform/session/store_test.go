package session

import (
	"testing"

	"github.com/wellness/booking/internal/domain/booking"
)

func TestNewStore_ZeroIsGuest(t *testing.T) {
	s := NewStore(booking.Session{})
	if got := s.Get(); got.Role != booking.RoleGuest || got.Authenticated() {
		t.Errorf("expected guest session, got %+v", got)
	}
}

func TestSetNotifiesInOrder(t *testing.T) {
	s := NewStore(booking.GuestSession())
	var order []string
	s.Subscribe(func(booking.Session) { order = append(order, "first") })
	s.Subscribe(func(booking.Session) { order = append(order, "second") })

	client := booking.Session{UserID: "u1", Role: booking.RoleClient}
	s.Set(client)

	if s.Get() != client {
		t.Errorf("expected stored session, got %+v", s.Get())
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("unexpected notification order %v", order)
	}
}

func TestSetSameSessionIsSilent(t *testing.T) {
	client := booking.Session{UserID: "u1", Role: booking.RoleClient}
	s := NewStore(client)
	calls := 0
	s.Subscribe(func(booking.Session) { calls++ })

	s.Set(client)
	if calls != 0 {
		t.Errorf("expected no notification, got %d", calls)
	}
}

func TestClearAndUnsubscribe(t *testing.T) {
	s := NewStore(booking.Session{UserID: "u1", Role: booking.RoleAdmin})
	var seen []booking.Session
	unsubscribe := s.Subscribe(func(sess booking.Session) { seen = append(seen, sess) })

	s.Clear()
	if len(seen) != 1 || seen[0].Role != booking.RoleGuest {
		t.Fatalf("expected one guest notification, got %+v", seen)
	}

	unsubscribe()
	unsubscribe()
	s.Set(booking.Session{UserID: "u2", Role: booking.RoleClient})
	if len(seen) != 1 {
		t.Errorf("expected no notification after unsubscribe, got %d", len(seen))
	}
}
