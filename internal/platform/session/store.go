// Package session holds the caller identity that wizard and calendar
// instances observe. Login and logout go through Set and Clear so every
// subscriber sees the change.
package session

import (
	"sort"
	"sync"

	"github.com/wellness/booking/internal/domain/booking"
)

// Store is an observable holder of one booking.Session.
type Store struct {
	mu      sync.RWMutex
	current booking.Session
	nextID  int
	subs    map[int]func(booking.Session)
}

// NewStore creates a store holding initial. A zero session becomes a guest.
func NewStore(initial booking.Session) *Store {
	if initial.Role == "" {
		initial = booking.GuestSession()
	}
	return &Store{current: initial, subs: make(map[int]func(booking.Session))}
}

// Get returns the current session.
func (s *Store) Get() booking.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the session and notifies subscribers when it changed.
func (s *Store) Set(sess booking.Session) {
	if sess.Role == "" {
		sess = booking.GuestSession()
	}
	s.mu.Lock()
	if s.current == sess {
		s.mu.Unlock()
		return
	}
	s.current = sess
	subs := s.snapshotLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(sess)
	}
}

// Clear resets the session to a guest.
func (s *Store) Clear() {
	s.Set(booking.GuestSession())
}

// Subscribe registers fn for future changes and returns a function that
// removes it. fn runs on the goroutine that called Set, outside the lock.
func (s *Store) Subscribe(fn func(booking.Session)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) snapshotLocked() []func(booking.Session) {
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(booking.Session), len(ids))
	for i, id := range ids {
		out[i] = s.subs[id]
	}
	return out
}
