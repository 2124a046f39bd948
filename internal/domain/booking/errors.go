package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error kinds. Every error produced by the scheduling core matches exactly
// one of these through errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrSlotUnavailable   = errors.New("slot is no longer available")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrNetwork           = errors.New("booking service unreachable")
)

// FieldErrors maps a draft field name to a human-readable problem.
type FieldErrors map[string]string

// Fields returns the field names in stable order.
func (f FieldErrors) Fields() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidationError reports malformed input, either found locally or rejected
// by the booking authority.
type ValidationError struct {
	Fields  FieldErrors
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Message == "" {
			return ErrValidation.Error()
		}
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, name := range e.Fields.Fields() {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// SlotUnavailableError reports that the authority refused a booking because
// the chosen start is taken.
type SlotUnavailableError struct {
	Message string
}

func (e *SlotUnavailableError) Error() string {
	if e.Message == "" {
		return ErrSlotUnavailable.Error()
	}
	return fmt.Sprintf("%s: %s", ErrSlotUnavailable, e.Message)
}

func (e *SlotUnavailableError) Is(target error) bool { return target == ErrSlotUnavailable }

// InvalidTransitionError reports a status change the actor may not perform.
type InvalidTransitionError struct {
	From  AppointmentStatus
	To    AppointmentStatus
	Role  Role
	Cause string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("%s: %s cannot move %s -> %s", ErrInvalidTransition, e.Role, e.From, e.To)
	if e.Cause != "" {
		msg += " (" + e.Cause + ")"
	}
	return msg
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// NetworkError reports a transport failure or a server-side fault while
// talking to the booking authority. The request may or may not have taken
// effect.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s: status %d", ErrNetwork, e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", ErrNetwork, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrNetwork, e.Op)
}

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

func (e *NetworkError) Unwrap() error { return e.Err }

// Kind returns the sentinel matched by err, or nil if err is outside the
// taxonomy.
func Kind(err error) error {
	for _, kind := range []error{ErrValidation, ErrSlotUnavailable, ErrInvalidTransition, ErrNetwork} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
