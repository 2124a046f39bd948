package lifecycle

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// OverrideRepository stores and lists override entries.
type OverrideRepository interface {
	Auditor
	List(ctx context.Context, appointmentID string, limit, offset int) ([]*OverrideEntry, int, error)
}

// LogAuditor records overrides to the log only. It backs deployments
// without a database and keeps the most recent entries in memory so they
// can still be listed.
type LogAuditor struct {
	logger zerolog.Logger
	keep   int

	mu      sync.Mutex
	entries []OverrideEntry
}

// NewLogAuditor creates a log-only auditor remembering up to keep entries.
func NewLogAuditor(logger zerolog.Logger, keep int) *LogAuditor {
	if keep <= 0 {
		keep = 500
	}
	return &LogAuditor{logger: logger, keep: keep}
}

func (a *LogAuditor) RecordOverride(_ context.Context, e OverrideEntry) error {
	a.logger.Warn().
		Str("audit_id", e.ID.String()).
		Str("appointment_id", e.AppointmentID).
		Str("actor_id", e.ActorID).
		Str("actor_role", string(e.ActorRole)).
		Str("from", string(e.FromStatus)).
		Str("to", string(e.ToStatus)).
		Str("notes", e.Notes).
		Time("recorded_at", e.RecordedAt).
		Msg("status override")

	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	if over := len(a.entries) - a.keep; over > 0 {
		a.entries = append([]OverrideEntry(nil), a.entries[over:]...)
	}
	return nil
}

// List returns remembered entries, newest first.
func (a *LogAuditor) List(_ context.Context, appointmentID string, limit, offset int) ([]*OverrideEntry, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var matched []*OverrideEntry
	for i := len(a.entries) - 1; i >= 0; i-- {
		e := a.entries[i]
		if appointmentID == "" || e.AppointmentID == appointmentID {
			matched = append(matched, &e)
		}
	}
	total := len(matched)
	if offset >= total {
		return []*OverrideEntry{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}
