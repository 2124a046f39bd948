package lifecycle

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type overrideRepoPG struct{ conn queryable }

// NewOverrideRepoPG stores override entries in the status_overrides table.
func NewOverrideRepoPG(pool *pgxpool.Pool) OverrideRepository { return &overrideRepoPG{conn: pool} }

const overrideCols = `id, appointment_id, actor_id, actor_role, from_status, to_status, notes, recorded_at`

func (r *overrideRepoPG) scanOverride(row pgx.Row) (*OverrideEntry, error) {
	var e OverrideEntry
	err := row.Scan(&e.ID, &e.AppointmentID, &e.ActorID, &e.ActorRole,
		&e.FromStatus, &e.ToStatus, &e.Notes, &e.RecordedAt)
	return &e, err
}

func (r *overrideRepoPG) RecordOverride(ctx context.Context, e OverrideEntry) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO status_overrides (`+overrideCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.AppointmentID, e.ActorID, string(e.ActorRole),
		string(e.FromStatus), string(e.ToStatus), e.Notes, e.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert status override: %w", err)
	}
	return nil
}

func (r *overrideRepoPG) List(ctx context.Context, appointmentID string, limit, offset int) ([]*OverrideEntry, int, error) {
	where, args := "", []interface{}{}
	if appointmentID != "" {
		where = " WHERE appointment_id = $1"
		args = append(args, appointmentID)
	}

	var total int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM status_overrides`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM status_overrides%s ORDER BY recorded_at DESC LIMIT $%d OFFSET $%d`,
		overrideCols, where, n+1, n+2)
	rows, err := r.conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*OverrideEntry{}
	for rows.Next() {
		e, err := r.scanOverride(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
