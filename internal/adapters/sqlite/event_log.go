package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/cotflow/internal/clock"
	"github.com/example/cotflow/internal/ctxutil"
	"github.com/example/cotflow/internal/db"
	"github.com/example/cotflow/internal/ports/secondary"
)

// EventLogAdapter implements secondary.EventLog on the session_events table.
type EventLogAdapter struct {
	mgr   *db.Manager
	clock clock.Clock
}

// NewEventLogAdapter creates a new EventLogAdapter.
func NewEventLogAdapter(mgr *db.Manager, clk clock.Clock) *EventLogAdapter {
	if clk == nil {
		clk = clock.New()
	}
	return &EventLogAdapter{mgr: mgr, clock: clk}
}

// Append records an event for a session. The actor comes from the context.
func (l *EventLogAdapter) Append(ctx context.Context, sessionID, event, detail string) error {
	actor := ctxutil.ActorOrDefault(ctx)
	createdAt := secondary.FormatTime(l.clock.Now())

	err := l.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		_, err := conn.ExecContext(ctx,
			"INSERT INTO session_events (session_id, actor, event, detail, created_at) VALUES (?, ?, ?, ?, ?)",
			sessionID, actor, event, nullString(detail), createdAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to append %s event: %w", event, err)
	}
	return nil
}

// List returns a session's events, oldest first.
func (l *EventLogAdapter) List(ctx context.Context, sessionID string, limit int) ([]*secondary.SessionEventRecord, error) {
	query := "SELECT id, session_id, actor, event, detail, created_at FROM session_events WHERE session_id = ? ORDER BY id ASC"
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var events []*secondary.SessionEventRecord
	err := l.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		events = nil
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var actor, detail sql.NullString
			e := &secondary.SessionEventRecord{}
			if err := rows.Scan(&e.ID, &e.SessionID, &actor, &e.Event, &detail, &e.CreatedAt); err != nil {
				return err
			}
			e.Actor = actor.String
			e.Detail = detail.String
			events = append(events, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// Ensure EventLogAdapter implements the interface
var _ secondary.EventLog = (*EventLogAdapter)(nil)
