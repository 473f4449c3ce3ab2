// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/cotflow/internal/db"
	"github.com/example/cotflow/internal/ports/secondary"
)

const sessionColumns = "id, theme, style, platform, max_phases, status, current_phase, current_step, retry_count, last_error, next_retry_at, error_history, metadata, created_at, updated_at"

// SessionRepository implements secondary.SessionRepository with SQLite.
type SessionRepository struct {
	mgr *db.Manager
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(mgr *db.Manager) *SessionRepository {
	return &SessionRepository{mgr: mgr}
}

// Create persists a new session.
func (r *SessionRepository) Create(ctx context.Context, s *secondary.SessionRecord) error {
	history := s.ErrorHistory
	if history == "" {
		history = "[]"
	}
	metadata := s.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	err := r.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		_, err := conn.ExecContext(ctx,
			"INSERT INTO sessions ("+sessionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			s.ID, s.Theme, nullString(s.Style), nullString(s.Platform), s.MaxPhases, s.Status,
			s.CurrentPhase, s.CurrentStep, s.RetryCount, nullString(s.LastError), nullString(s.NextRetryAt),
			history, metadata, s.CreatedAt, s.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*secondary.SessionRecord, error) {
	var record *secondary.SessionRecord
	err := r.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		row := conn.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
		var err error
		record, err = scanSession(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return record, nil
}

// Update overwrites the mutable columns of a session.
func (r *SessionRepository) Update(ctx context.Context, s *secondary.SessionRecord) error {
	var affected int64
	err := r.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		res, err := conn.ExecContext(ctx,
			`UPDATE sessions SET status = ?, current_phase = ?, current_step = ?, retry_count = ?,
				last_error = ?, next_retry_at = ?, error_history = ?, metadata = ?, updated_at = ?
			 WHERE id = ?`,
			s.Status, s.CurrentPhase, s.CurrentStep, s.RetryCount,
			nullString(s.LastError), nullString(s.NextRetryAt), s.ErrorHistory, s.Metadata, s.UpdatedAt,
			s.ID,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", s.ID, secondary.ErrNotFound)
	}
	return nil
}

// UpdateStatusIf sets status only when the current status is one of from.
func (r *SessionRepository) UpdateStatusIf(ctx context.Context, id string, from []string, to, updatedAt string) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	args := []any{to, updatedAt, id}
	for _, f := range from {
		args = append(args, f)
	}

	var affected int64
	err := r.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		res, err := conn.ExecContext(ctx,
			"UPDATE sessions SET status = ?, updated_at = ? WHERE id = ? AND status IN ("+placeholders+")",
			args...,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to update session status: %w", err)
	}
	return affected == 1, nil
}

// List retrieves sessions matching the given filters, newest first.
func (r *SessionRepository) List(ctx context.Context, filters secondary.SessionFilters) ([]*secondary.SessionRecord, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE 1=1"
	args := []any{}

	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	sessions, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// ListScheduledRetries returns FAILED sessions that still carry a next_retry_at.
func (r *SessionRepository) ListScheduledRetries(ctx context.Context) ([]*secondary.SessionRecord, error) {
	sessions, err := r.query(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE status = 'FAILED' AND next_retry_at IS NOT NULL ORDER BY next_retry_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled retries: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) query(ctx context.Context, query string, args ...any) ([]*secondary.SessionRecord, error) {
	var sessions []*secondary.SessionRecord
	err := r.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		sessions = nil
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			record, err := scanSession(rows)
			if err != nil {
				return err
			}
			sessions = append(sessions, record)
		}
		return rows.Err()
	})
	return sessions, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*secondary.SessionRecord, error) {
	var (
		style       sql.NullString
		platform    sql.NullString
		lastError   sql.NullString
		nextRetryAt sql.NullString
	)
	record := &secondary.SessionRecord{}
	err := row.Scan(&record.ID, &record.Theme, &style, &platform, &record.MaxPhases, &record.Status,
		&record.CurrentPhase, &record.CurrentStep, &record.RetryCount, &lastError, &nextRetryAt,
		&record.ErrorHistory, &record.Metadata, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}
	record.Style = style.String
	record.Platform = platform.String
	record.LastError = lastError.String
	record.NextRetryAt = nextRetryAt.String
	return record, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Ensure SessionRepository implements the interface
var _ secondary.SessionRepository = (*SessionRepository)(nil)
