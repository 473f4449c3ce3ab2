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

const queueColumns = "id, session_id, phase_number, request, status, retry_count, response, error, available_at, created_at, updated_at, processed_at"

// QueueItemRepository implements secondary.QueueItemRepository with SQLite.
type QueueItemRepository struct {
	mgr *db.Manager
}

// NewQueueItemRepository creates a new SQLite queue item repository.
func NewQueueItemRepository(mgr *db.Manager) *QueueItemRepository {
	return &QueueItemRepository{mgr: mgr}
}

// CreateBatch persists items in one transaction.
func (r *QueueItemRepository) CreateBatch(ctx context.Context, items []*secondary.QueueItemRecord) error {
	if len(items) == 0 {
		return nil
	}
	err := r.mgr.ExecuteTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO queue_items (id, session_id, phase_number, request, status, retry_count, available_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, item := range items {
			status := item.Status
			if status == "" {
				status = "PENDING"
			}
			availableAt := item.AvailableAt
			if availableAt == "" {
				availableAt = item.CreatedAt
			}
			if _, err := stmt.ExecContext(ctx,
				item.ID, item.SessionID, item.PhaseNumber, item.Request, status, item.RetryCount,
				availableAt, item.CreatedAt, item.UpdatedAt,
			); err != nil {
				return err
			}
		}
		return nil
	}, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to create queue items: %w", err)
	}
	return nil
}

// GetByIDs returns the given items ordered by creation time.
func (r *QueueItemRepository) GetByIDs(ctx context.Context, ids []string) ([]*secondary.QueueItemRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	items, err := r.query(ctx,
		"SELECT "+queueColumns+" FROM queue_items WHERE id IN ("+placeholders+") ORDER BY created_at ASC, rowid ASC",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue items: %w", err)
	}
	return items, nil
}

// List returns items matching filters ordered by creation time.
func (r *QueueItemRepository) List(ctx context.Context, filters secondary.QueueItemFilters) ([]*secondary.QueueItemRecord, error) {
	query := "SELECT " + queueColumns + " FROM queue_items WHERE 1=1"
	args := []any{}

	if filters.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filters.SessionID)
	}
	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}

	query += " ORDER BY created_at ASC, rowid ASC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	items, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	return items, nil
}

// ClaimNext moves the oldest dequeueable item to PROCESSING and returns it.
// The update is guarded on status; a candidate that loses the guard is skipped for
// the next one, and ErrClaimConflict reports that none could be taken.
func (r *QueueItemRepository) ClaimNext(ctx context.Context, now string, maxRetries int) (*secondary.QueueItemRecord, error) {
	var claimed *secondary.QueueItemRecord
	err := r.mgr.ExecuteTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		claimed = nil
		var skipped []string
		for {
			query := "SELECT " + queueColumns + ` FROM queue_items
			 WHERE status = 'PENDING' AND retry_count < ? AND available_at <= ?`
			args := []any{maxRetries, now}
			if len(skipped) > 0 {
				query += " AND id NOT IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(skipped)), ", ") + ")"
				for _, id := range skipped {
					args = append(args, id)
				}
			}
			query += " ORDER BY created_at ASC, rowid ASC LIMIT 1"

			item, err := scanQueueItem(tx.QueryRowContext(ctx, query, args...))
			if errors.Is(err, sql.ErrNoRows) {
				if len(skipped) > 0 {
					return fmt.Errorf("%w: %d candidate(s) changed underneath", secondary.ErrClaimConflict, len(skipped))
				}
				return nil
			}
			if err != nil {
				return err
			}

			res, err := tx.ExecContext(ctx,
				"UPDATE queue_items SET status = 'PROCESSING', updated_at = ? WHERE id = ? AND status = 'PENDING'",
				now, item.ID)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n != 1 {
				skipped = append(skipped, item.ID)
				continue
			}
			item.Status = "PROCESSING"
			item.UpdatedAt = now
			claimed = item
			return nil
		}
	}, db.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue item: %w", err)
	}
	return claimed, nil
}

// Complete stores a response and marks the item COMPLETED.
func (r *QueueItemRepository) Complete(ctx context.Context, id, response, processedAt string) error {
	var affected int64
	err := r.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		res, err := conn.ExecContext(ctx,
			`UPDATE queue_items SET status = 'COMPLETED', response = ?, error = NULL, processed_at = ?, updated_at = ?
			 WHERE id = ? AND status = 'PROCESSING'`,
			response, processedAt, processedAt, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to complete queue item: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("queue item %s is not processing: %w", id, secondary.ErrNotFound)
	}
	return nil
}

// Fail records a failed attempt. With Requeue set the item returns to PENDING and
// becomes dequeueable again at AvailableAt; otherwise it stays FAILED.
func (r *QueueItemRepository) Fail(ctx context.Context, id string, f secondary.QueueFailure) error {
	status := "FAILED"
	if f.Requeue {
		status = "PENDING"
	}
	var affected int64
	err := r.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		res, err := conn.ExecContext(ctx,
			`UPDATE queue_items SET status = ?, error = ?, retry_count = ?,
				available_at = COALESCE(NULLIF(?, ''), available_at), updated_at = ?,
				processed_at = CASE WHEN ? = 'FAILED' THEN ? ELSE processed_at END
			 WHERE id = ? AND status = 'PROCESSING'`,
			status, f.Error, f.RetryCount, f.AvailableAt, f.UpdatedAt, status, f.UpdatedAt, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fail queue item: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("queue item %s is not processing: %w", id, secondary.ErrNotFound)
	}
	return nil
}

// NextAvailableAt returns the earliest available_at among dequeueable items.
func (r *QueueItemRepository) NextAvailableAt(ctx context.Context, maxRetries int) (string, bool, error) {
	var next sql.NullString
	err := r.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		return conn.QueryRowContext(ctx,
			"SELECT MIN(available_at) FROM queue_items WHERE status = 'PENDING' AND retry_count < ?",
			maxRetries).Scan(&next)
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read next available time: %w", err)
	}
	return next.String, next.Valid, nil
}

// ResetProcessing returns items stuck in PROCESSING to PENDING.
func (r *QueueItemRepository) ResetProcessing(ctx context.Context, updatedAt string) (int, error) {
	var affected int64
	err := r.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		res, err := conn.ExecContext(ctx,
			"UPDATE queue_items SET status = 'PENDING', updated_at = ? WHERE status = 'PROCESSING'", updatedAt)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset processing queue items: %w", err)
	}
	return int(affected), nil
}

// CountByStatus returns item counts per status, optionally for one session.
func (r *QueueItemRepository) CountByStatus(ctx context.Context, sessionID string) (map[string]int, error) {
	query := "SELECT status, COUNT(*) FROM queue_items"
	args := []any{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " GROUP BY status"

	counts := map[string]int{}
	err := r.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				return err
			}
			counts[status] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}
	return counts, nil
}

func (r *QueueItemRepository) query(ctx context.Context, query string, args ...any) ([]*secondary.QueueItemRecord, error) {
	var items []*secondary.QueueItemRecord
	err := r.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		items = nil
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			item, err := scanQueueItem(rows)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return rows.Err()
	})
	return items, err
}

func scanQueueItem(row rowScanner) (*secondary.QueueItemRecord, error) {
	var response, errMsg, processedAt sql.NullString
	item := &secondary.QueueItemRecord{}
	err := row.Scan(&item.ID, &item.SessionID, &item.PhaseNumber, &item.Request, &item.Status,
		&item.RetryCount, &response, &errMsg, &item.AvailableAt, &item.CreatedAt, &item.UpdatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	item.Response = response.String
	item.Error = errMsg.String
	item.ProcessedAt = processedAt.String
	return item, nil
}

// Ensure QueueItemRepository implements the interface
var _ secondary.QueueItemRepository = (*QueueItemRepository)(nil)
