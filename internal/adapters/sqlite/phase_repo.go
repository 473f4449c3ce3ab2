package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/cotflow/internal/db"
	"github.com/example/cotflow/internal/ports/secondary"
)

const phaseColumns = "id, session_id, phase_number, think_result, think_prompt, think_tokens, think_at, execute_result, execute_prompt, execute_tokens, execute_at, integrate_result, integrate_prompt, integrate_tokens, integrate_at, status, created_at, updated_at"

// stepColumns maps a step to its result/prompt/tokens/at column prefix.
var stepColumns = map[string]string{
	"THINK":     "think",
	"EXECUTE":   "execute",
	"INTEGRATE": "integrate",
}

// PhaseRepository implements secondary.PhaseRepository with SQLite.
type PhaseRepository struct {
	mgr *db.Manager
}

// NewPhaseRepository creates a new SQLite phase repository.
func NewPhaseRepository(mgr *db.Manager) *PhaseRepository {
	return &PhaseRepository{mgr: mgr}
}

// UpsertStepResult writes one step's columns into the (session, phase) row.
// The unique key makes repeated writes overwrite instead of duplicating.
func (r *PhaseRepository) UpsertStepResult(ctx context.Context, res *secondary.StepResultRecord) error {
	prefix, ok := stepColumns[res.Step]
	if !ok {
		return fmt.Errorf("invalid step %q", res.Step)
	}
	status := res.PhaseStatus
	if status == "" {
		status = "in_progress"
	}

	// Column names come from the fixed stepColumns map, never from input.
	query := fmt.Sprintf(`
		INSERT INTO phases (session_id, phase_number, %[1]s_result, %[1]s_prompt, %[1]s_tokens, %[1]s_at, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, phase_number) DO UPDATE SET
			%[1]s_result = excluded.%[1]s_result,
			%[1]s_prompt = COALESCE(excluded.%[1]s_prompt, phases.%[1]s_prompt),
			%[1]s_tokens = excluded.%[1]s_tokens,
			%[1]s_at = excluded.%[1]s_at,
			status = CASE WHEN phases.status = 'completed' THEN phases.status ELSE excluded.status END,
			updated_at = excluded.updated_at`, prefix)

	err := r.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		_, err := conn.ExecContext(ctx, query,
			res.SessionID, res.PhaseNumber, res.Result, nullString(res.Prompt), res.Tokens, res.At,
			status, res.At, res.At,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %s result for phase %d: %w", res.Step, res.PhaseNumber, err)
	}
	return nil
}

// Get retrieves one phase.
func (r *PhaseRepository) Get(ctx context.Context, sessionID string, phaseNumber int) (*secondary.PhaseRecord, error) {
	var record *secondary.PhaseRecord
	err := r.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		row := conn.QueryRowContext(ctx,
			"SELECT "+phaseColumns+" FROM phases WHERE session_id = ? AND phase_number = ?",
			sessionID, phaseNumber)
		var err error
		record, err = scanPhase(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("phase %d of session %s: %w", phaseNumber, sessionID, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get phase: %w", err)
	}
	return record, nil
}

// ListBySession returns all phases of a session ordered by phase number.
func (r *PhaseRepository) ListBySession(ctx context.Context, sessionID string) ([]*secondary.PhaseRecord, error) {
	var phases []*secondary.PhaseRecord
	err := r.mgr.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		phases = nil
		rows, err := conn.QueryContext(ctx,
			"SELECT "+phaseColumns+" FROM phases WHERE session_id = ? ORDER BY phase_number ASC", sessionID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			record, err := scanPhase(rows)
			if err != nil {
				return err
			}
			phases = append(phases, record)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list phases: %w", err)
	}
	return phases, nil
}

func scanPhase(row rowScanner) (*secondary.PhaseRecord, error) {
	var (
		thinkResult, thinkPrompt, thinkAt             sql.NullString
		executeResult, executePrompt, executeAt       sql.NullString
		integrateResult, integratePrompt, integrateAt sql.NullString
	)
	record := &secondary.PhaseRecord{}
	err := row.Scan(&record.ID, &record.SessionID, &record.PhaseNumber,
		&thinkResult, &thinkPrompt, &record.ThinkTokens, &thinkAt,
		&executeResult, &executePrompt, &record.ExecuteTokens, &executeAt,
		&integrateResult, &integratePrompt, &record.IntegrateTokens, &integrateAt,
		&record.Status, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}
	record.ThinkResult = thinkResult.String
	record.ThinkPrompt = thinkPrompt.String
	record.ThinkAt = thinkAt.String
	record.ExecuteResult = executeResult.String
	record.ExecutePrompt = executePrompt.String
	record.ExecuteAt = executeAt.String
	record.IntegrateResult = integrateResult.String
	record.IntegratePrompt = integratePrompt.String
	record.IntegrateAt = integrateAt.String
	return record, nil
}

// Ensure PhaseRepository implements the interface
var _ secondary.PhaseRepository = (*PhaseRepository)(nil)
