package db

import (
	"database/sql"
	"fmt"
	"time"
)

// SeedFixtures populates the database with development fixtures: one session parked
// on the queue in phase 2, one failed session with history and one completed session.
func SeedFixtures(database *sql.DB) error {
	now := time.Now().UTC()
	ts := func(d time.Duration) string { return now.Add(d).Format("2006-01-02T15:04:05.000000Z") }

	failedHistory := `[{"timestamp":"` + ts(-2*time.Minute) +
		`","type":"RATE_LIMIT","message":"429 Too Many Requests","phase":1,"step":"THINK","retryable":true}]`

	sessions := []struct {
		id, theme, status, step string
		phase, retries          int
		lastError, history      string
		metadata                string
	}{
		{"seed-waiting", "sqlite in production", "WAITING_ON_QUEUE", "EXECUTE", 2, 0, "", "[]", `{"queue_ids":["seed-q1","seed-q2"],"queue_phase":2}`},
		{"seed-failed", "rate limiting strategies", "FAILED", "THINK", 1, 2, "429 Too Many Requests", failedHistory, "{}"},
		{"seed-done", "go error handling", "COMPLETED", "INTEGRATE", 1, 0, "", "[]", "{}"},
	}
	for _, s := range sessions {
		if _, err := database.Exec(
			`INSERT INTO sessions (id, theme, style, platform, max_phases, status, current_phase, current_step,
				retry_count, last_error, error_history, metadata, created_at, updated_at)
			 VALUES (?, ?, 'casual', 'twitter', ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?)`,
			s.id, s.theme, maxPhasesFor(s.id), s.status, s.phase, s.step, s.retries, s.lastError, s.history, s.metadata,
			ts(-time.Hour), ts(-time.Minute),
		); err != nil {
			return fmt.Errorf("seed sessions: %w", err)
		}
	}

	phases := []struct {
		session           string
		number            int
		think, exec, intg string
		status            string
	}{
		{"seed-waiting", 1, `{"plan":"p1","queries":["wal mode"]}`, `{"findings":[{"query":"wal mode","content":"use WAL"}]}`, `{"content":"phase one"}`, "completed"},
		{"seed-waiting", 2, `{"plan":"p2","queries":["busy timeout","vacuum"]}`, "", "", "in_progress"},
		{"seed-done", 1, `{"plan":"p"}`, `{"findings":[]}`, `{"content":"done"}`, "completed"},
	}
	for _, p := range phases {
		if _, err := database.Exec(
			`INSERT INTO phases (session_id, phase_number, think_result, execute_result, integrate_result, status, created_at, updated_at)
			 VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?)`,
			p.session, p.number, p.think, p.exec, p.intg, p.status, ts(-time.Hour), ts(-time.Minute),
		); err != nil {
			return fmt.Errorf("seed phases: %w", err)
		}
	}

	items := []struct{ id, query, status string }{
		{"seed-q1", "busy timeout", "COMPLETED"},
		{"seed-q2", "vacuum", "PENDING"},
	}
	for i, q := range items {
		if _, err := database.Exec(
			`INSERT INTO queue_items (id, session_id, phase_number, request, status, available_at, created_at, updated_at)
			 VALUES (?, 'seed-waiting', 2, ?, ?, ?, ?, ?)`,
			q.id, fmt.Sprintf(`{"query":%q}`, q.query), q.status,
			ts(-time.Duration(10-i)*time.Minute), ts(-time.Duration(10-i)*time.Minute), ts(-time.Minute),
		); err != nil {
			return fmt.Errorf("seed queue items: %w", err)
		}
	}

	return nil
}

func maxPhasesFor(id string) int {
	if id == "seed-done" {
		return 1
	}
	return 4
}
