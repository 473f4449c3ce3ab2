package db

import (
	"database/sql"
	"fmt"
)

// SchemaSQL is the complete schema for fresh installs.
// This schema reflects the current state after all migrations.
//
// This is the single source of truth for the database schema. All tests use
// it via GetSchemaSQL(), so a repository referencing a missing column fails
// immediately with "no such column".
//
// When adding new columns or tables:
//  1. Add a migration in migrations.go
//  2. Update SchemaSQL here
//  3. Run the sqlite adapter tests to verify alignment
const SchemaSQL = `
-- Sessions (one CoT run)
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	theme TEXT NOT NULL,
	style TEXT,
	platform TEXT,
	max_phases INTEGER NOT NULL DEFAULT 4,
	status TEXT NOT NULL CHECK(status IN ('PENDING', 'THINKING', 'EXECUTING', 'INTEGRATING', 'WAITING_ON_QUEUE', 'COMPLETED', 'FAILED')) DEFAULT 'PENDING',
	current_phase INTEGER NOT NULL DEFAULT 1,
	current_step TEXT NOT NULL CHECK(current_step IN ('THINK', 'EXECUTE', 'INTEGRATE')) DEFAULT 'THINK',
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	next_retry_at TEXT,
	error_history TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

-- Phases (one row per session phase, upserted per step)
CREATE TABLE IF NOT EXISTS phases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	phase_number INTEGER NOT NULL,
	think_result TEXT,
	think_prompt TEXT,
	think_tokens INTEGER NOT NULL DEFAULT 0,
	think_at TEXT,
	execute_result TEXT,
	execute_prompt TEXT,
	execute_tokens INTEGER NOT NULL DEFAULT 0,
	execute_at TEXT,
	integrate_result TEXT,
	integrate_prompt TEXT,
	integrate_tokens INTEGER NOT NULL DEFAULT 0,
	integrate_at TEXT,
	status TEXT NOT NULL CHECK(status IN ('pending', 'in_progress', 'completed')) DEFAULT 'pending',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(session_id, phase_number),
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

-- Queue items (deferred search requests)
CREATE TABLE IF NOT EXISTS queue_items (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	phase_number INTEGER NOT NULL,
	request TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('PENDING', 'PROCESSING', 'COMPLETED', 'FAILED')) DEFAULT 'PENDING',
	retry_count INTEGER NOT NULL DEFAULT 0,
	response TEXT,
	error TEXT,
	available_at TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	processed_at TEXT,
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_queue_items_dequeue ON queue_items(status, available_at, created_at);
CREATE INDEX IF NOT EXISTS idx_queue_items_session ON queue_items(session_id);

-- Session events (audit trail)
CREATE TABLE IF NOT EXISTS session_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	actor TEXT,
	event TEXT NOT NULL,
	detail TEXT,
	created_at TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id);
`

// InitSchema creates the schema on a fresh database or migrates an existing one.
func InitSchema(db *sql.DB) error {
	// Check if schema_version table exists to determine if this is a fresh install
	var tableCount int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableCount)
	if err != nil {
		return err
	}

	if tableCount > 0 {
		return RunMigrations(db)
	}

	// Tables from before versioning existed - migrate them forward
	var sessionTables int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='sessions'").Scan(&sessionTables)
	if err != nil {
		return err
	}
	if sessionTables > 0 {
		return RunMigrations(db)
	}

	// Completely fresh install - create modern schema directly and mark all migrations applied
	if _, err := db.Exec(SchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := createVersionTable(db); err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}

// CurrentVersion returns the highest applied migration version.
func CurrentVersion(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v)
	return v, err
}
