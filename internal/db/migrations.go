package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// migrations is the list of all migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_session_phase_queue_tables",
		Up:      migrationV1,
	},
	{
		Version: 2,
		Name:    "add_available_at_to_queue_items",
		Up:      migrationV2,
	},
	{
		Version: 3,
		Name:    "add_session_events_table",
		Up:      migrationV3,
	},
}

func createVersionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	return nil
}

// RunMigrations executes all pending migrations, each in its own transaction.
func RunMigrations(db *sql.DB) error {
	if err := createVersionTable(db); err != nil {
		return err
	}

	currentVersion, err := CurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// migrationV1 creates the original session, phase and queue tables.
func migrationV1(tx *sql.Tx) error {
	_, err := tx.Exec(`
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

		CREATE TABLE IF NOT EXISTS queue_items (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			phase_number INTEGER NOT NULL,
			request TEXT NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('PENDING', 'PROCESSING', 'COMPLETED', 'FAILED')) DEFAULT 'PENDING',
			retry_count INTEGER NOT NULL DEFAULT 0,
			response TEXT,
			error TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			processed_at TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_queue_items_session ON queue_items(session_id);
	`)
	return err
}

// migrationV2 persists the re-queue delay as an earliest-dequeue time.
func migrationV2(tx *sql.Tx) error {
	now := time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	if _, err := tx.Exec(`ALTER TABLE queue_items ADD COLUMN available_at TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE queue_items SET available_at = COALESCE(NULLIF(created_at, ''), ?) WHERE available_at = ''`, now); err != nil {
		return err
	}
	_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_queue_items_dequeue ON queue_items(status, available_at, created_at)`)
	return err
}

// migrationV3 adds the session audit trail.
func migrationV3(tx *sql.Tx) error {
	_, err := tx.Exec(`
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
	`)
	return err
}
