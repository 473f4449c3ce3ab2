// Package sqlite_test contains integration tests for SQLite repositories.
//
// setupTestDB is the single point where tests load the schema. It goes through
// db.OpenWithSchema so tests run against the same DDL and migrations as production.
package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/example/cotflow/internal/adapters/sqlite"
	"github.com/example/cotflow/internal/db"
	"github.com/example/cotflow/internal/ports/secondary"
)

const testNow = "2026-03-01T10:00:00.000000Z"

// setupTestDB creates a file-backed database managed by a db.Manager.
func setupTestDB(t *testing.T) *db.Manager {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	cfg := db.DefaultManagerConfig()
	cfg.RetryDelay = time.Millisecond
	mgr, err := db.NewManager(func() (*sql.DB, error) {
		return db.OpenWithSchema(db.DriverCGO, path)
	}, cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	t.Cleanup(func() {
		mgr.Close()
	})

	return mgr
}

// seedSession inserts a test session and returns its ID.
func seedSession(t *testing.T, mgr *db.Manager, id, status string, maxPhases int) string {
	t.Helper()
	if id == "" {
		id = "S-001"
	}
	if status == "" {
		status = "PENDING"
	}
	if maxPhases == 0 {
		maxPhases = 3
	}
	repo := sqlite.NewSessionRepository(mgr)
	err := repo.Create(context.Background(), &secondary.SessionRecord{
		ID:           id,
		Theme:        "test theme",
		MaxPhases:    maxPhases,
		Status:       status,
		CurrentPhase: 1,
		CurrentStep:  "THINK",
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	})
	if err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	return id
}
