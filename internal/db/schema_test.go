package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithSchema_FreshInstallMarksAllMigrations(t *testing.T) {
	for _, driver := range []string{DriverCGO, DriverPureGo} {
		t.Run(driver, func(t *testing.T) {
			conn, err := OpenWithSchema(driver, filepath.Join(t.TempDir(), "fresh.db"))
			require.NoError(t, err)
			defer conn.Close()

			v, err := CurrentVersion(conn)
			require.NoError(t, err)
			assert.Equal(t, migrations[len(migrations)-1].Version, v)

			for _, table := range []string{"sessions", "phases", "queue_items", "session_events"} {
				var n int
				require.NoError(t, conn.QueryRow(
					"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n))
				assert.Equal(t, 1, n, "table %s", table)
			}
		})
	}
}

func TestRunMigrations_UpgradesUnversionedDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	conn, err := Open(DriverCGO, path)
	require.NoError(t, err)
	defer conn.Close()

	// Legacy layout: v1 tables without a version table.
	tx, err := conn.Begin()
	require.NoError(t, err)
	require.NoError(t, migrationV1(tx))
	require.NoError(t, tx.Commit())
	_, err = conn.Exec(`INSERT INTO sessions (id, theme, created_at, updated_at) VALUES ('S1', 't', '2026-01-01T00:00:00.000000Z', '2026-01-01T00:00:00.000000Z')`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO queue_items (id, session_id, phase_number, request, created_at, updated_at)
		VALUES ('Q1', 'S1', 1, '{"query":"a"}', '2026-01-01T00:00:00.000000Z', '2026-01-01T00:00:00.000000Z')`)
	require.NoError(t, err)

	require.NoError(t, InitSchema(conn))

	var availableAt string
	require.NoError(t, conn.QueryRow("SELECT available_at FROM queue_items WHERE id = 'Q1'").Scan(&availableAt))
	assert.Equal(t, "2026-01-01T00:00:00.000000Z", availableAt)

	v, err := CurrentVersion(conn)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	// Idempotent
	require.NoError(t, InitSchema(conn))
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open("postgres", filepath.Join(t.TempDir(), "x.db"))
	assert.Error(t, err)
}

func TestSeedFixtures(t *testing.T) {
	conn, err := OpenWithSchema(DriverCGO, filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, SeedFixtures(conn))

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n))
	assert.Equal(t, 3, n)
}
