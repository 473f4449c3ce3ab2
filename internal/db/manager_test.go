package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// database/sql keeps one opener goroutine per pool until Close.
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func newTestManager(t *testing.T, cfg ManagerConfig) (*Manager, *atomic.Int32) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opens := &atomic.Int32{}
	opener := func() (*sql.DB, error) {
		opens.Add(1)
		return OpenWithSchema(DriverCGO, path)
	}
	m, err := NewManager(opener, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, opens
}

func fastConfig() ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.ReconnectPause = time.Millisecond
	return cfg
}

func TestExecuteQuery_RetriesTransientErrors(t *testing.T) {
	m, _ := newTestManager(t, fastConfig())

	calls := 0
	err := m.ExecuteQuery(context.Background(), func(ctx context.Context, db *sql.DB) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	stats := m.Stats()
	assert.EqualValues(t, 1, stats.TotalQueries)
	assert.EqualValues(t, 0, stats.FailedQueries)
	assert.EqualValues(t, 2, stats.Retries)
}

func TestExecuteQuery_GivesUpAfterMaxRetries(t *testing.T) {
	m, _ := newTestManager(t, fastConfig())

	calls := 0
	err := m.ExecuteQuery(context.Background(), func(ctx context.Context, db *sql.DB) error {
		calls++
		return errors.New("disk I/O error")
	})

	require.Error(t, err)
	assert.Equal(t, DefaultQueryRetries, calls)
	stats := m.Stats()
	assert.EqualValues(t, 1, stats.FailedQueries)
	assert.Equal(t, "disk I/O error", stats.LastError)
	assert.False(t, stats.LastErrorAt.IsZero())
}

func TestExecuteQuery_MaxRetriesOption(t *testing.T) {
	m, _ := newTestManager(t, fastConfig())

	calls := 0
	_ = m.ExecuteQuery(context.Background(), func(ctx context.Context, db *sql.DB) error {
		calls++
		return errors.New("busy")
	}, WithMaxRetries(5), WithRetryDelay(0))

	assert.Equal(t, 5, calls)
}

func TestExecuteQuery_DoesNotRetryPermanentErrors(t *testing.T) {
	m, _ := newTestManager(t, fastConfig())

	tests := []struct {
		name string
		err  error
	}{
		{"no rows", sql.ErrNoRows},
		{"constraint", errors.New("UNIQUE constraint failed: sessions.id")},
		{"missing column", errors.New("no such column: nope")},
		{"canceled", context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := m.ExecuteQuery(context.Background(), func(ctx context.Context, db *sql.DB) error {
				calls++
				return tt.err
			})
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestExecuteQuery_LatencyWindowIsBounded(t *testing.T) {
	cfg := fastConfig()
	cfg.LatencyWindow = 10
	m, _ := newTestManager(t, cfg)

	for i := 0; i < 25; i++ {
		require.NoError(t, m.ExecuteQuery(context.Background(), func(ctx context.Context, db *sql.DB) error {
			return nil
		}))
	}

	stats := m.Stats()
	assert.EqualValues(t, 25, stats.TotalQueries)
	assert.Equal(t, 10, stats.WindowSize)
}

func TestExecuteTransaction_CommitAndRollback(t *testing.T) {
	m, _ := newTestManager(t, fastConfig())
	ctx := context.Background()
	now := "2026-01-01T00:00:00.000000Z"

	err := m.ExecuteTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, theme, created_at, updated_at) VALUES ('S1', 't', ?, ?)`, now, now)
		return err
	}, TxOptions{})
	require.NoError(t, err)

	boom := errors.New("boom constraint failed")
	err = m.ExecuteTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, theme, created_at, updated_at) VALUES ('S2', 't', ?, ?)`, now, now); err != nil {
			return err
		}
		return boom
	}, TxOptions{})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, m.ExecuteQuery(ctx, func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count)
	}))
	assert.Equal(t, 1, count, "rolled back insert must not persist")
}

func TestReconnect(t *testing.T) {
	m, opens := newTestManager(t, fastConfig())
	ctx := context.Background()

	require.NoError(t, m.Reconnect(ctx))
	assert.EqualValues(t, 2, opens.Load())
	assert.Equal(t, 1, m.Stats().Reconnects)
	require.NoError(t, m.Ping(ctx))
}

func TestRunMonitor_ReconnectsUnhealthyPool(t *testing.T) {
	m, opens := newTestManager(t, fastConfig())

	// Simulate a dead pool underneath the manager.
	require.NoError(t, m.DB().Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.RunMonitor(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		return m.Stats().Reconnects >= 1 && m.Stats().Healthy
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, opens.Load(), int32(2))

	cancel()
	require.NoError(t, <-done)
}

func TestClose(t *testing.T) {
	m, _ := newTestManager(t, fastConfig())
	require.NoError(t, m.Close())

	err := m.ExecuteQuery(context.Background(), func(ctx context.Context, db *sql.DB) error { return nil })
	assert.ErrorIs(t, err, ErrManagerClosed)
	assert.ErrorIs(t, m.Ping(context.Background()), ErrManagerClosed)
}
