package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Resilience defaults.
const (
	DefaultQueryRetries   = 3
	DefaultRetryDelay     = 1000 * time.Millisecond
	DefaultTxMaxWait      = 5 * time.Second
	DefaultTxTimeout      = 30 * time.Second
	DefaultLatencyWindow  = 100
	DefaultReconnectPause = time.Second
	DefaultMonitorEvery   = 30 * time.Second
)

// ErrManagerClosed is returned after Close.
var ErrManagerClosed = errors.New("database manager closed")

// Opener opens a fresh connection pool. Used for the initial open and every reconnect.
type Opener func() (*sql.DB, error)

// ManagerConfig tunes retries, transaction ceilings and instrumentation.
type ManagerConfig struct {
	MaxRetries     int
	RetryDelay     time.Duration // multiplied by the attempt number
	TxMaxWait      time.Duration // wait for a connection before a transaction begins
	TxTimeout      time.Duration // whole-transaction ceiling
	LatencyWindow  int
	ReconnectPause time.Duration
}

// DefaultManagerConfig returns the stock settings.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxRetries:     DefaultQueryRetries,
		RetryDelay:     DefaultRetryDelay,
		TxMaxWait:      DefaultTxMaxWait,
		TxTimeout:      DefaultTxTimeout,
		LatencyWindow:  DefaultLatencyWindow,
		ReconnectPause: DefaultReconnectPause,
	}
}

// Stats is a snapshot of the manager's instrumentation.
type Stats struct {
	Healthy       bool
	TotalQueries  int64
	FailedQueries int64
	Retries       int64
	AvgLatency    time.Duration
	WindowSize    int
	LastError     string
	LastErrorAt   time.Time
	Reconnects    int
}

// QueryOption overrides ExecuteQuery defaults for one call.
type QueryOption func(*queryOptions)

type queryOptions struct {
	maxRetries int
	retryDelay time.Duration
}

// WithMaxRetries sets the number of attempts for one call.
func WithMaxRetries(n int) QueryOption {
	return func(o *queryOptions) { o.maxRetries = n }
}

// WithRetryDelay sets the base delay between attempts.
func WithRetryDelay(d time.Duration) QueryOption {
	return func(o *queryOptions) { o.retryDelay = d }
}

// TxOptions configures ExecuteTransaction.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// Manager wraps the connection pool with bounded retries, latency tracking, transaction
// ceilings and a reconnecting health monitor. All repositories go through it.
type Manager struct {
	open Opener
	cfg  ManagerConfig
	log  *zap.Logger

	mu     sync.RWMutex // guards db; held for reading during every call
	db     *sql.DB
	closed bool

	statsMu    sync.Mutex
	latencies  []time.Duration
	nextSlot   int
	filled     int
	total      int64
	failed     int64
	retries    int64
	lastErr    string
	lastErrAt  time.Time
	healthy    bool
	reconnects int
}

// NewManager opens the pool through open and returns a ready manager.
func NewManager(open Opener, cfg ManagerConfig, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultQueryRetries
	}
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = DefaultLatencyWindow
	}
	if cfg.TxMaxWait <= 0 {
		cfg.TxMaxWait = DefaultTxMaxWait
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = DefaultTxTimeout
	}

	conn, err := open()
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Manager{
		open:      open,
		cfg:       cfg,
		log:       log,
		db:        conn,
		latencies: make([]time.Duration, cfg.LatencyWindow),
		healthy:   true,
	}, nil
}

// DB returns the current pool. Prefer ExecuteQuery; this exists for schema setup.
func (m *Manager) DB() *sql.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

// ExecuteQuery runs fn with bounded retries. Delay between attempts is RetryDelay × attempt.
// Context cancellation, sql.ErrNoRows and schema/constraint errors are not retried.
func (m *Manager) ExecuteQuery(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error, opts ...QueryOption) error {
	o := queryOptions{maxRetries: m.cfg.MaxRetries, retryDelay: m.cfg.RetryDelay}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxRetries <= 0 {
		o.maxRetries = 1
	}

	return m.withRetry(ctx, o, func(ctx context.Context, db *sql.DB) error {
		return fn(ctx, db)
	})
}

// ExecuteTransaction runs fn inside a transaction under the same retry wrapper.
// Acquiring a connection may take at most TxMaxWait; the whole transaction at most TxTimeout.
func (m *Manager) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error, opts TxOptions) error {
	o := queryOptions{maxRetries: m.cfg.MaxRetries, retryDelay: m.cfg.RetryDelay}

	return m.withRetry(ctx, o, func(ctx context.Context, db *sql.DB) error {
		waitCtx, cancelWait := context.WithTimeout(ctx, m.cfg.TxMaxWait)
		conn, err := db.Conn(waitCtx)
		cancelWait()
		if err != nil {
			return fmt.Errorf("failed to acquire connection within %s: %w", m.cfg.TxMaxWait, err)
		}
		defer conn.Close()

		txCtx, cancel := context.WithTimeout(ctx, m.cfg.TxTimeout)
		defer cancel()

		tx, err := conn.BeginTx(txCtx, &sql.TxOptions{Isolation: opts.Isolation, ReadOnly: opts.ReadOnly})
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := fn(txCtx, tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

func (m *Manager) withRetry(ctx context.Context, o queryOptions, fn func(ctx context.Context, db *sql.DB) error) error {
	start := time.Now()
	var err error

	for attempt := 1; attempt <= o.maxRetries; attempt++ {
		err = m.attempt(ctx, fn)
		if err == nil || !retryable(ctx, err) || attempt == o.maxRetries {
			break
		}

		m.statsMu.Lock()
		m.retries++
		m.statsMu.Unlock()

		delay := o.retryDelay * time.Duration(attempt)
		m.log.Warn("database call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.maxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.record(time.Since(start), ctx.Err())
			return ctx.Err()
		case <-timer.C:
		}
	}

	m.record(time.Since(start), err)
	return err
}

func (m *Manager) attempt(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrManagerClosed
	}
	return fn(ctx, m.db)
}

// retryable reports whether err is worth another attempt.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrManagerClosed) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, permanent := range []string{"constraint failed", "no such table", "no such column", "syntax error"} {
		if strings.Contains(msg, permanent) {
			return false
		}
	}
	return true
}

func (m *Manager) record(d time.Duration, err error) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	m.latencies[m.nextSlot] = d
	m.nextSlot = (m.nextSlot + 1) % len(m.latencies)
	if m.filled < len(m.latencies) {
		m.filled++
	}
	m.total++
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		m.failed++
		m.lastErr = err.Error()
		m.lastErrAt = time.Now().UTC()
	}
}

// Stats returns a snapshot of the instrumentation.
func (m *Manager) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	var sum time.Duration
	for i := 0; i < m.filled; i++ {
		sum += m.latencies[i]
	}
	var avg time.Duration
	if m.filled > 0 {
		avg = sum / time.Duration(m.filled)
	}
	return Stats{
		Healthy:       m.healthy,
		TotalQueries:  m.total,
		FailedQueries: m.failed,
		Retries:       m.retries,
		AvgLatency:    avg,
		WindowSize:    m.filled,
		LastError:     m.lastErr,
		LastErrorAt:   m.lastErrAt,
		Reconnects:    m.reconnects,
	}
}

// Ping checks that the store answers a trivial query.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrManagerClosed
	}
	var one int
	if err := m.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Reconnect closes the pool, pauses, then opens a fresh one.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}

	// 1. Disconnect
	if err := m.db.Close(); err != nil {
		m.log.Warn("closing database before reconnect failed", zap.Error(err))
	}

	// 2. Pause
	timer := time.NewTimer(m.cfg.ReconnectPause)
	select {
	case <-ctx.Done():
		timer.Stop()
	case <-timer.C:
	}

	// 3. Reconnect
	conn, err := m.open()
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}
	m.db = conn

	m.statsMu.Lock()
	m.reconnects++
	m.statsMu.Unlock()

	m.log.Info("database reconnected")
	return nil
}

// RunMonitor polls health every interval until ctx is done, running the reconnect
// sequence whenever a poll fails.
func (m *Manager) RunMonitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultMonitorEvery
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		err := m.Ping(ctx)
		if errors.Is(err, ErrManagerClosed) {
			return nil
		}
		m.setHealthy(err == nil)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		m.log.Error("database health check failed", zap.Error(err))
		if rerr := m.Reconnect(ctx); rerr != nil {
			m.log.Error("database reconnect failed", zap.Error(rerr))
			continue
		}
		m.setHealthy(m.Ping(ctx) == nil)
	}
}

func (m *Manager) setHealthy(ok bool) {
	m.statsMu.Lock()
	m.healthy = ok
	m.statsMu.Unlock()
}

// Close closes the pool. Further calls fail with ErrManagerClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}
