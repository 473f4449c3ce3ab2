package primary

import (
	"context"

	"github.com/example/cotflow/internal/core/recovery"
	"github.com/example/cotflow/internal/core/session"
)

// RecoveryService defines the primary port for error diagnosis and session health.
type RecoveryService interface {
	// ClassifyError diagnoses a raw error in the given locale.
	ClassifyError(err error, locale string) recovery.ErrorInfo

	// RecordSessionError appends to the history, fails the session and bumps retry_count.
	RecordSessionError(ctx context.Context, req RecordErrorRequest) (*Session, error)

	// DetermineRecoveryStrategy plans a recovery from the session's history.
	DetermineRecoveryStrategy(ctx context.Context, sessionID string, info recovery.ErrorInfo) (*recovery.Strategy, error)

	// CheckSessionHealth reports stalls, retry storms and skipped phases.
	CheckSessionHealth(ctx context.Context, sessionID string) (*session.HealthReport, error)
}

// RecordErrorRequest carries a classified error for a session.
type RecordErrorRequest struct {
	SessionID string
	Info      recovery.ErrorInfo
	Phase     int
	Step      string
}
