// Package primary defines the primary ports (driving adapters) for the application.
// These are the interfaces through which the CLI and in-process workers drive the core.
package primary

import (
	"context"
	"errors"
	"time"

	"github.com/example/cotflow/internal/core/recovery"
	"github.com/example/cotflow/internal/core/session"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// TriggerController defines the primary port for session progression.
type TriggerController interface {
	// CreateSession creates a PENDING session at phase 1 / THINK.
	CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error)

	// StartSession moves a PENDING session into THINK of phase 1 and triggers that step.
	StartSession(ctx context.Context, sessionID string) (*Session, error)

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// ListSessions lists sessions with optional filters.
	ListSessions(ctx context.Context, filters SessionFilters) ([]*Session, error)

	// ListPhases returns the stored phases of a session.
	ListPhases(ctx context.Context, sessionID string) ([]*Phase, error)

	// ListEvents returns the audit trail of a session.
	ListEvents(ctx context.Context, sessionID string, limit int) ([]*SessionEvent, error)

	// HandleStepResponse stores a step result and decides the next step or phase.
	// Re-applying an identical result is idempotent.
	HandleStepResponse(ctx context.Context, req StepResponseRequest) (*StepResponseResult, error)

	// HandleError records a failed step and arms a delayed retry while the budget allows.
	HandleError(ctx context.Context, req StepErrorRequest) (*StepErrorResult, error)

	// RetryFromLastSuccessfulPoint resumes a session at its first missing result.
	RetryFromLastSuccessfulPoint(ctx context.Context, sessionID string) (*RetryResult, error)

	// ManualProgressToNextPhase moves a session to THINK of its next phase.
	ManualProgressToNextPhase(ctx context.Context, sessionID string) (*Session, error)

	// RecoverScheduledRetries re-arms retry timers persisted before a restart.
	RecoverScheduledRetries(ctx context.Context) (int, error)

	// UpdateConfig replaces the controller settings.
	UpdateConfig(cfg ControllerConfig)

	// Config returns the current controller settings.
	Config() ControllerConfig
}

// ControllerConfig holds the tunable controller behavior.
type ControllerConfig struct {
	AutoProgressSteps  bool
	AutoProgressPhases bool
	MaxRetries         int
	RetryDelay         time.Duration
	DefaultMaxPhases   int
}

// DefaultControllerConfig returns the stock settings.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		AutoProgressSteps:  true,
		AutoProgressPhases: false,
		MaxRetries:         3,
		RetryDelay:         5 * time.Second,
		DefaultMaxPhases:   4,
	}
}

// CreateSessionRequest contains parameters for creating a session.
type CreateSessionRequest struct {
	Theme     string
	Style     string
	Platform  string
	MaxPhases int // 0 means the default
}

// SessionFilters contains filter options for listing sessions.
type SessionFilters struct {
	Status string
	Limit  int
}

// Session represents a session at the port boundary.
type Session struct {
	ID           string
	Theme        string
	Style        string
	Platform     string
	MaxPhases    int
	Status       string
	CurrentPhase int
	CurrentStep  string
	RetryCount   int
	LastError    string
	NextRetryAt  string
	ErrorHistory []recovery.HistoryEntry
	Metadata     session.Metadata
	CreatedAt    string
	UpdatedAt    string
}

// Phase represents a stored phase at the port boundary.
type Phase struct {
	SessionID       string
	PhaseNumber     int
	Status          string
	ThinkResult     string
	ExecuteResult   string
	IntegrateResult string
	UpdatedAt       string
}

// SessionEvent is one audit entry.
type SessionEvent struct {
	Actor     string
	Event     string
	Detail    string
	CreatedAt string
}

// StepResponseRequest carries the result of a step.
type StepResponseRequest struct {
	SessionID string
	Phase     int
	Step      string
	Payload   string
	Prompt    string
	Tokens    int
}

// StepResponseResult describes where the session went after the step.
type StepResponseResult struct {
	Session          *Session
	NextStep         string // empty when nothing was triggered
	PhaseCompleted   bool
	SessionCompleted bool
}

// StepErrorRequest carries a failed step.
type StepErrorRequest struct {
	SessionID string
	Phase     int
	Step      string
	Err       error
	Locale    string
}

// StepErrorResult is the structured failure returned to the caller.
// Durable state already reflects FAILED when it is returned.
type StepErrorResult struct {
	Error          recovery.ErrorInfo
	Strategy       recovery.Strategy
	RetryScheduled bool
	RetryAt        string
	Skipped        bool
}

// RetryResult describes where a retried session resumed.
type RetryResult struct {
	Session     *Session
	ResumePhase int
	ResumeStep  string
	Completed   bool
}
