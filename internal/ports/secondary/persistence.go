// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrClaimConflict is returned when dequeueable items exist but none could be claimed.
	ErrClaimConflict = errors.New("queue item claim conflict")
)

// TimestampLayout is the fixed-width UTC layout used for every stored timestamp,
// so lexical order matches chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimestampLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTime parses a stored timestamp. Empty input yields the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(TimestampLayout, s)
}

// SessionRepository defines the secondary port for session persistence.
type SessionRepository interface {
	// Create persists a new session.
	Create(ctx context.Context, session *SessionRecord) error

	// GetByID retrieves a session by its ID. Returns ErrNotFound when missing.
	GetByID(ctx context.Context, id string) (*SessionRecord, error)

	// Update overwrites the mutable columns of a session.
	Update(ctx context.Context, session *SessionRecord) error

	// UpdateStatusIf sets status only when the current status is one of from.
	// Returns false when the guard did not match.
	UpdateStatusIf(ctx context.Context, id string, from []string, to, updatedAt string) (bool, error)

	// List retrieves sessions matching the given filters, newest first.
	List(ctx context.Context, filters SessionFilters) ([]*SessionRecord, error)

	// ListScheduledRetries returns FAILED sessions that still carry a next_retry_at.
	ListScheduledRetries(ctx context.Context) ([]*SessionRecord, error)
}

// SessionRecord represents a session as stored in persistence.
type SessionRecord struct {
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
	NextRetryAt  string // empty when no retry is armed
	ErrorHistory string // JSON array, at most 5 entries
	Metadata     string // JSON object
	CreatedAt    string
	UpdatedAt    string
}

// SessionFilters contains filter options for querying sessions.
type SessionFilters struct {
	Status string
	Limit  int
}

// PhaseRepository defines the secondary port for phase persistence.
// Phases are only ever upserted; nothing deletes them.
type PhaseRepository interface {
	// UpsertStepResult writes one step's result into the (session, phase) row, creating it if needed.
	UpsertStepResult(ctx context.Context, result *StepResultRecord) error

	// Get retrieves one phase. Returns ErrNotFound when missing.
	Get(ctx context.Context, sessionID string, phaseNumber int) (*PhaseRecord, error)

	// ListBySession returns all phases of a session ordered by phase number.
	ListBySession(ctx context.Context, sessionID string) ([]*PhaseRecord, error)
}

// PhaseRecord represents a phase as stored in persistence.
type PhaseRecord struct {
	ID              int64
	SessionID       string
	PhaseNumber     int
	ThinkResult     string
	ThinkPrompt     string
	ThinkTokens     int
	ThinkAt         string
	ExecuteResult   string
	ExecutePrompt   string
	ExecuteTokens   int
	ExecuteAt       string
	IntegrateResult string
	IntegratePrompt string
	IntegrateTokens int
	IntegrateAt     string
	Status          string
	CreatedAt       string
	UpdatedAt       string
}

// StepResultRecord is one step's output to be merged into a phase row.
type StepResultRecord struct {
	SessionID   string
	PhaseNumber int
	Step        string // THINK, EXECUTE or INTEGRATE
	Result      string
	Prompt      string
	Tokens      int
	PhaseStatus string // pending, in_progress or completed
	At          string
}

// QueueItemRepository defines the secondary port for queue item persistence.
type QueueItemRepository interface {
	// CreateBatch persists items atomically.
	CreateBatch(ctx context.Context, items []*QueueItemRecord) error

	// GetByIDs returns the given items ordered by creation time.
	GetByIDs(ctx context.Context, ids []string) ([]*QueueItemRecord, error)

	// List returns items matching filters ordered by creation time.
	List(ctx context.Context, filters QueueItemFilters) ([]*QueueItemRecord, error)

	// ClaimNext moves the oldest dequeueable item to PROCESSING and returns it.
	// Returns nil when nothing is available at now.
	ClaimNext(ctx context.Context, now string, maxRetries int) (*QueueItemRecord, error)

	// Complete stores a response and marks the item COMPLETED.
	Complete(ctx context.Context, id, response, processedAt string) error

	// Fail marks an item FAILED, or back to PENDING with a delayed available_at when requeue is set.
	Fail(ctx context.Context, id string, update QueueFailure) error

	// NextAvailableAt returns the earliest available_at among dequeueable items.
	NextAvailableAt(ctx context.Context, maxRetries int) (string, bool, error)

	// ResetProcessing returns items stuck in PROCESSING to PENDING.
	ResetProcessing(ctx context.Context, updatedAt string) (int, error)

	// CountByStatus returns item counts per status, optionally for one session.
	CountByStatus(ctx context.Context, sessionID string) (map[string]int, error)
}

// QueueItemRecord represents a queue item as stored in persistence.
type QueueItemRecord struct {
	ID          string
	SessionID   string
	PhaseNumber int
	Request     string // JSON {query, intent, purpose}
	Status      string
	RetryCount  int
	Response    string // JSON {content, citations}
	Error       string
	AvailableAt string
	CreatedAt   string
	UpdatedAt   string
	ProcessedAt string
}

// QueueItemFilters contains filter options for querying queue items.
type QueueItemFilters struct {
	SessionID string
	Status    string
	Limit     int
}

// QueueFailure describes a failed processing attempt.
type QueueFailure struct {
	Error       string
	RetryCount  int
	Requeue     bool
	AvailableAt string
	UpdatedAt   string
}
