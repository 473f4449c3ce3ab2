package secondary

import "context"

// EventLog defines the interface for the per-session audit trail.
// Implementations extract the actor from context.
type EventLog interface {
	// Append records an event for a session.
	Append(ctx context.Context, sessionID, event, detail string) error

	// List returns a session's events, oldest first. limit <= 0 means all.
	List(ctx context.Context, sessionID string, limit int) ([]*SessionEventRecord, error)
}

// SessionEventRecord represents one audit entry as stored in persistence.
type SessionEventRecord struct {
	ID        int64
	SessionID string
	Actor     string
	Event     string
	Detail    string
	CreatedAt string
}

// Audit event names.
const (
	EventSessionCreated   = "session_created"
	EventSessionStarted   = "session_started"
	EventStepStored       = "step_stored"
	EventPhaseCompleted   = "phase_completed"
	EventSessionCompleted = "session_completed"
	EventErrorRecorded    = "error_recorded"
	EventRetryScheduled   = "retry_scheduled"
	EventRetryFired       = "retry_fired"
	EventStepSkipped      = "step_skipped"
	EventStepTriggered    = "step_triggered"
	EventQueueEnqueued    = "queue_enqueued"
	EventQueueDrained     = "queue_drained"
	EventManualAdvance    = "manual_advance"
)
