// Package effects defines effect types as data structures representing I/O operations.
// This is the foundation of the Functional Core / Imperative Shell pattern.
// Effects are pure data - they describe what should happen, not how.
package effects

import "time"

// Effect is the base interface for all effects.
// Effects represent I/O operations as data that can be interpreted by the shell.
type Effect interface {
	// EffectType returns a string identifier for the effect type.
	EffectType() string
}

// LogEffect represents a logging operation.
type LogEffect struct {
	Level   string
	Message string
	Fields  map[string]any
}

func (e LogEffect) EffectType() string { return "log" }

// TriggerStepEffect asks the shell to run a step for a session.
type TriggerStepEffect struct {
	SessionID string
	Phase     int
	Step      string // THINK, EXECUTE or INTEGRATE
}

func (e TriggerStepEffect) EffectType() string { return "trigger_step" }

// NotifyEffect announces a milestone to the notifier.
type NotifyEffect struct {
	Event     string // e.g., "phase_completed", "session_completed"
	SessionID string
	Phase     int
	Message   string
}

func (e NotifyEffect) EffectType() string { return "notify" }

// ScheduleRetryEffect arms a delayed retry for a session.
type ScheduleRetryEffect struct {
	SessionID string
	Delay     time.Duration
}

func (e ScheduleRetryEffect) EffectType() string { return "schedule_retry" }

// AuditEffect appends an entry to the session event log.
type AuditEffect struct {
	SessionID string
	Event     string
	Detail    string
}

func (e AuditEffect) EffectType() string { return "audit" }

// CompositeEffect holds multiple effects to be executed in sequence.
type CompositeEffect struct {
	Effects []Effect
}

func (e CompositeEffect) EffectType() string { return "composite" }

// NoEffect represents an operation that produces no side effects.
type NoEffect struct{}

func (e NoEffect) EffectType() string { return "none" }

// Notification events.
const (
	EventPhaseCompleted   = "phase_completed"
	EventSessionCompleted = "session_completed"
)
