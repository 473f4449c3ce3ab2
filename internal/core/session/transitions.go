// Package session contains the pure business logic for CoT session progression.
// This is part of the Functional Core - no I/O, only pure functions.
package session

import "fmt"

// Status represents the possible states of a session.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusThinking       Status = "THINKING"
	StatusExecuting      Status = "EXECUTING"
	StatusIntegrating    Status = "INTEGRATING"
	StatusWaitingOnQueue Status = "WAITING_ON_QUEUE"
	StatusCompleted      Status = "COMPLETED"
	StatusFailed         Status = "FAILED"
)

// Step is one stage inside a phase.
type Step string

const (
	StepThink     Step = "THINK"
	StepExecute   Step = "EXECUTE"
	StepIntegrate Step = "INTEGRATE"
)

// stepOrder is the fixed intra-phase order.
var stepOrder = []Step{StepThink, StepExecute, StepIntegrate}

// ParseStep validates a step name.
func ParseStep(s string) (Step, error) {
	switch Step(s) {
	case StepThink, StepExecute, StepIntegrate:
		return Step(s), nil
	}
	return "", fmt.Errorf("invalid step %q (expected THINK, EXECUTE or INTEGRATE)", s)
}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusThinking, StatusExecuting, StatusIntegrating,
		StatusWaitingOnQueue, StatusCompleted, StatusFailed:
		return Status(s), nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// NextStep returns the step following s, or false when s closes the phase.
func NextStep(s Step) (Step, bool) {
	for i, st := range stepOrder {
		if st == s && i+1 < len(stepOrder) {
			return stepOrder[i+1], true
		}
	}
	return "", false
}

// StatusForStep maps a step to the status a session carries while it is active on that step.
func StatusForStep(s Step) Status {
	switch s {
	case StepExecute:
		return StatusExecuting
	case StepIntegrate:
		return StatusIntegrating
	default:
		return StatusThinking
	}
}

// InitialStatus returns the status of a newly created session.
func InitialStatus() Status {
	return StatusPending
}

// IsTerminal reports whether no further transition may leave s.
func IsTerminal(s Status) bool {
	return s == StatusCompleted
}

var allowedTransitions = map[Status][]Status{
	StatusPending:        {StatusThinking, StatusExecuting, StatusIntegrating, StatusWaitingOnQueue, StatusCompleted, StatusFailed},
	StatusThinking:       {StatusThinking, StatusExecuting, StatusIntegrating, StatusWaitingOnQueue, StatusCompleted, StatusFailed},
	StatusExecuting:      {StatusThinking, StatusExecuting, StatusIntegrating, StatusWaitingOnQueue, StatusCompleted, StatusFailed},
	StatusIntegrating:    {StatusThinking, StatusExecuting, StatusIntegrating, StatusWaitingOnQueue, StatusCompleted, StatusFailed},
	StatusWaitingOnQueue: {StatusExecuting, StatusIntegrating, StatusWaitingOnQueue, StatusCompleted, StatusFailed},
	StatusFailed:         {StatusPending, StatusThinking, StatusExecuting, StatusIntegrating, StatusWaitingOnQueue, StatusFailed},
	StatusCompleted:      {},
}

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string // Human-readable reason (populated when not allowed)
}

// Error returns the guard result as an error if not allowed, nil otherwise.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// CanTransition evaluates whether a session may move from one status to another.
func CanTransition(from, to Status) GuardResult {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return GuardResult{Allowed: true}
		}
	}
	return GuardResult{
		Allowed: false,
		Reason:  fmt.Sprintf("session cannot move from %s to %s", from, to),
	}
}

// StepContext provides the context needed to accept a step response.
type StepContext struct {
	SessionID string
	Status    Status
	Phase     int
	MaxPhases int
}

// CanAcceptStep evaluates whether a step result may be stored for the given phase.
// Rule: completed sessions are closed and the phase must lie within 1..MaxPhases.
func CanAcceptStep(ctx StepContext) GuardResult {
	if ctx.Status == StatusCompleted {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("session %s is already completed", ctx.SessionID),
		}
	}
	if ctx.Phase < 1 || ctx.Phase > ctx.MaxPhases {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("phase %d is out of range for session %s (1..%d)", ctx.Phase, ctx.SessionID, ctx.MaxPhases),
		}
	}
	return GuardResult{Allowed: true}
}

// AdvanceContext provides the context for a manual phase advance.
type AdvanceContext struct {
	SessionID    string
	Status       Status
	CurrentPhase int
	MaxPhases    int
}

// CanAdvancePhase evaluates whether a session may be moved to its next phase by hand.
// Rule: the current phase must be below the session's maximum.
func CanAdvancePhase(ctx AdvanceContext) GuardResult {
	if ctx.Status == StatusCompleted {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("session %s is already completed", ctx.SessionID),
		}
	}
	if ctx.CurrentPhase >= ctx.MaxPhases {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("session %s is already at its last phase (%d/%d)", ctx.SessionID, ctx.CurrentPhase, ctx.MaxPhases),
		}
	}
	return GuardResult{Allowed: true}
}

// CanStart evaluates whether a session may begin its first step.
// Rule: only a PENDING session starts; anything else is already in flight or done.
func CanStart(sessionID string, status Status) GuardResult {
	if status != StatusPending {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("session %s cannot start from %s (must be PENDING)", sessionID, status),
		}
	}
	return GuardResult{Allowed: true}
}
