// Package queue contains the pure business logic for deferred search requests.
// This is part of the Functional Core - no I/O, only pure functions.
package queue

import (
	"fmt"
	"time"
)

// ItemStatus represents the possible states of a queue item.
type ItemStatus string

const (
	StatusPending    ItemStatus = "PENDING"
	StatusProcessing ItemStatus = "PROCESSING"
	StatusCompleted  ItemStatus = "COMPLETED"
	StatusFailed     ItemStatus = "FAILED"
)

// Queue timing and retry defaults.
const (
	MaxItemRetries = 3
	PacingDelay    = 2 * time.Second
	RequeueDelay   = 30 * time.Second
)

// Request is the payload of one deferred search.
type Request struct {
	Query   string `json:"query"`
	Intent  string `json:"intent,omitempty"`
	Purpose string `json:"purpose,omitempty"`
}

// Response is the stored answer of one search.
type Response struct {
	Content   string   `json:"content"`
	Citations []string `json:"citations,omitempty"`
}

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error returns the guard result as an error if not allowed, nil otherwise.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// EnqueueContext provides the context for an enqueue request.
type EnqueueContext struct {
	SessionID     string
	SessionExists bool
	Phase         int
	Requests      []Request
}

// CanEnqueue evaluates whether requests may be queued for a session.
// Rules:
// - Session must exist
// - At least one request with a non-empty query
func CanEnqueue(ctx EnqueueContext) GuardResult {
	if !ctx.SessionExists {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("session %s not found", ctx.SessionID),
		}
	}
	if len(ctx.Requests) == 0 {
		return GuardResult{
			Allowed: false,
			Reason:  "no queries to enqueue",
		}
	}
	for i, r := range ctx.Requests {
		if r.Query == "" {
			return GuardResult{
				Allowed: false,
				Reason:  fmt.Sprintf("request %d has an empty query", i),
			}
		}
	}
	return GuardResult{Allowed: true}
}

// FailureOutcome is what happens to an item whose search failed.
type FailureOutcome struct {
	RetryCount  int
	Requeue     bool
	AvailableAt time.Time // set when Requeue is true
}

// PlanFailure increments the retry count and decides whether the item goes back to PENDING.
func PlanFailure(retryCount int, now time.Time, maxRetries int, requeueDelay time.Duration) FailureOutcome {
	next := retryCount + 1
	if next >= maxRetries {
		return FailureOutcome{RetryCount: next}
	}
	return FailureOutcome{
		RetryCount:  next,
		Requeue:     true,
		AvailableAt: now.Add(requeueDelay),
	}
}

// ItemState is the minimal view of an item used by IsResolved.
type ItemState struct {
	Status     ItemStatus
	RetryCount int
}

// IsResolved reports whether an item will never be dequeued again.
func IsResolved(item ItemState, maxRetries int) bool {
	switch item.Status {
	case StatusCompleted:
		return true
	case StatusFailed:
		return item.RetryCount >= maxRetries
	}
	return false
}

// AllResolved reports whether every tracked id maps to a resolved item.
// Ids missing from items count as unresolved.
func AllResolved(ids []string, items map[string]ItemState, maxRetries int) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		item, ok := items[id]
		if !ok || !IsResolved(item, maxRetries) {
			return false
		}
	}
	return true
}
