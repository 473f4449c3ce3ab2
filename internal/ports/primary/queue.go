package primary

import (
	"context"
	"errors"

	"github.com/example/cotflow/internal/core/queue"
)

// ErrQueueStopped is returned by Start when the service was stopped for good.
var ErrQueueStopped = errors.New("request queue stopped")

// RequestQueue defines the primary port for deferred search work.
type RequestQueue interface {
	// Enqueue creates one PENDING item per request and parks the session on the queue.
	Enqueue(ctx context.Context, req EnqueueRequest) ([]string, error)

	// GetQueueStatus returns counts and items, optionally for one session.
	GetQueueStatus(ctx context.Context, sessionID string) (*QueueStatus, error)

	// GetQueueResponses returns the given items ordered by creation time.
	GetQueueResponses(ctx context.Context, ids []string) ([]*QueueResponse, error)

	// Start enables the worker, recovering items left in PROCESSING.
	Start(ctx context.Context) error

	// Stop halts the worker and waits for it to exit.
	Stop()
}

// EnqueueRequest contains the search requests for one session phase.
type EnqueueRequest struct {
	SessionID string
	Phase     int
	Requests  []queue.Request
}

// QueueStatus summarizes the queue.
type QueueStatus struct {
	Running bool
	Counts  map[string]int
	Items   []*QueueItem
}

// QueueItem represents a queue item at the port boundary.
type QueueItem struct {
	ID          string
	SessionID   string
	PhaseNumber int
	Request     queue.Request
	Status      string
	RetryCount  int
	Error       string
	AvailableAt string
	CreatedAt   string
	ProcessedAt string
}

// QueueResponse is an item's outcome enriched with its original request.
type QueueResponse struct {
	ID          string
	PhaseNumber int
	Request     queue.Request
	Status      string
	Response    *queue.Response
	Error       string
	CreatedAt   string
}
