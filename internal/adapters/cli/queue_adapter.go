package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"github.com/example/cotflow/internal/core/queue"
	"github.com/example/cotflow/internal/ports/primary"
)

// QueueAdapter translates CLI operations to RequestQueue calls.
type QueueAdapter struct {
	service primary.RequestQueue
	out     io.Writer
}

// NewQueueAdapter creates a new QueueAdapter.
func NewQueueAdapter(service primary.RequestQueue, out io.Writer) *QueueAdapter {
	return &QueueAdapter{service: service, out: out}
}

// Enqueue queues one search per query for a session phase.
func (a *QueueAdapter) Enqueue(ctx context.Context, sessionID string, phase int, queries []string, intent string) ([]string, error) {
	requests := make([]queue.Request, 0, len(queries))
	for _, q := range queries {
		requests = append(requests, queue.Request{Query: q, Intent: intent})
	}
	ids, err := a.service.Enqueue(ctx, primary.EnqueueRequest{
		SessionID: sessionID,
		Phase:     phase,
		Requests:  requests,
	})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(a.out, "✓ Queued %d request(s) for session %s\n", len(ids), sessionID)
	for _, id := range ids {
		fmt.Fprintf(a.out, "  %s\n", id)
	}
	return ids, nil
}

// Status prints counts per status and the items.
func (a *QueueAdapter) Status(ctx context.Context, sessionID string) error {
	st, err := a.service.GetQueueStatus(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get queue status: %w", err)
	}

	worker := color.New(color.FgYellow).Sprint("idle")
	if st.Running {
		worker = color.New(color.FgGreen).Sprint("running")
	}
	fmt.Fprintf(a.out, "Worker: %s\n", worker)

	statuses := make([]string, 0, len(st.Counts))
	for s := range st.Counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(a.out, "  %-11s %d\n", s, st.Counts[s])
	}

	if len(st.Items) == 0 {
		return nil
	}
	fmt.Fprintf(a.out, "\n%-36s %-11s %-5s %s\n", "ID", "STATUS", "TRIES", "QUERY")
	fmt.Fprintln(a.out, "────────────────────────────────────────────────────────────────────────────────")
	for _, item := range st.Items {
		fmt.Fprintf(a.out, "%-36s %-11s %-5d %s\n", item.ID, itemColor(item.Status), item.RetryCount, item.Request.Query)
	}
	return nil
}

func itemColor(status string) string {
	switch queue.ItemStatus(status) {
	case queue.StatusCompleted:
		return color.New(color.FgGreen).Sprintf("%-11s", status)
	case queue.StatusFailed:
		return color.New(color.FgRed).Sprintf("%-11s", status)
	case queue.StatusProcessing:
		return color.New(color.FgCyan).Sprintf("%-11s", status)
	default:
		return status
	}
}

// Responses prints the outcomes of the given items.
func (a *QueueAdapter) Responses(ctx context.Context, ids []string) error {
	responses, err := a.service.GetQueueResponses(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to get queue responses: %w", err)
	}
	if len(responses) == 0 {
		fmt.Fprintln(a.out, "No responses found")
		return nil
	}
	for _, r := range responses {
		fmt.Fprintf(a.out, "\n[%s] %s\n", itemColor(r.Status), r.Request.Query)
		if r.Response != nil {
			fmt.Fprintln(a.out, r.Response.Content)
			for _, c := range r.Response.Citations {
				fmt.Fprintf(a.out, "  - %s\n", c)
			}
		}
		if r.Error != "" {
			fmt.Fprintf(a.out, "error: %s\n", r.Error)
		}
	}
	return nil
}
