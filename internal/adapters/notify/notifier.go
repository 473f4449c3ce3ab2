// Package notify delivers phase and session milestones.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/cotflow/internal/ports/secondary"
)

// LogNotifier records milestones in the structured log and the session event log.
type LogNotifier struct {
	log    *zap.Logger
	events secondary.EventLog
}

// NewLogNotifier creates a LogNotifier. events may be nil.
func NewLogNotifier(log *zap.Logger, events secondary.EventLog) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log.Named("notify"), events: events}
}

// Notify logs the milestone and appends it to the session's audit trail.
func (n *LogNotifier) Notify(ctx context.Context, note secondary.Notification) error {
	n.log.Info(note.Message,
		zap.String("event", note.Event),
		zap.String("session_id", note.SessionID),
		zap.Int("phase", note.Phase))

	if n.events == nil {
		return nil
	}
	detail := note.Message
	if note.Phase > 0 {
		detail = fmt.Sprintf("phase=%d %s", note.Phase, note.Message)
	}
	if err := n.events.Append(ctx, note.SessionID, note.Event, detail); err != nil {
		return fmt.Errorf("failed to record %s notification: %w", note.Event, err)
	}
	return nil
}

// Ensure LogNotifier implements the interface
var _ secondary.Notifier = (*LogNotifier)(nil)
