package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/cotflow/internal/ports/secondary"
)

// LoggingTrigger records triggered steps for an external caller to pick up.
// One-shot CLI commands use it instead of the dispatcher.
type LoggingTrigger struct {
	events secondary.EventLog
	log    *zap.Logger
}

// NewLoggingTrigger creates a LoggingTrigger.
func NewLoggingTrigger(events secondary.EventLog, log *zap.Logger) *LoggingTrigger {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingTrigger{events: events, log: log.Named("trigger")}
}

// TriggerStep logs and audits that a step awaits its caller.
func (t *LoggingTrigger) TriggerStep(ctx context.Context, sessionID string, phase int, step string) error {
	t.log.Info("step awaiting external caller",
		zap.String("session_id", sessionID),
		zap.Int("phase", phase),
		zap.String("step", step))
	if t.events == nil {
		return nil
	}
	return t.events.Append(ctx, sessionID, secondary.EventStepTriggered, fmt.Sprintf("phase=%d step=%s", phase, step))
}

// ResumeSession logs that a session's searches resolved.
func (t *LoggingTrigger) ResumeSession(_ context.Context, sessionID string) error {
	t.log.Info("queued searches resolved; submit the EXECUTE result", zap.String("session_id", sessionID))
	return nil
}

var (
	_ secondary.StepTrigger = (*LoggingTrigger)(nil)
	_ secondary.Resumer     = (*LoggingTrigger)(nil)
)
