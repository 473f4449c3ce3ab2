package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/example/cotflow/internal/ports/secondary"
)

// DefaultDispatchBuffer is the number of step tasks that may wait for the runner.
const DefaultDispatchBuffer = 64

// ErrDispatcherFull is returned when a task cannot be queued without blocking.
var ErrDispatcherFull = errors.New("step dispatcher is full")

// TaskRunner runs one step task.
type TaskRunner interface {
	Run(ctx context.Context, task StepTask) error
}

// StepDispatcher hands step tasks to a single consumer goroutine.
// It implements both StepTrigger and Resumer; neither blocks its caller.
type StepDispatcher struct {
	tasks  chan StepTask
	events secondary.EventLog
	log    *zap.Logger

	mu     sync.RWMutex
	runner TaskRunner
}

// NewStepDispatcher creates a dispatcher with the given buffer size.
func NewStepDispatcher(buffer int, events secondary.EventLog, log *zap.Logger) *StepDispatcher {
	if buffer <= 0 {
		buffer = DefaultDispatchBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StepDispatcher{
		tasks:  make(chan StepTask, buffer),
		events: events,
		log:    log.Named("dispatcher"),
	}
}

// Bind sets the runner. The runner depends on services that depend on the
// dispatcher, so it is attached after construction.
func (d *StepDispatcher) Bind(runner TaskRunner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runner = runner
}

// TriggerStep queues a step for a session.
func (d *StepDispatcher) TriggerStep(ctx context.Context, sessionID string, phase int, step string) error {
	if err := d.offer(StepTask{SessionID: sessionID, Phase: phase, Step: step}); err != nil {
		return err
	}
	if d.events != nil {
		if err := d.events.Append(ctx, sessionID, secondary.EventStepTriggered, fmt.Sprintf("phase=%d step=%s", phase, step)); err != nil {
			d.log.Warn("failed to audit step trigger", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return nil
}

// ResumeSession queues the EXECUTE completion of a session whose searches resolved.
func (d *StepDispatcher) ResumeSession(_ context.Context, sessionID string) error {
	return d.offer(StepTask{SessionID: sessionID, Resume: true})
}

func (d *StepDispatcher) offer(task StepTask) error {
	select {
	case d.tasks <- task:
		d.log.Debug("task queued",
			zap.String("session_id", task.SessionID),
			zap.Int("phase", task.Phase),
			zap.String("step", task.Step),
			zap.Bool("resume", task.Resume))
		return nil
	default:
		d.log.Warn("dispatcher full", zap.String("session_id", task.SessionID), zap.String("task", taskName(task)))
		return fmt.Errorf("%w: dropping %s", ErrDispatcherFull, taskName(task))
	}
}

// Pending returns the number of queued tasks.
func (d *StepDispatcher) Pending() int {
	return len(d.tasks)
}

// Run consumes tasks until ctx is done.
func (d *StepDispatcher) Run(ctx context.Context) error {
	d.log.Info("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopped", zap.Int("pending", len(d.tasks)))
			return nil
		case task := <-d.tasks:
			d.mu.RLock()
			runner := d.runner
			d.mu.RUnlock()
			if runner == nil {
				d.log.Warn("no runner bound; dropping task", zap.String("session_id", task.SessionID))
				continue
			}
			if err := runner.Run(ctx, task); err != nil {
				d.log.Error("step task failed",
					zap.String("session_id", task.SessionID),
					zap.String("task", taskName(task)),
					zap.Error(err))
			}
		}
	}
}

func taskName(t StepTask) string {
	if t.Resume {
		return "resume"
	}
	return fmt.Sprintf("phase %d %s", t.Phase, t.Step)
}

// Ensure StepDispatcher implements the ports
var (
	_ secondary.StepTrigger = (*StepDispatcher)(nil)
	_ secondary.Resumer     = (*StepDispatcher)(nil)
)
