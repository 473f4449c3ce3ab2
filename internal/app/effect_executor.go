package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/example/cotflow/internal/core/effects"
	"github.com/example/cotflow/internal/ports/secondary"
)

// EffectExecutor interprets and executes effects.
// This is the "Imperative Shell" - the only place planner output turns into I/O.
type EffectExecutor interface {
	Execute(ctx context.Context, effs []effects.Effect) error
}

// DefaultEffectExecutor implements EffectExecutor with real collaborators.
type DefaultEffectExecutor struct {
	trigger   secondary.StepTrigger
	notifier  secondary.Notifier
	events    secondary.EventLog
	scheduler *RetryScheduler
	log       *zap.Logger
}

// NewEffectExecutor creates a new DefaultEffectExecutor.
// Any collaborator may be nil; its effects are then only logged.
func NewEffectExecutor(
	trigger secondary.StepTrigger,
	notifier secondary.Notifier,
	events secondary.EventLog,
	scheduler *RetryScheduler,
	log *zap.Logger,
) *DefaultEffectExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	return &DefaultEffectExecutor{
		trigger:   trigger,
		notifier:  notifier,
		events:    events,
		scheduler: scheduler,
		log:       log,
	}
}

// Execute runs every effect in order. A failing effect does not stop the rest;
// all failures are returned joined.
func (e *DefaultEffectExecutor) Execute(ctx context.Context, effs []effects.Effect) error {
	var errs []error
	for _, eff := range effs {
		if err := e.executeOne(ctx, eff); err != nil {
			errs = append(errs, fmt.Errorf("failed to execute %s effect: %w", eff.EffectType(), err))
		}
	}
	return errors.Join(errs...)
}

func (e *DefaultEffectExecutor) executeOne(ctx context.Context, eff effects.Effect) error {
	switch typed := eff.(type) {
	case effects.TriggerStepEffect:
		if e.trigger == nil {
			e.log.Info("no step trigger configured", zap.String("session_id", typed.SessionID), zap.String("step", typed.Step))
			return nil
		}
		return e.trigger.TriggerStep(ctx, typed.SessionID, typed.Phase, typed.Step)
	case effects.NotifyEffect:
		if e.notifier == nil {
			return nil
		}
		return e.notifier.Notify(ctx, secondary.Notification{
			Event:     typed.Event,
			SessionID: typed.SessionID,
			Phase:     typed.Phase,
			Message:   typed.Message,
		})
	case effects.ScheduleRetryEffect:
		if e.scheduler == nil {
			return fmt.Errorf("no retry scheduler for session %s", typed.SessionID)
		}
		e.scheduler.Schedule(typed.SessionID, typed.Delay)
		return nil
	case effects.AuditEffect:
		if e.events == nil {
			return nil
		}
		return e.events.Append(ctx, typed.SessionID, typed.Event, typed.Detail)
	case effects.LogEffect:
		e.executeLog(typed)
		return nil
	case effects.CompositeEffect:
		return e.Execute(ctx, typed.Effects)
	case effects.NoEffect:
		return nil
	default:
		return fmt.Errorf("unknown effect type: %T", eff)
	}
}

func (e *DefaultEffectExecutor) executeLog(eff effects.LogEffect) {
	level, err := zapcore.ParseLevel(eff.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	fields := make([]zap.Field, 0, len(eff.Fields))
	for k, v := range eff.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	if ce := e.log.Check(level, eff.Message); ce != nil {
		ce.Write(fields...)
	}
}

// Ensure DefaultEffectExecutor implements the interface
var _ EffectExecutor = (*DefaultEffectExecutor)(nil)
