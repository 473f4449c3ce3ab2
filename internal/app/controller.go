package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/cotflow/internal/clock"
	"github.com/example/cotflow/internal/core/effects"
	"github.com/example/cotflow/internal/core/recovery"
	"github.com/example/cotflow/internal/core/session"
	"github.com/example/cotflow/internal/ctxutil"
	"github.com/example/cotflow/internal/ports/primary"
	"github.com/example/cotflow/internal/ports/secondary"
)

// RetryTimerActor is the actor recorded for retries fired by a timer.
const RetryTimerActor = "retry-timer"

// TriggerControllerImpl implements the TriggerController interface.
//
// Every mutation of a session runs under its per-session lock and is persisted
// before any effect runs. Effects run after the lock is released.
type TriggerControllerImpl struct {
	sessionRepo secondary.SessionRepository
	phaseRepo   secondary.PhaseRepository
	events      secondary.EventLog
	executor    EffectExecutor
	scheduler   *RetryScheduler
	locks       *SessionLocks
	clock       clock.Clock
	log         *zap.Logger

	cfgMu      sync.RWMutex
	cfg        primary.ControllerConfig
	thresholds recovery.Thresholds
}

// NewTriggerController creates a new TriggerController with injected dependencies.
// The scheduler is bound to the controller's retry entry point.
func NewTriggerController(
	sessionRepo secondary.SessionRepository,
	phaseRepo secondary.PhaseRepository,
	events secondary.EventLog,
	executor EffectExecutor,
	scheduler *RetryScheduler,
	locks *SessionLocks,
	clk clock.Clock,
	cfg primary.ControllerConfig,
	thresholds recovery.Thresholds,
	log *zap.Logger,
) *TriggerControllerImpl {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DefaultMaxPhases <= 0 {
		cfg.DefaultMaxPhases = primary.DefaultControllerConfig().DefaultMaxPhases
	}
	c := &TriggerControllerImpl{
		sessionRepo: sessionRepo,
		phaseRepo:   phaseRepo,
		events:      events,
		executor:    executor,
		scheduler:   scheduler,
		locks:       locks,
		clock:       clk,
		log:         log.Named("controller"),
		cfg:         cfg,
		thresholds:  thresholds,
	}
	if scheduler != nil {
		scheduler.Bind(c.fireRetry)
	}
	return c
}

// Config returns the current controller settings.
func (c *TriggerControllerImpl) Config() primary.ControllerConfig {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

// UpdateConfig replaces the controller settings. Sessions in flight pick them up on their next step.
func (c *TriggerControllerImpl) UpdateConfig(cfg primary.ControllerConfig) {
	if cfg.DefaultMaxPhases <= 0 {
		cfg.DefaultMaxPhases = primary.DefaultControllerConfig().DefaultMaxPhases
	}
	c.cfgMu.Lock()
	c.cfg = cfg
	c.cfgMu.Unlock()
	c.log.Info("controller config updated",
		zap.Bool("auto_progress_steps", cfg.AutoProgressSteps),
		zap.Bool("auto_progress_phases", cfg.AutoProgressPhases),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("retry_delay", cfg.RetryDelay))
}

// CreateSession creates a PENDING session at phase 1 / THINK.
func (c *TriggerControllerImpl) CreateSession(ctx context.Context, req primary.CreateSessionRequest) (*primary.Session, error) {
	if req.Theme == "" {
		return nil, errors.New("theme is required")
	}
	maxPhases := req.MaxPhases
	if maxPhases == 0 {
		maxPhases = c.Config().DefaultMaxPhases
	}
	if maxPhases < 1 {
		return nil, fmt.Errorf("max phases must be at least 1, got %d", maxPhases)
	}

	now := secondary.FormatTime(c.clock.Now())
	record := &secondary.SessionRecord{
		ID:           uuid.NewString(),
		Theme:        req.Theme,
		Style:        req.Style,
		Platform:     req.Platform,
		MaxPhases:    maxPhases,
		Status:       string(session.InitialStatus()),
		CurrentPhase: 1,
		CurrentStep:  string(session.StepThink),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.sessionRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	c.audit(ctx, record.ID, secondary.EventSessionCreated, fmt.Sprintf("theme=%q phases=%d", req.Theme, maxPhases))
	c.log.Info("session created", zap.String("session_id", record.ID), zap.Int("max_phases", maxPhases))
	return recordToSession(record), nil
}

// StartSession moves a PENDING session into THINK of phase 1 and triggers that step.
func (c *TriggerControllerImpl) StartSession(ctx context.Context, sessionID string) (*primary.Session, error) {
	unlock := c.locks.Lock(sessionID)
	record, err := c.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		unlock()
		return nil, notFound(err, sessionID)
	}
	if err := session.CanStart(sessionID, session.Status(record.Status)).Error(); err != nil {
		unlock()
		return nil, err
	}

	plan := session.PlanStart(sessionID)
	record.Status = string(plan.Status)
	record.CurrentPhase = plan.Phase
	record.CurrentStep = string(plan.Step)
	record.UpdatedAt = secondary.FormatTime(c.clock.Now())
	if err := c.sessionRepo.Update(ctx, record); err != nil {
		unlock()
		return nil, err
	}
	unlock()

	effs := append([]effects.Effect{effects.AuditEffect{
		SessionID: sessionID,
		Event:     secondary.EventSessionStarted,
		Detail:    fmt.Sprintf("phases=%d", record.MaxPhases),
	}}, plan.Effects...)
	c.execute(ctx, sessionID, effs)
	return recordToSession(record), nil
}

// GetSession retrieves a session by ID.
func (c *TriggerControllerImpl) GetSession(ctx context.Context, sessionID string) (*primary.Session, error) {
	record, err := c.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, notFound(err, sessionID)
	}
	return recordToSession(record), nil
}

// ListSessions lists sessions with optional filters.
func (c *TriggerControllerImpl) ListSessions(ctx context.Context, filters primary.SessionFilters) ([]*primary.Session, error) {
	records, err := c.sessionRepo.List(ctx, secondary.SessionFilters{
		Status: filters.Status,
		Limit:  filters.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*primary.Session, len(records))
	for i, r := range records {
		sessions[i] = recordToSession(r)
	}
	return sessions, nil
}

// ListPhases returns the stored phases of a session.
func (c *TriggerControllerImpl) ListPhases(ctx context.Context, sessionID string) ([]*primary.Phase, error) {
	records, err := c.phaseRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phases: %w", err)
	}
	phases := make([]*primary.Phase, len(records))
	for i, r := range records {
		phases[i] = recordToPhase(r)
	}
	return phases, nil
}

// ListEvents returns the audit trail of a session.
func (c *TriggerControllerImpl) ListEvents(ctx context.Context, sessionID string, limit int) ([]*primary.SessionEvent, error) {
	if c.events == nil {
		return nil, nil
	}
	records, err := c.events.List(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	events := make([]*primary.SessionEvent, len(records))
	for i, r := range records {
		events[i] = &primary.SessionEvent{
			Actor:     r.Actor,
			Event:     r.Event,
			Detail:    r.Detail,
			CreatedAt: r.CreatedAt,
		}
	}
	return events, nil
}

// HandleStepResponse stores a step result and decides the next step or phase.
func (c *TriggerControllerImpl) HandleStepResponse(ctx context.Context, req primary.StepResponseRequest) (*primary.StepResponseResult, error) {
	step, err := session.ParseStep(req.Step)
	if err != nil {
		return nil, err
	}
	result, err := session.DecodeResult(step, req.Payload)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(req.SessionID)
	res, effs, err := c.storeStepResult(ctx, req.SessionID, req.Phase, result, req.Prompt, req.Tokens)
	unlock()
	if err != nil {
		return nil, err
	}

	c.execute(ctx, req.SessionID, effs)
	return res, nil
}

// storeStepResult persists result and the session's new position. The caller holds the session lock.
func (c *TriggerControllerImpl) storeStepResult(
	ctx context.Context,
	sessionID string,
	phase int,
	result session.Result,
	prompt string,
	tokens int,
) (*primary.StepResponseResult, []effects.Effect, error) {
	step := result.Step()

	// 1. Load and guard
	record, err := c.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, notFound(err, sessionID)
	}
	guard := session.CanAcceptStep(session.StepContext{
		SessionID: sessionID,
		Status:    session.Status(record.Status),
		Phase:     phase,
		MaxPhases: record.MaxPhases,
	})
	if err := guard.Error(); err != nil {
		return nil, nil, err
	}

	encoded, err := session.EncodeResult(result)
	if err != nil {
		return nil, nil, err
	}

	// 2. Plan the new position
	cfg := c.Config()
	plan := session.PlanStepCompletion(session.StepCompletionInput{
		SessionID:          sessionID,
		Phase:              phase,
		Step:               step,
		MaxPhases:          record.MaxPhases,
		AutoProgressSteps:  cfg.AutoProgressSteps,
		AutoProgressPhases: cfg.AutoProgressPhases,
	})
	res := &primary.StepResponseResult{
		PhaseCompleted:   plan.PhaseCompleted,
		SessionCompleted: plan.SessionCompleted,
	}
	for _, eff := range plan.Effects {
		if t, ok := eff.(effects.TriggerStepEffect); ok {
			res.NextStep = t.Step
		}
	}

	// 3. A replay of an already stored result is a no-op, even once the session has moved on
	existing, err := c.phaseRepo.Get(ctx, sessionID, phase)
	if err != nil && !errors.Is(err, secondary.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to load phase: %w", err)
	}
	if storedResult(existing, step) == encoded {
		c.log.Debug("step result already applied",
			zap.String("session_id", sessionID), zap.Int("phase", phase), zap.String("step", string(step)))
		res.Session = recordToSession(record)
		res.NextStep = ""
		return res, nil, nil
	}

	// 4. Persist the result, then the session position
	now := c.clock.Now()
	err = c.phaseRepo.UpsertStepResult(ctx, &secondary.StepResultRecord{
		SessionID:   sessionID,
		PhaseNumber: phase,
		Step:        string(step),
		Result:      encoded,
		Prompt:      prompt,
		Tokens:      tokens,
		PhaseStatus: phaseStatusFor(step),
		At:          secondary.FormatTime(now),
	})
	if err != nil {
		return nil, nil, err
	}

	record.CurrentPhase = plan.Phase
	record.CurrentStep = string(plan.Step)
	record.Status = string(plan.Status)
	record.LastError = ""
	record.NextRetryAt = ""
	if md, err := session.ParseMetadata(record.Metadata); err == nil && md.RetryModification != "" {
		md.RetryModification = ""
		if raw, err := md.Encode(); err == nil {
			record.Metadata = raw
		}
	}
	record.UpdatedAt = secondary.FormatTime(now)
	if err := c.sessionRepo.Update(ctx, record); err != nil {
		return nil, nil, err
	}

	// A fresh result supersedes any retry armed for an earlier failure.
	if c.scheduler != nil {
		c.scheduler.Cancel(sessionID)
	}

	event := secondary.EventStepStored
	if result.IsSkipped() {
		event = secondary.EventStepSkipped
	}
	effs := []effects.Effect{effects.AuditEffect{
		SessionID: sessionID,
		Event:     event,
		Detail:    fmt.Sprintf("phase=%d step=%s", phase, step),
	}}
	effs = append(effs, plan.Effects...)

	c.log.Info("step stored",
		zap.String("session_id", sessionID),
		zap.Int("phase", phase),
		zap.String("step", string(step)),
		zap.String("status", record.Status),
		zap.Bool("skipped", result.IsSkipped()))

	res.Session = recordToSession(record)
	return res, effs, nil
}

// HandleError records a failed step and arms a delayed retry while the budget allows.
// The returned error info is also durable on the session when this returns.
func (c *TriggerControllerImpl) HandleError(ctx context.Context, req primary.StepErrorRequest) (*primary.StepErrorResult, error) {
	if req.Err == nil {
		return nil, errors.New("error is required")
	}
	locale := req.Locale
	if locale == "" {
		locale = recovery.DefaultLocale
	}

	unlock := c.locks.Lock(req.SessionID)
	res, effs, err := c.recordStepError(ctx, req, locale)
	unlock()
	if err != nil {
		return nil, err
	}

	c.execute(ctx, req.SessionID, effs)
	return res, nil
}

func (c *TriggerControllerImpl) recordStepError(ctx context.Context, req primary.StepErrorRequest, locale string) (*primary.StepErrorResult, []effects.Effect, error) {
	// 1. Load and guard
	record, err := c.sessionRepo.GetByID(ctx, req.SessionID)
	if err != nil {
		return nil, nil, notFound(err, req.SessionID)
	}
	if guard := session.CanTransition(session.Status(record.Status), session.StatusFailed); !guard.Allowed {
		return nil, nil, guard.Error()
	}

	phase := req.Phase
	if phase == 0 {
		phase = record.CurrentPhase
	}
	stepName := req.Step
	if stepName == "" {
		stepName = record.CurrentStep
	}
	step, err := session.ParseStep(stepName)
	if err != nil {
		return nil, nil, err
	}

	// 2. Classify and plan the recovery
	now := c.clock.Now()
	info := recovery.Classify(req.Err.Error(), locale)
	history, err := pushError(record, info, phase, string(step), now)
	if err != nil {
		return nil, nil, err
	}
	strategy := recovery.DetermineStrategy(info, &history, record.RetryCount, c.thresholds)

	cfg := c.Config()
	plan := session.PlanErrorRetry(session.ErrorPlanInput{
		SessionID:    req.SessionID,
		RetryCount:   record.RetryCount,
		MaxRetries:   cfg.MaxRetries,
		BaseDelay:    cfg.RetryDelay,
		StrategyWait: strategy.WaitTime,
		Abort:        strategy.Action == recovery.ActionAbort || strategy.Action == recovery.ActionSkipStep,
	})

	// 3. Persist FAILED with diagnostics before anything else happens
	record.Status = string(session.StatusFailed)
	record.CurrentPhase = phase
	record.CurrentStep = string(step)
	record.LastError = info.TechnicalDetails
	record.NextRetryAt = ""
	if plan.ScheduleRetry {
		record.NextRetryAt = secondary.FormatTime(now.Add(plan.Delay))
	}
	if strategy.Action == recovery.ActionRetryWithModification {
		md, err := session.ParseMetadata(record.Metadata)
		if err != nil {
			md = session.Metadata{}
		}
		md.RetryModification = strategy.Modification
		raw, err := md.Encode()
		if err != nil {
			return nil, nil, err
		}
		record.Metadata = raw
	}
	record.UpdatedAt = secondary.FormatTime(now)
	if err := c.sessionRepo.Update(ctx, record); err != nil {
		return nil, nil, err
	}

	res := &primary.StepErrorResult{
		Error:          info,
		Strategy:       strategy,
		RetryScheduled: plan.ScheduleRetry,
		RetryAt:        record.NextRetryAt,
	}
	effs := []effects.Effect{effects.AuditEffect{
		SessionID: req.SessionID,
		Event:     secondary.EventErrorRecorded,
		Detail:    fmt.Sprintf("phase=%d step=%s type=%s action=%s", phase, step, info.Type, strategy.Action),
	}}

	c.log.Warn("step failed",
		zap.String("session_id", req.SessionID),
		zap.Int("phase", phase),
		zap.String("step", string(step)),
		zap.String("type", string(info.Type)),
		zap.String("action", string(strategy.Action)),
		zap.Int("retry_count", record.RetryCount))

	// 4. Skip: store a placeholder result and progress as a normal completion
	if strategy.Action == recovery.ActionSkipStep {
		_, stepEffs, err := c.storeStepResult(ctx, req.SessionID, phase, session.SkippedResult(step), "", 0)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to skip %s: %w", step, err)
		}
		res.Skipped = true
		return res, append(effs, stepEffs...), nil
	}

	if plan.ScheduleRetry {
		effs = append(effs, effects.AuditEffect{
			SessionID: req.SessionID,
			Event:     secondary.EventRetryScheduled,
			Detail:    fmt.Sprintf("at=%s delay=%s", record.NextRetryAt, plan.Delay),
		})
	}
	return res, append(effs, plan.Effects...), nil
}

// RetryFromLastSuccessfulPoint resumes a session at its first missing result.
func (c *TriggerControllerImpl) RetryFromLastSuccessfulPoint(ctx context.Context, sessionID string) (*primary.RetryResult, error) {
	unlock := c.locks.Lock(sessionID)
	res, effs, err := c.retry(ctx, sessionID, false)
	unlock()
	if err != nil {
		return nil, err
	}
	c.execute(ctx, sessionID, effs)
	return res, nil
}

// retry moves a session back to PENDING at its resume point. With onlyScheduled set
// it does nothing unless the session is still FAILED with a retry armed, which keeps
// a late timer from overriding a newer update.
func (c *TriggerControllerImpl) retry(ctx context.Context, sessionID string, onlyScheduled bool) (*primary.RetryResult, []effects.Effect, error) {
	record, err := c.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, notFound(err, sessionID)
	}
	if onlyScheduled && (record.Status != string(session.StatusFailed) || record.NextRetryAt == "") {
		return nil, nil, nil
	}
	if session.IsTerminal(session.Status(record.Status)) {
		return nil, nil, fmt.Errorf("session %s is already completed", sessionID)
	}
	// Only a failed session may restart; an active one still owns its step or queue items.
	if err := session.CanTransition(session.Status(record.Status), session.StatusPending).Error(); err != nil {
		return nil, nil, fmt.Errorf("cannot retry session %s: %w", sessionID, err)
	}

	phases, err := c.phaseRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list phases: %w", err)
	}
	pos := session.FindResumePoint(phaseProgress(phases), record.MaxPhases)
	plan := session.PlanRetry(sessionID, record.RetryCount, pos)

	record.RetryCount = plan.RetryCount
	record.LastError = ""
	record.NextRetryAt = ""
	record.Status = string(plan.Status)
	record.CurrentPhase = plan.Phase
	record.CurrentStep = string(plan.Step)
	record.UpdatedAt = secondary.FormatTime(c.clock.Now())
	if err := c.sessionRepo.Update(ctx, record); err != nil {
		return nil, nil, err
	}
	if c.scheduler != nil && !onlyScheduled {
		c.scheduler.Cancel(sessionID)
	}

	event := secondary.EventRetryFired
	if pos.Complete {
		event = secondary.EventSessionCompleted
	}
	effs := []effects.Effect{effects.AuditEffect{
		SessionID: sessionID,
		Event:     event,
		Detail:    fmt.Sprintf("resume phase=%d step=%s retry=%d", plan.Phase, plan.Step, plan.RetryCount),
	}}
	effs = append(effs, plan.Effects...)

	c.log.Info("session retried",
		zap.String("session_id", sessionID),
		zap.Int("phase", plan.Phase),
		zap.String("step", string(plan.Step)),
		zap.Int("retry_count", plan.RetryCount))

	return &primary.RetryResult{
		Session:     recordToSession(record),
		ResumePhase: plan.Phase,
		ResumeStep:  string(plan.Step),
		Completed:   pos.Complete,
	}, effs, nil
}

// fireRetry is the RetryScheduler callback.
func (c *TriggerControllerImpl) fireRetry(sessionID string) {
	ctx := ctxutil.WithActorID(context.Background(), RetryTimerActor)

	unlock := c.locks.Lock(sessionID)
	res, effs, err := c.retry(ctx, sessionID, true)
	unlock()
	if err != nil {
		c.log.Error("scheduled retry failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if res == nil {
		c.log.Debug("scheduled retry no longer needed", zap.String("session_id", sessionID))
		return
	}
	c.execute(ctx, sessionID, effs)
}

// ManualProgressToNextPhase moves a session to THINK of its next phase.
func (c *TriggerControllerImpl) ManualProgressToNextPhase(ctx context.Context, sessionID string) (*primary.Session, error) {
	unlock := c.locks.Lock(sessionID)
	record, err := c.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		unlock()
		return nil, notFound(err, sessionID)
	}
	guard := session.CanAdvancePhase(session.AdvanceContext{
		SessionID:    sessionID,
		Status:       session.Status(record.Status),
		CurrentPhase: record.CurrentPhase,
		MaxPhases:    record.MaxPhases,
	})
	if err := guard.Error(); err != nil {
		unlock()
		return nil, err
	}

	plan := session.PlanManualAdvance(sessionID, record.CurrentPhase)
	record.CurrentPhase = plan.Phase
	record.CurrentStep = string(plan.Step)
	record.Status = string(plan.Status)
	record.LastError = ""
	record.NextRetryAt = ""
	record.UpdatedAt = secondary.FormatTime(c.clock.Now())
	if err := c.sessionRepo.Update(ctx, record); err != nil {
		unlock()
		return nil, err
	}
	if c.scheduler != nil {
		c.scheduler.Cancel(sessionID)
	}
	unlock()

	effs := append([]effects.Effect{effects.AuditEffect{
		SessionID: sessionID,
		Event:     secondary.EventManualAdvance,
		Detail:    fmt.Sprintf("phase=%d", plan.Phase),
	}}, plan.Effects...)
	c.execute(ctx, sessionID, effs)
	return recordToSession(record), nil
}

// RecoverScheduledRetries re-arms retry timers persisted before a restart.
func (c *TriggerControllerImpl) RecoverScheduledRetries(ctx context.Context) (int, error) {
	if c.scheduler == nil {
		return 0, nil
	}
	records, err := c.sessionRepo.ListScheduledRetries(ctx)
	if err != nil {
		return 0, err
	}

	now := c.clock.Now()
	armed := 0
	for _, r := range records {
		at, err := secondary.ParseTime(r.NextRetryAt)
		if err != nil {
			c.log.Warn("skipping unparseable retry time",
				zap.String("session_id", r.ID), zap.String("next_retry_at", r.NextRetryAt))
			continue
		}
		delay := at.Sub(now)
		if delay < 0 {
			delay = 0
		}
		c.scheduler.Schedule(r.ID, delay)
		armed++
	}
	if armed > 0 {
		c.log.Info("recovered scheduled retries", zap.Int("count", armed))
	}
	return armed, nil
}

// execute runs effects after the session lock is released. A step that cannot be
// triggered is recorded through HandleError so the session fails and a retry is armed.
func (c *TriggerControllerImpl) execute(ctx context.Context, sessionID string, effs []effects.Effect) {
	if len(effs) == 0 || c.executor == nil {
		return
	}
	var (
		rest     []effects.Effect
		triggers []effects.TriggerStepEffect
	)
	for _, eff := range effs {
		if t, ok := eff.(effects.TriggerStepEffect); ok {
			triggers = append(triggers, t)
			continue
		}
		rest = append(rest, eff)
	}
	if err := c.executor.Execute(ctx, rest); err != nil {
		c.log.Warn("effects failed after state was persisted",
			zap.String("session_id", sessionID), zap.Error(err))
	}

	for _, t := range triggers {
		err := c.executor.Execute(ctx, []effects.Effect{t})
		if err == nil {
			continue
		}
		c.log.Error("failed to trigger step",
			zap.String("session_id", t.SessionID), zap.Int("phase", t.Phase),
			zap.String("step", t.Step), zap.Error(err))
		if _, herr := c.HandleError(ctx, primary.StepErrorRequest{
			SessionID: t.SessionID,
			Phase:     t.Phase,
			Step:      t.Step,
			Err:       err,
		}); herr != nil {
			c.log.Error("failed to record trigger failure",
				zap.String("session_id", t.SessionID), zap.Error(herr))
		}
	}
}

func (c *TriggerControllerImpl) audit(ctx context.Context, sessionID, event, detail string) {
	c.execute(ctx, sessionID, []effects.Effect{effects.AuditEffect{
		SessionID: sessionID,
		Event:     event,
		Detail:    detail,
	}})
}

// Ensure TriggerControllerImpl implements the interface
var _ primary.TriggerController = (*TriggerControllerImpl)(nil)
