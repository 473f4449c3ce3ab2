package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/cotflow/internal/clock"
	"github.com/example/cotflow/internal/core/recovery"
	"github.com/example/cotflow/internal/core/session"
	"github.com/example/cotflow/internal/ports/primary"
	"github.com/example/cotflow/internal/ports/secondary"
)

// RecoveryServiceImpl implements the RecoveryService interface.
type RecoveryServiceImpl struct {
	sessionRepo secondary.SessionRepository
	phaseRepo   secondary.PhaseRepository
	events      secondary.EventLog
	locks       *SessionLocks
	clock       clock.Clock
	thresholds  recovery.Thresholds
	log         *zap.Logger
}

// NewRecoveryService creates a new RecoveryService with injected dependencies.
func NewRecoveryService(
	sessionRepo secondary.SessionRepository,
	phaseRepo secondary.PhaseRepository,
	events secondary.EventLog,
	locks *SessionLocks,
	clk clock.Clock,
	thresholds recovery.Thresholds,
	log *zap.Logger,
) *RecoveryServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &RecoveryServiceImpl{
		sessionRepo: sessionRepo,
		phaseRepo:   phaseRepo,
		events:      events,
		locks:       locks,
		clock:       clk,
		thresholds:  thresholds,
		log:         log.Named("recovery"),
	}
}

// ClassifyError diagnoses a raw error in the given locale.
func (s *RecoveryServiceImpl) ClassifyError(err error, locale string) recovery.ErrorInfo {
	if err == nil {
		return recovery.Classify("", locale)
	}
	return recovery.Classify(err.Error(), locale)
}

// RecordSessionError appends to the history, fails the session and bumps retry_count.
// next_retry_at is set from the error's own retry-after hint when it carries one.
func (s *RecoveryServiceImpl) RecordSessionError(ctx context.Context, req primary.RecordErrorRequest) (*primary.Session, error) {
	unlock := s.locks.Lock(req.SessionID)
	defer unlock()

	record, err := s.sessionRepo.GetByID(ctx, req.SessionID)
	if err != nil {
		return nil, notFound(err, req.SessionID)
	}
	if guard := session.CanTransition(session.Status(record.Status), session.StatusFailed); !guard.Allowed {
		return nil, guard.Error()
	}

	phase := req.Phase
	if phase == 0 {
		phase = record.CurrentPhase
	}
	step := req.Step
	if step == "" {
		step = record.CurrentStep
	}

	now := s.clock.Now()
	if _, err := pushError(record, req.Info, phase, step, now); err != nil {
		return nil, err
	}
	record.Status = string(session.StatusFailed)
	record.RetryCount++
	record.LastError = req.Info.TechnicalDetails
	record.NextRetryAt = ""
	if req.Info.RetryAfterSeconds > 0 {
		record.NextRetryAt = secondary.FormatTime(now.Add(time.Duration(req.Info.RetryAfterSeconds) * time.Second))
	}
	record.UpdatedAt = secondary.FormatTime(now)
	if err := s.sessionRepo.Update(ctx, record); err != nil {
		return nil, err
	}

	if s.events != nil {
		detail := fmt.Sprintf("phase=%d step=%s type=%s", phase, step, req.Info.Type)
		if err := s.events.Append(ctx, req.SessionID, secondary.EventErrorRecorded, detail); err != nil {
			s.log.Warn("failed to audit recorded error", zap.String("session_id", req.SessionID), zap.Error(err))
		}
	}
	s.log.Info("session error recorded",
		zap.String("session_id", req.SessionID),
		zap.String("type", string(req.Info.Type)),
		zap.Int("retry_count", record.RetryCount))

	return recordToSession(record), nil
}

// DetermineRecoveryStrategy plans a recovery from the session's history.
// The history is expected to already hold info.
func (s *RecoveryServiceImpl) DetermineRecoveryStrategy(ctx context.Context, sessionID string, info recovery.ErrorInfo) (*recovery.Strategy, error) {
	record, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, notFound(err, sessionID)
	}
	history, err := recovery.ParseHistory(record.ErrorHistory)
	if err != nil {
		s.log.Warn("ignoring unreadable error history", zap.String("session_id", sessionID), zap.Error(err))
		history = recovery.ErrorHistory{}
	}
	strategy := recovery.DetermineStrategy(info, &history, record.RetryCount, s.thresholds)
	return &strategy, nil
}

// CheckSessionHealth reports stalls, retry storms and skipped phases.
func (s *RecoveryServiceImpl) CheckSessionHealth(ctx context.Context, sessionID string) (*session.HealthReport, error) {
	record, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, notFound(err, sessionID)
	}
	phases, err := s.phaseRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phases: %w", err)
	}
	updatedAt, err := secondary.ParseTime(record.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid updated_at on session %s: %w", sessionID, err)
	}

	completed := 0
	for _, p := range phaseProgress(phases) {
		if p.Complete() {
			completed++
		}
	}

	report := session.CheckHealth(session.HealthInput{
		Status:          session.Status(record.Status),
		RetryCount:      record.RetryCount,
		UpdatedAt:       updatedAt,
		Now:             s.clock.Now(),
		CurrentPhase:    record.CurrentPhase,
		CompletedPhases: completed,
	})
	return &report, nil
}

// Ensure RecoveryServiceImpl implements the interface
var _ primary.RecoveryService = (*RecoveryServiceImpl)(nil)
