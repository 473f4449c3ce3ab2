package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/cotflow/internal/core/recovery"
	"github.com/example/cotflow/internal/core/session"
	"github.com/example/cotflow/internal/ports/primary"
	"github.com/example/cotflow/internal/ports/secondary"
)

// notFound maps a repository miss to the port's sentinel.
func notFound(err error, sessionID string) error {
	if errors.Is(err, secondary.ErrNotFound) {
		return fmt.Errorf("%w: %s", primary.ErrSessionNotFound, sessionID)
	}
	return err
}

func recordToSession(r *secondary.SessionRecord) *primary.Session {
	s := &primary.Session{
		ID:           r.ID,
		Theme:        r.Theme,
		Style:        r.Style,
		Platform:     r.Platform,
		MaxPhases:    r.MaxPhases,
		Status:       r.Status,
		CurrentPhase: r.CurrentPhase,
		CurrentStep:  r.CurrentStep,
		RetryCount:   r.RetryCount,
		LastError:    r.LastError,
		NextRetryAt:  r.NextRetryAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if h, err := recovery.ParseHistory(r.ErrorHistory); err == nil {
		s.ErrorHistory = h.Entries()
	}
	if md, err := session.ParseMetadata(r.Metadata); err == nil {
		s.Metadata = md
	}
	return s
}

func recordToPhase(r *secondary.PhaseRecord) *primary.Phase {
	return &primary.Phase{
		SessionID:       r.SessionID,
		PhaseNumber:     r.PhaseNumber,
		Status:          r.Status,
		ThinkResult:     r.ThinkResult,
		ExecuteResult:   r.ExecuteResult,
		IntegrateResult: r.IntegrateResult,
		UpdatedAt:       r.UpdatedAt,
	}
}

func phaseProgress(records []*secondary.PhaseRecord) []session.PhaseProgress {
	out := make([]session.PhaseProgress, 0, len(records))
	for _, r := range records {
		out = append(out, session.PhaseProgress{
			Number:       r.PhaseNumber,
			HasThink:     r.ThinkResult != "",
			HasExecute:   r.ExecuteResult != "",
			HasIntegrate: r.IntegrateResult != "",
		})
	}
	return out
}

// storedResult returns the raw result column of step.
func storedResult(r *secondary.PhaseRecord, step session.Step) string {
	if r == nil {
		return ""
	}
	switch step {
	case session.StepThink:
		return r.ThinkResult
	case session.StepExecute:
		return r.ExecuteResult
	case session.StepIntegrate:
		return r.IntegrateResult
	}
	return ""
}

// phaseStatusFor is the phase row status written together with a step result.
func phaseStatusFor(step session.Step) string {
	if step == session.StepIntegrate {
		return "completed"
	}
	return "in_progress"
}

// pushError appends a classified failure to the record's history column.
// A corrupt history column is replaced rather than blocking the write.
func pushError(r *secondary.SessionRecord, info recovery.ErrorInfo, phase int, step string, now time.Time) (recovery.ErrorHistory, error) {
	history, err := recovery.ParseHistory(r.ErrorHistory)
	if err != nil {
		history = recovery.ErrorHistory{}
	}
	history.Push(recovery.HistoryEntry{
		Timestamp: now,
		Type:      info.Type,
		Message:   info.TechnicalDetails,
		Phase:     phase,
		Step:      step,
		Retryable: info.Retryable,
	})
	raw, encErr := history.MarshalJSON()
	if encErr != nil {
		return history, fmt.Errorf("failed to encode error history: %w", encErr)
	}
	r.ErrorHistory = string(raw)
	return history, nil
}
