// Package session contains the pure business logic for CoT session progression.
// This file contains pure planner functions that generate effects.
package session

import (
	"fmt"
	"time"

	"github.com/example/cotflow/internal/core/effects"
)

// StepCompletionInput contains everything needed to plan what follows a stored step result.
// All values are pre-fetched by the caller - no I/O in the planner.
type StepCompletionInput struct {
	SessionID          string
	Phase              int
	Step               Step
	MaxPhases          int
	AutoProgressSteps  bool
	AutoProgressPhases bool
}

// StepCompletionPlan is the new session position plus the effects to run once it is persisted.
type StepCompletionPlan struct {
	Phase            int
	Step             Step
	Status           Status
	PhaseCompleted   bool
	SessionCompleted bool
	Effects          []effects.Effect
}

// PlanStepCompletion decides the session position after a step result was stored.
//
// THINK and EXECUTE move to the next step when auto progression is on; otherwise the
// session rests on the submitted step. INTEGRATE closes the phase: the last phase
// completes the session, earlier phases either advance (auto phases) or stop at a
// human checkpoint with a phase-completed notification.
func PlanStepCompletion(input StepCompletionInput) StepCompletionPlan {
	plan := StepCompletionPlan{
		Phase:  input.Phase,
		Step:   input.Step,
		Status: StatusForStep(input.Step),
	}

	// 1. Intra-phase progression
	if next, ok := NextStep(input.Step); ok {
		if !input.AutoProgressSteps {
			return plan
		}
		plan.Step = next
		plan.Status = StatusForStep(next)
		plan.Effects = append(plan.Effects, effects.TriggerStepEffect{
			SessionID: input.SessionID,
			Phase:     input.Phase,
			Step:      string(next),
		})
		return plan
	}

	// 2. Phase completed
	plan.PhaseCompleted = true
	if input.Phase >= input.MaxPhases {
		plan.SessionCompleted = true
		plan.Status = StatusCompleted
		plan.Effects = append(plan.Effects, effects.NotifyEffect{
			Event:     effects.EventSessionCompleted,
			SessionID: input.SessionID,
			Phase:     input.Phase,
			Message:   fmt.Sprintf("session completed after %d phases", input.MaxPhases),
		})
		return plan
	}

	// 3. Advance or stop at the phase checkpoint
	if input.AutoProgressPhases {
		plan.Phase = input.Phase + 1
		plan.Step = StepThink
		plan.Status = StatusThinking
		plan.Effects = append(plan.Effects, effects.TriggerStepEffect{
			SessionID: input.SessionID,
			Phase:     plan.Phase,
			Step:      string(StepThink),
		})
		return plan
	}

	plan.Effects = append(plan.Effects, effects.NotifyEffect{
		Event:     effects.EventPhaseCompleted,
		SessionID: input.SessionID,
		Phase:     input.Phase,
		Message:   fmt.Sprintf("phase %d/%d completed; waiting for manual progression", input.Phase, input.MaxPhases),
	})
	return plan
}

// AdvancePlan is the result of a manual phase advance.
type AdvancePlan struct {
	Phase   int
	Step    Step
	Status  Status
	Effects []effects.Effect
}

// PlanManualAdvance moves a session to the THINK step of its next phase.
// The caller must have checked CanAdvancePhase.
func PlanManualAdvance(sessionID string, currentPhase int) AdvancePlan {
	next := currentPhase + 1
	return AdvancePlan{
		Phase:  next,
		Step:   StepThink,
		Status: StatusThinking,
		Effects: []effects.Effect{
			effects.TriggerStepEffect{SessionID: sessionID, Phase: next, Step: string(StepThink)},
		},
	}
}

// PlanStart moves a PENDING session into THINK of phase 1.
// The caller must have checked CanStart.
func PlanStart(sessionID string) AdvancePlan {
	return AdvancePlan{
		Phase:  1,
		Step:   StepThink,
		Status: StatusThinking,
		Effects: []effects.Effect{
			effects.TriggerStepEffect{SessionID: sessionID, Phase: 1, Step: string(StepThink)},
		},
	}
}

// PhaseProgress records which step results a stored phase holds.
type PhaseProgress struct {
	Number       int
	HasThink     bool
	HasExecute   bool
	HasIntegrate bool
}

// Complete reports whether the phase has been integrated.
func (p PhaseProgress) Complete() bool {
	return p.HasIntegrate
}

// ResumePosition is where a session continues after a retry.
type ResumePosition struct {
	Phase    int
	Step     Step
	Complete bool // every phase is already integrated
}

// FindResumePoint scans phases 1..maxPhases in ascending order and returns the first
// phase/step whose required result is missing. Integrated phases are skipped.
func FindResumePoint(phases []PhaseProgress, maxPhases int) ResumePosition {
	byNumber := make(map[int]PhaseProgress, len(phases))
	for _, p := range phases {
		byNumber[p.Number] = p
	}

	for n := 1; n <= maxPhases; n++ {
		p, ok := byNumber[n]
		switch {
		case !ok:
			return ResumePosition{Phase: n, Step: StepThink}
		case p.HasIntegrate:
			continue
		case p.HasExecute:
			return ResumePosition{Phase: n, Step: StepIntegrate}
		case p.HasThink:
			return ResumePosition{Phase: n, Step: StepExecute}
		default:
			return ResumePosition{Phase: n, Step: StepThink}
		}
	}
	return ResumePosition{Phase: maxPhases, Step: StepIntegrate, Complete: true}
}

// RetryPlan is the result of planning a retry from the last durable checkpoint.
type RetryPlan struct {
	Phase      int
	Step       Step
	Status     Status
	RetryCount int
	Effects    []effects.Effect
}

// PlanRetry increments the retry counter and resumes at pos.
func PlanRetry(sessionID string, retryCount int, pos ResumePosition) RetryPlan {
	plan := RetryPlan{
		Phase:      pos.Phase,
		Step:       pos.Step,
		Status:     StatusPending,
		RetryCount: retryCount + 1,
	}
	if pos.Complete {
		plan.Status = StatusCompleted
		plan.Effects = append(plan.Effects, effects.NotifyEffect{
			Event:     effects.EventSessionCompleted,
			SessionID: sessionID,
			Phase:     pos.Phase,
			Message:   "session completed on retry; every phase was already integrated",
		})
		return plan
	}
	plan.Effects = append(plan.Effects, effects.TriggerStepEffect{
		SessionID: sessionID,
		Phase:     pos.Phase,
		Step:      string(pos.Step),
	})
	return plan
}

// ErrorPlanInput carries the values needed to decide whether a failed step is retried.
type ErrorPlanInput struct {
	SessionID    string
	RetryCount   int
	MaxRetries   int
	BaseDelay    time.Duration
	StrategyWait time.Duration
	Abort        bool
}

// ErrorPlan tells the shell whether to arm a delayed retry.
type ErrorPlan struct {
	ScheduleRetry bool
	Delay         time.Duration
	Effects       []effects.Effect
}

// PlanErrorRetry applies linear backoff: BaseDelay × (RetryCount+1), raised to the
// recovery strategy's wait when that is longer. Nothing is scheduled once the retry
// budget is spent or the strategy aborts.
func PlanErrorRetry(input ErrorPlanInput) ErrorPlan {
	if input.Abort || input.RetryCount >= input.MaxRetries {
		return ErrorPlan{
			Effects: []effects.Effect{effects.LogEffect{
				Level:   "warn",
				Message: "retry budget exhausted",
				Fields: map[string]any{
					"session_id":  input.SessionID,
					"retry_count": input.RetryCount,
					"max_retries": input.MaxRetries,
					"abort":       input.Abort,
				},
			}},
		}
	}

	delay := input.BaseDelay * time.Duration(input.RetryCount+1)
	if input.StrategyWait > delay {
		delay = input.StrategyWait
	}
	return ErrorPlan{
		ScheduleRetry: true,
		Delay:         delay,
		Effects: []effects.Effect{
			effects.ScheduleRetryEffect{SessionID: input.SessionID, Delay: delay},
		},
	}
}
