package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/example/cotflow/internal/clock"
	"github.com/example/cotflow/internal/core/recovery"
	"github.com/example/cotflow/internal/ports/primary"
	"github.com/example/cotflow/internal/ports/secondary"
)

type controllerFixture struct {
	clock     *clock.Fake
	sessions  *mockSessionRepository
	phases    *mockPhaseRepository
	events    *mockEventLog
	trigger   *mockTrigger
	notifier  *mockNotifier
	scheduler *RetryScheduler
	locks     *SessionLocks
	ctrl      *TriggerControllerImpl
}

func newControllerFixture(t *testing.T, cfg primary.ControllerConfig) *controllerFixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	f := &controllerFixture{
		clock:    clock.NewFake(testStart),
		sessions: newMockSessionRepository(),
		phases:   newMockPhaseRepository(),
		events:   newMockEventLog(),
		trigger:  &mockTrigger{},
		notifier: &mockNotifier{},
		locks:    NewSessionLocks(),
	}
	f.scheduler = NewRetryScheduler(f.clock, log)
	executor := NewEffectExecutor(f.trigger, f.notifier, f.events, f.scheduler, log)
	f.ctrl = NewTriggerController(f.sessions, f.phases, f.events, executor, f.scheduler,
		f.locks, f.clock, cfg, recovery.DefaultThresholds(), log)
	t.Cleanup(f.scheduler.Stop)
	return f
}

func (f *controllerFixture) create(t *testing.T, maxPhases int) string {
	t.Helper()
	s, err := f.ctrl.CreateSession(context.Background(), primary.CreateSessionRequest{Theme: "urban gardening", MaxPhases: maxPhases})
	require.NoError(t, err)
	return s.ID
}

func (f *controllerFixture) submit(t *testing.T, id string, phase int, step, payload string) *primary.StepResponseResult {
	t.Helper()
	res, err := f.ctrl.HandleStepResponse(context.Background(), primary.StepResponseRequest{
		SessionID: id, Phase: phase, Step: step, Payload: payload,
	})
	require.NoError(t, err)
	return res
}

func (f *controllerFixture) fail(t *testing.T, id string, phase int, step, msg string) *primary.StepErrorResult {
	t.Helper()
	res, err := f.ctrl.HandleError(context.Background(), primary.StepErrorRequest{
		SessionID: id, Phase: phase, Step: step, Err: errors.New(msg),
	})
	require.NoError(t, err)
	return res
}

func at(d time.Duration) string {
	return secondary.FormatTime(testStart.Add(d))
}

func TestCreateSession(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	ctx := context.Background()

	s, err := f.ctrl.CreateSession(ctx, primary.CreateSessionRequest{Theme: "tea", Style: "casual"})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", s.Status)
	assert.Equal(t, 1, s.CurrentPhase)
	assert.Equal(t, "THINK", s.CurrentStep)
	assert.Equal(t, 4, s.MaxPhases)
	assert.Equal(t, 1, f.events.count(s.ID, secondary.EventSessionCreated))

	_, err = f.ctrl.CreateSession(ctx, primary.CreateSessionRequest{})
	assert.Error(t, err)
	_, err = f.ctrl.CreateSession(ctx, primary.CreateSessionRequest{Theme: "x", MaxPhases: -1})
	assert.Error(t, err)
}

func TestStartSession(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	ctx := context.Background()
	id := f.create(t, 2)

	s, err := f.ctrl.StartSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "THINKING", s.Status)
	assert.Equal(t, []triggerCall{{SessionID: id, Phase: 1, Step: "THINK"}}, f.trigger.triggered())
	assert.Equal(t, 1, f.events.count(id, secondary.EventSessionStarted))

	_, err = f.ctrl.StartSession(ctx, id)
	assert.ErrorContains(t, err, "must be PENDING")
	assert.Len(t, f.trigger.triggered(), 1)

	_, err = f.ctrl.StartSession(ctx, "missing")
	assert.ErrorIs(t, err, primary.ErrSessionNotFound)
}

func TestHandleStepResponse_AutoProgressesSteps(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	id := f.create(t, 2)

	res := f.submit(t, id, 1, "THINK", "Outline\nQUERY: compost basics")
	assert.Equal(t, "EXECUTE", res.NextStep)
	assert.False(t, res.PhaseCompleted)

	s := f.sessions.get(t, id)
	assert.Equal(t, "EXECUTING", s.Status)
	assert.Equal(t, "EXECUTE", s.CurrentStep)

	want := []triggerCall{{SessionID: id, Phase: 1, Step: "EXECUTE"}}
	if diff := cmp.Diff(want, f.trigger.triggered()); diff != "" {
		t.Errorf("triggered steps mismatch (-want +got):\n%s", diff)
	}

	p, err := f.phases.Get(context.Background(), id, 1)
	require.NoError(t, err)
	assert.Contains(t, p.ThinkResult, "compost basics")
	assert.Equal(t, "in_progress", p.Status)
}

func TestHandleStepResponse_ManualStepsRestOnSubmittedStep(t *testing.T) {
	cfg := primary.DefaultControllerConfig()
	cfg.AutoProgressSteps = false
	f := newControllerFixture(t, cfg)
	id := f.create(t, 1)

	res := f.submit(t, id, 1, "THINK", "plan")
	assert.Empty(t, res.NextStep)
	s := f.sessions.get(t, id)
	assert.Equal(t, "THINKING", s.Status)
	assert.Equal(t, "THINK", s.CurrentStep)
	assert.Empty(t, f.trigger.triggered())
}

func TestHandleStepResponse_LastIntegrateCompletesSession(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	id := f.create(t, 1)

	f.submit(t, id, 1, "THINK", "plan")
	f.submit(t, id, 1, "EXECUTE", `{"findings":[{"query":"q","content":"c"}]}`)
	res := f.submit(t, id, 1, "INTEGRATE", "final output")

	assert.True(t, res.PhaseCompleted)
	assert.True(t, res.SessionCompleted)
	assert.Equal(t, "COMPLETED", f.sessions.get(t, id).Status)
	assert.Equal(t, []string{"session_completed"}, f.notifier.notified())

	p, err := f.phases.Get(context.Background(), id, 1)
	require.NoError(t, err)
	assert.Equal(t, "completed", p.Status)

	_, err = f.ctrl.HandleStepResponse(context.Background(), primary.StepResponseRequest{
		SessionID: id, Phase: 1, Step: "INTEGRATE", Payload: "again",
	})
	assert.Error(t, err)
}

func TestHandleStepResponse_PhaseCheckpointAndManualAdvance(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	id := f.create(t, 2)

	f.submit(t, id, 1, "THINK", "plan")
	f.submit(t, id, 1, "EXECUTE", "notes")
	res := f.submit(t, id, 1, "INTEGRATE", "phase one")

	assert.True(t, res.PhaseCompleted)
	assert.False(t, res.SessionCompleted)
	assert.Empty(t, res.NextStep)
	assert.Equal(t, "INTEGRATING", f.sessions.get(t, id).Status)
	assert.Equal(t, []string{"phase_completed"}, f.notifier.notified())

	s, err := f.ctrl.ManualProgressToNextPhase(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CurrentPhase)
	assert.Equal(t, "THINK", s.CurrentStep)
	assert.Equal(t, "THINKING", s.Status)

	calls := f.trigger.triggered()
	assert.Equal(t, triggerCall{SessionID: id, Phase: 2, Step: "THINK"}, calls[len(calls)-1])

	_, err = f.ctrl.ManualProgressToNextPhase(context.Background(), id)
	assert.Error(t, err, "already at the last phase")
}

func TestHandleStepResponse_AutoPhases(t *testing.T) {
	cfg := primary.DefaultControllerConfig()
	cfg.AutoProgressPhases = true
	f := newControllerFixture(t, cfg)
	id := f.create(t, 2)

	f.submit(t, id, 1, "THINK", "plan")
	f.submit(t, id, 1, "EXECUTE", "notes")
	res := f.submit(t, id, 1, "INTEGRATE", "phase one")

	assert.Equal(t, "THINK", res.NextStep)
	s := f.sessions.get(t, id)
	assert.Equal(t, 2, s.CurrentPhase)
	assert.Equal(t, "THINKING", s.Status)
}

func TestHandleStepResponse_ReplayIsIdempotent(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	id := f.create(t, 2)

	f.submit(t, id, 1, "THINK", "plan\nQUERY: a")
	before := f.sessions.get(t, id)

	res := f.submit(t, id, 1, "THINK", "plan\nQUERY: a")
	assert.Empty(t, res.NextStep)
	assert.Equal(t, before, f.sessions.get(t, id))
	assert.Len(t, f.trigger.triggered(), 1)
	assert.Equal(t, 1, f.events.count(id, secondary.EventStepStored))
}

func TestHandleStepResponse_Rejects(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	id := f.create(t, 2)
	ctx := context.Background()

	tests := []struct {
		name string
		req  primary.StepResponseRequest
	}{
		{"phase out of range", primary.StepResponseRequest{SessionID: id, Phase: 3, Step: "THINK", Payload: "x"}},
		{"phase zero", primary.StepResponseRequest{SessionID: id, Phase: 0, Step: "THINK", Payload: "x"}},
		{"unknown step", primary.StepResponseRequest{SessionID: id, Phase: 1, Step: "REVIEW", Payload: "x"}},
		{"empty payload", primary.StepResponseRequest{SessionID: id, Phase: 1, Step: "THINK", Payload: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ctrl.HandleStepResponse(ctx, tt.req)
			assert.Error(t, err)
		})
	}

	_, err := f.ctrl.HandleStepResponse(ctx, primary.StepResponseRequest{SessionID: "missing", Phase: 1, Step: "THINK", Payload: "x"})
	assert.ErrorIs(t, err, primary.ErrSessionNotFound)
}

func TestHandleError_SchedulesRetryAndResumes(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	id := f.create(t, 2)
	f.submit(t, id, 1, "THINK", "plan\nQUERY: a")

	res := f.fail(t, id, 1, "EXECUTE", "failed to parse json body")
	assert.Equal(t, recovery.TypeParse, res.Error.Type)
	assert.Equal(t, recovery.ActionRetry, res.Strategy.Action)
	assert.True(t, res.RetryScheduled)
	assert.Equal(t, at(5*time.Second), res.RetryAt)

	s := f.sessions.get(t, id)
	assert.Equal(t, "FAILED", s.Status)
	assert.Equal(t, "failed to parse json body", s.LastError)
	assert.Equal(t, at(5*time.Second), s.NextRetryAt)
	assert.Equal(t, 0, s.RetryCount)
	assert.Equal(t, 1, f.scheduler.Pending())

	f.clock.Advance(4 * time.Second)
	assert.Equal(t, "FAILED", f.sessions.get(t, id).Status)

	f.clock.Advance(time.Second)
	s = f.sessions.get(t, id)
	assert.Equal(t, "PENDING", s.Status)
	assert.Equal(t, 1, s.RetryCount)
	assert.Equal(t, 1, s.CurrentPhase)
	assert.Equal(t, "EXECUTE", s.CurrentStep)
	assert.Empty(t, s.NextRetryAt)
	assert.Empty(t, s.LastError)

	calls := f.trigger.triggered()
	assert.Equal(t, triggerCall{SessionID: id, Phase: 1, Step: "EXECUTE"}, calls[len(calls)-1])
	assert.Equal(t, 1, f.events.count(id, secondary.EventRetryFired))
}

func TestHandleError_RetryCeiling(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	id := f.create(t, 1)

	// Distinct types keep the same-type breaker closed.
	steps := []struct {
		msg   string
		delay time.Duration
	}{
		{"json parse failure", 5 * time.Second},
		{"request timed out", 10 * time.Second},
		{"connection refused", 15 * time.Second},
	}
	for i, st := range steps {
		res := f.fail(t, id, 1, "THINK", st.msg)
		require.True(t, res.RetryScheduled, "error %d", i+1)
		retryAt, err := secondary.ParseTime(res.RetryAt)
		require.NoError(t, err)
		assert.Equal(t, st.delay, retryAt.Sub(f.clock.Now()), "error %d", i+1)

		f.clock.Advance(time.Minute)
		require.Equal(t, i+1, f.sessions.get(t, id).RetryCount)
	}

	res := f.fail(t, id, 1, "THINK", "invalid character in json")
	assert.False(t, res.RetryScheduled)
	assert.Empty(t, res.RetryAt)

	s := f.sessions.get(t, id)
	assert.Equal(t, "FAILED", s.Status)
	assert.Equal(t, 3, s.RetryCount)
	assert.Empty(t, s.NextRetryAt)
	assert.Zero(t, f.scheduler.Pending())
	assert.Zero(t, f.clock.Pending())
}

func TestHandleError_RepeatedTypeSkipsStep(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	id := f.create(t, 2)

	for i := 0; i < 2; i++ {
		res := f.fail(t, id, 1, "THINK", "unexpected token in json")
		require.Equal(t, recovery.ActionRetry, res.Strategy.Action)
	}
	res := f.fail(t, id, 1, "THINK", "unexpected token in json")
	assert.Equal(t, recovery.ActionSkipStep, res.Strategy.Action)
	assert.True(t, res.Skipped)
	assert.False(t, res.RetryScheduled)

	s := f.sessions.get(t, id)
	assert.Equal(t, "EXECUTING", s.Status)
	assert.Equal(t, "EXECUTE", s.CurrentStep)
	assert.Empty(t, s.NextRetryAt)
	assert.Zero(t, f.scheduler.Pending())

	p, err := f.phases.Get(context.Background(), id, 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"plan":"","skipped":true}`, p.ThinkResult)
	assert.Equal(t, 1, f.events.count(id, secondary.EventStepSkipped))

	calls := f.trigger.triggered()
	assert.Equal(t, triggerCall{SessionID: id, Phase: 1, Step: "EXECUTE"}, calls[len(calls)-1])
}

func TestHandleError_TokenLimitModifiesRetry(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	id := f.create(t, 2)

	res := f.fail(t, id, 1, "THINK", "maximum context length exceeded")
	assert.Equal(t, recovery.ActionRetryWithModification, res.Strategy.Action)
	assert.Equal(t, recovery.ModTruncatePrompt, res.Strategy.Modification)

	f.fail(t, id, 1, "THINK", "maximum context length exceeded")
	res = f.fail(t, id, 1, "THINK", "maximum context length exceeded")
	assert.Equal(t, recovery.ModSummarizePrompt, res.Strategy.Modification)
	assert.True(t, res.RetryScheduled)

	s, err := f.ctrl.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, recovery.ModSummarizePrompt, s.Metadata.RetryModification)
	assert.Len(t, s.ErrorHistory, 3)

	// A successful result clears the modification.
	f.submit(t, id, 1, "THINK", "plan")
	s, err = f.ctrl.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, s.Metadata.RetryModification)
}

func TestHandleError_HistoryKeepsLastFive(t *testing.T) {
	cfg := primary.DefaultControllerConfig()
	cfg.MaxRetries = 0
	f := newControllerFixture(t, cfg)
	id := f.create(t, 1)

	msgs := []string{"json a", "timed out b", "connection refused c", "database locked d", "boom e", "timed out f"}
	for _, m := range msgs {
		f.fail(t, id, 1, "THINK", m)
	}
	s, err := f.ctrl.GetSession(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, s.ErrorHistory, recovery.HistoryCapacity)
	assert.Equal(t, "timed out b", s.ErrorHistory[0].Message)
	assert.Equal(t, "timed out f", s.ErrorHistory[4].Message)
}

func TestHandleError_CompletedSessionRejected(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	id := f.create(t, 1)
	f.submit(t, id, 1, "THINK", "plan")
	f.submit(t, id, 1, "EXECUTE", "notes")
	f.submit(t, id, 1, "INTEGRATE", "done")

	_, err := f.ctrl.HandleError(context.Background(), primary.StepErrorRequest{SessionID: id, Err: errBoom})
	assert.Error(t, err)
	assert.Equal(t, "COMPLETED", f.sessions.get(t, id).Status)
}

func TestRetryTimer_SupersededBySuccess(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	id := f.create(t, 2)

	f.fail(t, id, 1, "THINK", "connection refused")
	require.Equal(t, 1, f.scheduler.Pending())

	f.submit(t, id, 1, "THINK", "plan")
	assert.Zero(t, f.scheduler.Pending())

	f.clock.Advance(time.Hour)
	s := f.sessions.get(t, id)
	assert.Equal(t, "EXECUTING", s.Status)
	assert.Equal(t, 0, s.RetryCount)
	assert.Zero(t, f.events.count(id, secondary.EventRetryFired))
}

func TestRetryTimer_IgnoredWhenSessionMovedOn(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	id := f.create(t, 2)
	f.fail(t, id, 1, "THINK", "connection refused")

	// Another writer moved the session without going through the controller.
	s := f.sessions.get(t, id)
	s.Status = "THINKING"
	s.NextRetryAt = ""
	require.NoError(t, f.sessions.Update(context.Background(), s))

	f.clock.Advance(time.Hour)
	s = f.sessions.get(t, id)
	assert.Equal(t, "THINKING", s.Status)
	assert.Equal(t, 0, s.RetryCount)
}

func TestRetryFromLastSuccessfulPoint(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	ctx := context.Background()
	id := f.create(t, 2)

	f.submit(t, id, 1, "THINK", "plan")
	f.submit(t, id, 1, "EXECUTE", "notes")
	f.submit(t, id, 1, "INTEGRATE", "phase one")
	_, err := f.ctrl.ManualProgressToNextPhase(ctx, id)
	require.NoError(t, err)
	f.submit(t, id, 2, "THINK", "plan two")
	f.fail(t, id, 2, "EXECUTE", "connection refused")

	res, err := f.ctrl.RetryFromLastSuccessfulPoint(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ResumePhase)
	assert.Equal(t, "EXECUTE", res.ResumeStep)
	assert.False(t, res.Completed)
	assert.Equal(t, 1, res.Session.RetryCount)
	assert.Equal(t, "PENDING", res.Session.Status)
	assert.Zero(t, f.scheduler.Pending(), "manual retry cancels the timer")

	// Every phase integrated: retry completes the session.
	f.submit(t, id, 2, "EXECUTE", "notes two")
	f.submit(t, id, 2, "INTEGRATE", "phase two")
	_, err = f.ctrl.RetryFromLastSuccessfulPoint(ctx, id)
	assert.Error(t, err, "completed sessions cannot be retried")
}

func TestRetryFromLastSuccessfulPoint_CompletesWhenAllIntegrated(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	ctx := context.Background()
	id := f.create(t, 1)
	f.submit(t, id, 1, "THINK", "plan")
	f.submit(t, id, 1, "EXECUTE", "notes")

	// Phase stored by an earlier run, session failed afterwards.
	require.NoError(t, f.phases.UpsertStepResult(ctx, &secondary.StepResultRecord{
		SessionID: id, PhaseNumber: 1, Step: "INTEGRATE", Result: `{"content":"x"}`, PhaseStatus: "completed", At: at(0),
	}))
	f.fail(t, id, 1, "INTEGRATE", "connection reset")

	res, err := f.ctrl.RetryFromLastSuccessfulPoint(ctx, id)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, "COMPLETED", res.Session.Status)
	assert.Contains(t, f.notifier.notified(), "session_completed")
}

func TestRetryFromLastSuccessfulPoint_RejectsActiveSessions(t *testing.T) {
	ctx := context.Background()
	for _, status := range []string{"PENDING", "THINKING", "EXECUTING", "INTEGRATING", "WAITING_ON_QUEUE"} {
		t.Run(status, func(t *testing.T) {
			f := newControllerFixture(t, primary.DefaultControllerConfig())
			id := f.create(t, 2)
			f.submit(t, id, 1, "THINK", "plan\nQUERY: a")

			s := f.sessions.get(t, id)
			s.Status = status
			require.NoError(t, f.sessions.Update(ctx, s))
			triggered := len(f.trigger.triggered())

			_, err := f.ctrl.RetryFromLastSuccessfulPoint(ctx, id)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "cannot move from "+status+" to PENDING")

			after := f.sessions.get(t, id)
			assert.Equal(t, status, after.Status)
			assert.Equal(t, 0, after.RetryCount)
			assert.Len(t, f.trigger.triggered(), triggered)
			assert.Zero(t, f.events.count(id, secondary.EventRetryFired))
		})
	}
}

func TestHandleStepResponse_ReplayAfterSessionMovedOn(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	id := f.create(t, 2)

	f.submit(t, id, 1, "THINK", "plan\nQUERY: a")
	f.submit(t, id, 1, "EXECUTE", "notes")
	before := f.sessions.get(t, id)
	require.Equal(t, "INTEGRATE", before.CurrentStep)

	res := f.submit(t, id, 1, "THINK", "plan\nQUERY: a")
	assert.Empty(t, res.NextStep)
	assert.Equal(t, before, f.sessions.get(t, id))
	assert.Len(t, f.trigger.triggered(), 2)
	assert.Equal(t, 2, f.events.count(id, secondary.EventStepStored))

	// A different payload is a new result and still rewinds.
	res = f.submit(t, id, 1, "THINK", "revised plan")
	assert.Equal(t, "EXECUTE", res.NextStep)
}

func TestStepTriggerFailure_FailsSessionAndArmsRetry(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	ctx := context.Background()
	id := f.create(t, 2)
	f.trigger.setErr(fmt.Errorf("%w: dropping THINK", ErrDispatcherFull))

	s, err := f.ctrl.StartSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "THINKING", s.Status, "state is persisted before the trigger runs")

	failed := f.sessions.get(t, id)
	assert.Equal(t, "FAILED", failed.Status)
	assert.Contains(t, failed.LastError, "step dispatcher is full")
	assert.NotEmpty(t, failed.NextRetryAt)
	assert.Equal(t, 1, f.scheduler.Pending())
	assert.Equal(t, 1, f.events.count(id, secondary.EventErrorRecorded))

	f.trigger.setErr(nil)
	f.clock.Advance(time.Minute)

	s2 := f.sessions.get(t, id)
	assert.Equal(t, "PENDING", s2.Status)
	assert.Equal(t, 1, s2.RetryCount)
	assert.Equal(t, []triggerCall{{SessionID: id, Phase: 1, Step: "THINK"}}, f.trigger.triggered())
}

func TestRecoverScheduledRetries(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	ctx := context.Background()

	for id, next := range map[string]string{"S-due": at(-time.Minute), "S-later": at(30 * time.Second)} {
		require.NoError(t, f.sessions.Create(ctx, &secondary.SessionRecord{
			ID: id, Theme: "t", MaxPhases: 1, Status: "FAILED", CurrentPhase: 1, CurrentStep: "THINK",
			NextRetryAt: next, CreatedAt: at(-time.Hour), UpdatedAt: at(-time.Hour),
		}))
	}
	require.NoError(t, f.sessions.Create(ctx, &secondary.SessionRecord{
		ID: "S-idle", Theme: "t", MaxPhases: 1, Status: "FAILED", CurrentPhase: 1, CurrentStep: "THINK",
		CreatedAt: at(0), UpdatedAt: at(0),
	}))

	n, err := f.ctrl.RecoverScheduledRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, f.scheduler.Pending())

	f.clock.Advance(0)
	assert.Equal(t, "PENDING", f.sessions.get(t, "S-due").Status)
	assert.Equal(t, "FAILED", f.sessions.get(t, "S-later").Status)

	f.clock.Advance(30 * time.Second)
	assert.Equal(t, "PENDING", f.sessions.get(t, "S-later").Status)
	assert.Equal(t, "FAILED", f.sessions.get(t, "S-idle").Status)
}

func TestUpdateConfig(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	f.ctrl.UpdateConfig(primary.ControllerConfig{MaxRetries: 7, RetryDelay: time.Second})

	cfg := f.ctrl.Config()
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, 4, cfg.DefaultMaxPhases)

	s, err := f.ctrl.CreateSession(context.Background(), primary.CreateSessionRequest{Theme: "x"})
	require.NoError(t, err)
	assert.Equal(t, 4, s.MaxPhases)
}

func TestListEvents(t *testing.T) {
	f := newControllerFixture(t, primary.DefaultControllerConfig())
	id := f.create(t, 1)
	f.submit(t, id, 1, "THINK", "plan")

	events, err := f.ctrl.ListEvents(context.Background(), id, 0)
	require.NoError(t, err)
	var names []string
	for _, e := range events {
		names = append(names, e.Event)
	}
	assert.Equal(t, []string{"session_created", "step_stored"}, names)
}
