// Package cli provides thin CLI adapters that translate between CLI concerns
// and application services. Adapters handle output formatting but delegate
// business logic to services.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/example/cotflow/internal/core/recovery"
	"github.com/example/cotflow/internal/ports/primary"
)

// SessionAdapter translates CLI operations to TriggerController and RecoveryService calls.
type SessionAdapter struct {
	controller primary.TriggerController
	recovery   primary.RecoveryService
	out        io.Writer
}

// NewSessionAdapter creates a new SessionAdapter.
func NewSessionAdapter(controller primary.TriggerController, recovery primary.RecoveryService, out io.Writer) *SessionAdapter {
	return &SessionAdapter{
		controller: controller,
		recovery:   recovery,
		out:        out,
	}
}

// StatusColor renders a session status with its color.
func StatusColor(status string) string {
	switch status {
	case "COMPLETED":
		return color.New(color.FgGreen).Sprint(status)
	case "FAILED":
		return color.New(color.FgRed).Sprint(status)
	case "WAITING_ON_QUEUE":
		return color.New(color.FgYellow).Sprint(status)
	case "PENDING":
		return status
	default:
		return color.New(color.FgCyan).Sprint(status)
	}
}

// Create creates a new session.
func (a *SessionAdapter) Create(ctx context.Context, req primary.CreateSessionRequest) (*primary.Session, error) {
	s, err := a.controller.CreateSession(ctx, req)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(a.out, "✓ Created session %s (%d phases): %s\n", s.ID, s.MaxPhases, s.Theme)
	return s, nil
}

// Start kicks off a PENDING session.
func (a *SessionAdapter) Start(ctx context.Context, sessionID string) error {
	s, err := a.controller.StartSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	fmt.Fprintf(a.out, "✓ Started session %s: phase %d %s\n", s.ID, s.CurrentPhase, s.CurrentStep)
	return nil
}

// List lists sessions with an optional status filter.
func (a *SessionAdapter) List(ctx context.Context, status string, limit int) error {
	sessions, err := a.controller.ListSessions(ctx, primary.SessionFilters{Status: status, Limit: limit})
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(a.out, "No sessions found")
		return nil
	}

	fmt.Fprintf(a.out, "\n%-36s %-16s %-7s %-10s %s\n", "ID", "STATUS", "PHASE", "STEP", "THEME")
	fmt.Fprintln(a.out, "────────────────────────────────────────────────────────────────────────────────────")
	for _, s := range sessions {
		fmt.Fprintf(a.out, "%-36s %-16s %-7s %-10s %s\n",
			s.ID, s.Status, fmt.Sprintf("%d/%d", s.CurrentPhase, s.MaxPhases), s.CurrentStep, s.Theme)
	}
	fmt.Fprintln(a.out)
	return nil
}

// Show displays a session with its phases.
func (a *SessionAdapter) Show(ctx context.Context, sessionID string) error {
	s, err := a.controller.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	fmt.Fprintf(a.out, "\nSession: %s\n", s.ID)
	fmt.Fprintf(a.out, "Theme:   %s\n", s.Theme)
	fmt.Fprintf(a.out, "Status:  %s\n", StatusColor(s.Status))
	fmt.Fprintf(a.out, "Phase:   %d/%d (%s)\n", s.CurrentPhase, s.MaxPhases, s.CurrentStep)
	if s.RetryCount > 0 {
		fmt.Fprintf(a.out, "Retries: %d\n", s.RetryCount)
	}
	if s.LastError != "" {
		fmt.Fprintf(a.out, "Error:   %s\n", color.New(color.FgRed).Sprint(s.LastError))
	}
	if s.NextRetryAt != "" {
		fmt.Fprintf(a.out, "Retry at: %s\n", s.NextRetryAt)
	}
	if len(s.Metadata.QueueIDs) > 0 {
		fmt.Fprintf(a.out, "Queued:  %d request(s)\n", len(s.Metadata.QueueIDs))
	}

	phases, err := a.controller.ListPhases(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to list phases: %w", err)
	}
	if len(phases) > 0 {
		fmt.Fprintln(a.out, "\nPhases:")
		for _, p := range phases {
			fmt.Fprintf(a.out, "  %d %-12s think:%s execute:%s integrate:%s\n",
				p.PhaseNumber, p.Status, mark(p.ThinkResult), mark(p.ExecuteResult), mark(p.IntegrateResult))
		}
	}

	if len(s.ErrorHistory) > 0 {
		fmt.Fprintln(a.out, "\nRecent errors:")
		for _, e := range s.ErrorHistory {
			fmt.Fprintf(a.out, "  %s %-22s phase %d %s\n", e.Timestamp.Format(time.RFC3339), e.Type, e.Phase, e.Step)
		}
	}
	fmt.Fprintln(a.out)
	return nil
}

func mark(result string) string {
	if result == "" {
		return "-"
	}
	return color.New(color.FgGreen).Sprint("✓")
}

// Events prints a session's audit trail.
func (a *SessionAdapter) Events(ctx context.Context, sessionID string, limit int) error {
	events, err := a.controller.ListEvents(ctx, sessionID, limit)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}
	if len(events) == 0 {
		fmt.Fprintln(a.out, "No events recorded")
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(a.out, "%s  %-18s %-12s %s\n", e.CreatedAt, e.Event, e.Actor, e.Detail)
	}
	return nil
}

// Submit feeds a step result into the controller.
func (a *SessionAdapter) Submit(ctx context.Context, req primary.StepResponseRequest) error {
	res, err := a.controller.HandleStepResponse(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "✓ Stored %s for phase %d\n", req.Step, req.Phase)
	switch {
	case res.SessionCompleted:
		fmt.Fprintf(a.out, "Session %s %s\n", res.Session.ID, StatusColor("COMPLETED"))
	case res.PhaseCompleted && res.NextStep == "":
		fmt.Fprintf(a.out, "Phase %d completed; run 'cot session advance %s' to continue\n", req.Phase, res.Session.ID)
	case res.NextStep != "":
		fmt.Fprintf(a.out, "Next: phase %d %s\n", res.Session.CurrentPhase, res.NextStep)
	default:
		fmt.Fprintf(a.out, "Status: %s\n", StatusColor(res.Session.Status))
	}
	return nil
}

// Fail reports a step failure to the controller and prints the structured error.
func (a *SessionAdapter) Fail(ctx context.Context, req primary.StepErrorRequest) error {
	res, err := a.controller.HandleError(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s %s\n", color.New(color.FgRed).Sprint("✗"), res.Error.UserMessage)
	fmt.Fprintf(a.out, "  type:     %s\n", res.Error.Type)
	fmt.Fprintf(a.out, "  strategy: %s", res.Strategy.Action)
	if res.Strategy.Modification != "" {
		fmt.Fprintf(a.out, " (%s)", res.Strategy.Modification)
	}
	fmt.Fprintln(a.out)
	if res.Skipped {
		fmt.Fprintln(a.out, "  step skipped")
	}
	if res.RetryScheduled {
		fmt.Fprintf(a.out, "  retry at: %s\n", res.RetryAt)
	}
	if res.Error.SuggestedAction != "" {
		fmt.Fprintf(a.out, "  hint:     %s\n", res.Error.SuggestedAction)
	}
	return nil
}

// Retry resumes a session from its last successful point.
func (a *SessionAdapter) Retry(ctx context.Context, sessionID string) error {
	res, err := a.controller.RetryFromLastSuccessfulPoint(ctx, sessionID)
	if err != nil {
		return err
	}
	if res.Completed {
		fmt.Fprintf(a.out, "✓ Session %s has every phase integrated; marked %s\n", sessionID, StatusColor("COMPLETED"))
		return nil
	}
	fmt.Fprintf(a.out, "✓ Resuming session %s at phase %d %s (retry %d)\n",
		sessionID, res.ResumePhase, res.ResumeStep, res.Session.RetryCount)
	return nil
}

// Advance moves a session to its next phase.
func (a *SessionAdapter) Advance(ctx context.Context, sessionID string) error {
	s, err := a.controller.ManualProgressToNextPhase(ctx, sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "✓ Session %s advanced to phase %d/%d\n", s.ID, s.CurrentPhase, s.MaxPhases)
	return nil
}

// Health prints the health report of a session.
func (a *SessionAdapter) Health(ctx context.Context, sessionID string) error {
	report, err := a.recovery.CheckSessionHealth(ctx, sessionID)
	if err != nil {
		return err
	}
	if report.Healthy {
		fmt.Fprintf(a.out, "%s session %s is healthy\n", color.New(color.FgGreen).Sprint("✓"), sessionID)
		return nil
	}
	fmt.Fprintf(a.out, "%s session %s needs attention\n", color.New(color.FgYellow).Sprint("!"), sessionID)
	for i, issue := range report.Issues {
		fmt.Fprintf(a.out, "  - %s\n", issue)
		if i < len(report.Recommendations) {
			fmt.Fprintf(a.out, "    → %s\n", report.Recommendations[i])
		}
	}
	return nil
}

// Classify prints the diagnosis of a raw error message.
func (a *SessionAdapter) Classify(msg, locale string, asJSON bool) error {
	info := recovery.Classify(msg, locale)
	if asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintf(a.out, "type:        %s\n", info.Type)
	fmt.Fprintf(a.out, "status:      %d\n", info.StatusCode)
	fmt.Fprintf(a.out, "message:     %s\n", info.UserMessage)
	fmt.Fprintf(a.out, "retry after: %ds\n", info.RetryAfterSeconds)
	if info.SuggestedAction != "" {
		fmt.Fprintf(a.out, "action:      %s\n", info.SuggestedAction)
	}
	return nil
}
