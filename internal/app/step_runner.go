package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/example/cotflow/internal/core/queue"
	"github.com/example/cotflow/internal/core/recovery"
	"github.com/example/cotflow/internal/core/session"
	"github.com/example/cotflow/internal/ports/primary"
	"github.com/example/cotflow/internal/ports/secondary"
)

// Prompt shaping limits.
const (
	MaxPromptChars       = 24000
	SimplifiedQueryWords = 6
)

// ErrNoThinkResult is returned when EXECUTE runs before its phase has a plan.
var ErrNoThinkResult = errors.New("phase has no THINK result")

// StepTask is one unit of work for the dispatcher.
type StepTask struct {
	SessionID string
	Phase     int
	Step      string
	Resume    bool // the session's queued searches have resolved
}

// StepRunner executes THINK, EXECUTE and INTEGRATE against the outbound services
// and reports the outcome back to the controller.
type StepRunner struct {
	controller primary.TriggerController
	queue      primary.RequestQueue
	generator  secondary.ContentGenerator
	log        *zap.Logger
}

// NewStepRunner creates a StepRunner.
func NewStepRunner(
	controller primary.TriggerController,
	queue primary.RequestQueue,
	generator secondary.ContentGenerator,
	log *zap.Logger,
) *StepRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &StepRunner{
		controller: controller,
		queue:      queue,
		generator:  generator,
		log:        log.Named("runner"),
	}
}

// Run executes task. Step failures are handed to the controller's error path;
// the returned error only reports that neither path could record the outcome.
func (r *StepRunner) Run(ctx context.Context, task StepTask) error {
	sess, err := r.controller.GetSession(ctx, task.SessionID)
	if err != nil {
		return err
	}
	if sess.Status == string(session.StatusCompleted) {
		r.log.Debug("ignoring task for completed session", zap.String("session_id", task.SessionID))
		return nil
	}

	if task.Resume {
		task.Phase = sess.Metadata.QueuePhase
		task.Step = string(session.StepExecute)
	}
	step, err := session.ParseStep(task.Step)
	if err != nil {
		return err
	}
	phases, err := r.controller.ListPhases(ctx, task.SessionID)
	if err != nil {
		return err
	}

	log := r.log.With(
		zap.String("session_id", task.SessionID),
		zap.Int("phase", task.Phase),
		zap.String("step", string(step)),
		zap.Bool("resume", task.Resume))
	mod := sess.Metadata.RetryModification

	var (
		result session.Result
		prompt string
		tokens int
	)
	switch {
	case step == session.StepThink:
		result, prompt, tokens, err = r.think(ctx, sess, task.Phase, phases, mod)
	case step == session.StepExecute && task.Resume:
		result, err = r.collect(ctx, sess)
	case step == session.StepExecute:
		var parked bool
		result, parked, err = r.execute(ctx, sess, task.Phase, phases, mod)
		if err == nil && parked {
			log.Info("searches queued; waiting for the queue")
			return nil
		}
	case step == session.StepIntegrate:
		result, prompt, tokens, err = r.integrate(ctx, sess, task.Phase, phases, mod)
	}
	if err != nil {
		log.Warn("step failed", zap.Error(err))
		_, herr := r.controller.HandleError(ctx, primary.StepErrorRequest{
			SessionID: task.SessionID,
			Phase:     task.Phase,
			Step:      string(step),
			Err:       err,
		})
		return herr
	}

	payload, err := session.EncodeResult(result)
	if err != nil {
		return err
	}
	_, err = r.controller.HandleStepResponse(ctx, primary.StepResponseRequest{
		SessionID: task.SessionID,
		Phase:     task.Phase,
		Step:      string(step),
		Payload:   payload,
		Prompt:    prompt,
		Tokens:    tokens,
	})
	if err != nil {
		return fmt.Errorf("failed to store %s result: %w", step, err)
	}
	log.Info("step finished", zap.Int("tokens", tokens))
	return nil
}

func (r *StepRunner) think(ctx context.Context, sess *primary.Session, phase int, phases []*primary.Phase, mod string) (session.Result, string, int, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Theme: %s\n", sess.Theme)
	if sess.Style != "" {
		fmt.Fprintf(&b, "Style: %s\n", sess.Style)
	}
	if sess.Platform != "" {
		fmt.Fprintf(&b, "Platform: %s\n", sess.Platform)
	}
	fmt.Fprintf(&b, "Phase %d of %d.\n", phase, sess.MaxPhases)
	if prior := priorContext(phases, phase, mod == recovery.ModSummarizePrompt); prior != "" {
		b.WriteString("\nEarlier phases:\n")
		b.WriteString(prior)
	}
	b.WriteString("\nPlan this phase. List each web search you need on its own line as `QUERY: <search>`.\n")

	prompt := shapePrompt(b.String(), mod)
	resp, err := r.generator.Generate(ctx, secondary.GenerateRequest{
		System: "You plan research phases for a content session.",
		Prompt: prompt,
	})
	if err != nil {
		return nil, prompt, 0, err
	}

	res := session.ThinkResult{Plan: resp.Text, Queries: session.ExtractQueries(resp.Text)}
	if mod == recovery.ModSimplifyQuery {
		res.Queries = simplifyQueries(res.Queries)
	}
	return res, prompt, resp.Tokens, nil
}

// execute enqueues the plan's searches. It reports parked when the session now waits on the queue.
func (r *StepRunner) execute(ctx context.Context, sess *primary.Session, phase int, phases []*primary.Phase, mod string) (session.Result, bool, error) {
	p := findPhase(phases, phase)
	if p == nil || p.ThinkResult == "" {
		return nil, false, fmt.Errorf("%w: phase %d", ErrNoThinkResult, phase)
	}
	decoded, err := session.DecodeResult(session.StepThink, p.ThinkResult)
	if err != nil {
		return nil, false, err
	}
	think := decoded.(session.ThinkResult)

	queries := think.Queries
	if mod == recovery.ModSimplifyQuery {
		queries = simplifyQueries(queries)
	}
	if len(queries) == 0 {
		return session.ExecuteResult{Findings: []session.Finding{}}, false, nil
	}

	reqs := make([]queue.Request, len(queries))
	for i, q := range queries {
		reqs[i] = queue.Request{Query: q, Purpose: fmt.Sprintf("phase %d research", phase)}
	}
	if _, err := r.queue.Enqueue(ctx, primary.EnqueueRequest{
		SessionID: sess.ID,
		Phase:     phase,
		Requests:  reqs,
	}); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

// collect turns resolved queue items into findings. Items that failed for good
// are kept as failed findings so INTEGRATE can still run.
func (r *StepRunner) collect(ctx context.Context, sess *primary.Session) (session.Result, error) {
	responses, err := r.queue.GetQueueResponses(ctx, sess.Metadata.QueueIDs)
	if err != nil {
		return nil, err
	}
	findings := make([]session.Finding, 0, len(responses))
	for _, resp := range responses {
		f := session.Finding{Query: resp.Request.Query}
		if resp.Response != nil {
			f.Content = resp.Response.Content
			f.Citations = resp.Response.Citations
		} else {
			f.Failed = true
			f.Content = resp.Error
		}
		findings = append(findings, f)
	}
	return session.ExecuteResult{Findings: findings}, nil
}

func (r *StepRunner) integrate(ctx context.Context, sess *primary.Session, phase int, phases []*primary.Phase, mod string) (session.Result, string, int, error) {
	p := findPhase(phases, phase)
	if p == nil {
		return nil, "", 0, fmt.Errorf("%w: phase %d", ErrNoThinkResult, phase)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Theme: %s\nPhase %d of %d.\n\n", sess.Theme, phase, sess.MaxPhases)
	if think, err := session.DecodeResult(session.StepThink, p.ThinkResult); err == nil {
		fmt.Fprintf(&b, "Plan:\n%s\n\n", think.(session.ThinkResult).Plan)
	}
	if exec, err := session.DecodeResult(session.StepExecute, p.ExecuteResult); err == nil {
		b.WriteString("Findings:\n")
		for _, f := range exec.(session.ExecuteResult).Findings {
			if f.Failed {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", f.Query, f.Content)
		}
	}
	if prior := priorContext(phases, phase, mod == recovery.ModSummarizePrompt); prior != "" {
		b.WriteString("\nEarlier phases:\n")
		b.WriteString(prior)
	}
	b.WriteString("\nIntegrate the findings into the phase output. Start with a one-line summary.\n")

	prompt := shapePrompt(b.String(), mod)
	resp, err := r.generator.Generate(ctx, secondary.GenerateRequest{
		System: "You synthesize research findings for a content session.",
		Prompt: prompt,
	})
	if err != nil {
		return nil, prompt, 0, err
	}
	return session.IntegrateResult{Content: resp.Text, Summary: firstLine(resp.Text)}, prompt, resp.Tokens, nil
}

func findPhase(phases []*primary.Phase, number int) *primary.Phase {
	for _, p := range phases {
		if p.PhaseNumber == number {
			return p
		}
	}
	return nil
}

// priorContext renders integrated phases before phase. With summarize set only
// each phase's summary line is kept.
func priorContext(phases []*primary.Phase, phase int, summarize bool) string {
	var b strings.Builder
	for _, p := range phases {
		if p.PhaseNumber >= phase || p.IntegrateResult == "" {
			continue
		}
		decoded, err := session.DecodeResult(session.StepIntegrate, p.IntegrateResult)
		if err != nil {
			continue
		}
		res := decoded.(session.IntegrateResult)
		if res.Skipped {
			continue
		}
		text := res.Content
		if summarize {
			text = res.Summary
			if text == "" {
				text = firstLine(res.Content)
			}
		}
		fmt.Fprintf(&b, "Phase %d: %s\n", p.PhaseNumber, text)
	}
	return b.String()
}

// shapePrompt enforces the prompt budget, halving it for a truncate retry.
func shapePrompt(prompt, mod string) string {
	limit := MaxPromptChars
	if mod == recovery.ModTruncatePrompt {
		limit /= 2
	}
	return truncateRunes(prompt, limit)
}

func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// simplifyQueries keeps the leading words of each query and drops search operators.
func simplifyQueries(queries []string) []string {
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.NewReplacer(`"`, "", "'", "", "(", "", ")", "").Replace(q)
		var words []string
		for _, w := range strings.Fields(q) {
			if w == "AND" || w == "OR" || strings.HasPrefix(w, "-") || strings.Contains(w, ":") {
				continue
			}
			words = append(words, w)
			if len(words) == SimplifiedQueryWords {
				break
			}
		}
		if len(words) > 0 {
			out = append(out, strings.Join(words, " "))
		}
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
