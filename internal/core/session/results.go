package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Result is the typed output of one step. Exactly one concrete type exists per step.
type Result interface {
	Step() Step
	IsSkipped() bool
}

// ThinkResult is the plan produced by a THINK step.
type ThinkResult struct {
	Plan    string   `json:"plan"`
	Queries []string `json:"queries,omitempty"`
	Skipped bool     `json:"skipped,omitempty"`
}

// Step implements Result.
func (ThinkResult) Step() Step {
	return StepThink
}

// IsSkipped implements Result.
func (r ThinkResult) IsSkipped() bool {
	return r.Skipped
}

// Finding is one search answer gathered during EXECUTE.
type Finding struct {
	Query     string   `json:"query"`
	Content   string   `json:"content"`
	Citations []string `json:"citations,omitempty"`
	Failed    bool     `json:"failed,omitempty"`
}

// ExecuteResult collects the findings of an EXECUTE step.
type ExecuteResult struct {
	Findings []Finding `json:"findings"`
	Skipped  bool      `json:"skipped,omitempty"`
}

// Step implements Result.
func (ExecuteResult) Step() Step {
	return StepExecute
}

// IsSkipped implements Result.
func (r ExecuteResult) IsSkipped() bool {
	return r.Skipped
}

// IntegrateResult is the synthesized output of an INTEGRATE step.
type IntegrateResult struct {
	Content string `json:"content"`
	Summary string `json:"summary,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Step implements Result.
func (IntegrateResult) Step() Step {
	return StepIntegrate
}

// IsSkipped implements Result.
func (r IntegrateResult) IsSkipped() bool {
	return r.Skipped
}

// SkippedResult returns the placeholder stored when recovery decides to skip a step.
func SkippedResult(step Step) Result {
	switch step {
	case StepExecute:
		return ExecuteResult{Skipped: true}
	case StepIntegrate:
		return IntegrateResult{Skipped: true}
	default:
		return ThinkResult{Skipped: true}
	}
}

// EncodeResult serializes a result for storage.
func EncodeResult(r Result) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s result: %w", r.Step(), err)
	}
	return string(b), nil
}

// DecodeResult parses a stored or submitted payload for the given step.
// A payload that is not a JSON object is accepted as free text.
func DecodeResult(step Step, payload string) (Result, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, fmt.Errorf("empty %s payload", step)
	}
	if !strings.HasPrefix(trimmed, "{") {
		return textResult(step, trimmed), nil
	}

	switch step {
	case StepThink:
		var r ThinkResult
		if err := json.Unmarshal([]byte(trimmed), &r); err != nil {
			return nil, fmt.Errorf("failed to parse THINK result: %w", err)
		}
		return r, nil
	case StepExecute:
		var r ExecuteResult
		if err := json.Unmarshal([]byte(trimmed), &r); err != nil {
			return nil, fmt.Errorf("failed to parse EXECUTE result: %w", err)
		}
		return r, nil
	case StepIntegrate:
		var r IntegrateResult
		if err := json.Unmarshal([]byte(trimmed), &r); err != nil {
			return nil, fmt.Errorf("failed to parse INTEGRATE result: %w", err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("invalid step %q", step)
}

func textResult(step Step, text string) Result {
	switch step {
	case StepExecute:
		return ExecuteResult{Findings: []Finding{{Content: text}}}
	case StepIntegrate:
		return IntegrateResult{Content: text}
	default:
		return ThinkResult{Plan: text, Queries: ExtractQueries(text)}
	}
}

// ExtractQueries pulls search queries out of a free-text plan.
// Lines of the form "QUERY: ..." or "- query: ..." are recognized.
func ExtractQueries(plan string) []string {
	var queries []string
	for _, line := range strings.Split(plan, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-* ")
		lower := strings.ToLower(line)
		if !strings.HasPrefix(lower, "query:") {
			continue
		}
		q := strings.TrimSpace(line[len("query:"):])
		if q != "" {
			queries = append(queries, q)
		}
	}
	return queries
}
