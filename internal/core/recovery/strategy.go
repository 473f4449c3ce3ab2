package recovery

import "time"

// Action is the recovery decision for a failed step.
type Action string

const (
	ActionRetry                 Action = "RETRY"
	ActionRetryWithModification Action = "RETRY_WITH_MODIFICATION"
	ActionSkipStep              Action = "SKIP_STEP"
	ActionAbort                 Action = "ABORT"
)

// Prompt/query modifications applied on a modified retry.
const (
	ModTruncatePrompt  = "truncate_prompt"
	ModSummarizePrompt = "summarize_prompt"
	ModSimplifyQuery   = "simplify_query"
)

// SearchRetryWait is the short pause before retrying with a simplified query.
const SearchRetryWait = 5 * time.Second

// Thresholds are the escalation ceilings. They are independent of the queue's item retry ceiling.
type Thresholds struct {
	SameType     int // same-type errors in history before the breaker opens
	AbortRetries int // total retries before aborting regardless of type
}

// DefaultThresholds returns the stock ceilings.
func DefaultThresholds() Thresholds {
	return Thresholds{SameType: 3, AbortRetries: 10}
}

// Strategy is the planned recovery.
type Strategy struct {
	Action       Action        `json:"action"`
	Modification string        `json:"modification,omitempty"`
	WaitTime     time.Duration `json:"wait_time,omitempty"`
	Reason       string        `json:"reason"`
}

// DetermineStrategy picks a recovery action for info given the session's history
// (which should already include info) and total retry count.
func DetermineStrategy(info ErrorInfo, history *ErrorHistory, retryCount int, th Thresholds) Strategy {
	// 1. Breaker against a persistent fault class
	if history != nil && history.CountType(info.Type) >= th.SameType {
		if info.Type == TypeTokenLimit {
			return Strategy{
				Action:       ActionRetryWithModification,
				Modification: ModSummarizePrompt,
				Reason:       "repeated token limit errors",
			}
		}
		return Strategy{
			Action: ActionSkipStep,
			Reason: "repeated " + string(info.Type) + " errors",
		}
	}

	// 2. Hard ceiling regardless of type
	if retryCount >= th.AbortRetries {
		return Strategy{Action: ActionAbort, Reason: "retry ceiling reached"}
	}

	// 3. Dispatch by type
	switch info.Type {
	case TypeSearchProvider:
		return Strategy{
			Action:       ActionRetryWithModification,
			Modification: ModSimplifyQuery,
			WaitTime:     SearchRetryWait,
			Reason:       "search provider failure",
		}
	case TypeRateLimit:
		wait := info.RetryAfterSeconds
		if wait <= 0 {
			wait = DefaultRateLimitWaitSeconds
		}
		return Strategy{
			Action:   ActionRetry,
			WaitTime: time.Duration(wait) * time.Second,
			Reason:   "rate limited",
		}
	case TypeTokenLimit:
		return Strategy{
			Action:       ActionRetryWithModification,
			Modification: ModTruncatePrompt,
			Reason:       "prompt too long",
		}
	case TypeParse:
		return Strategy{Action: ActionRetry, Reason: "transient parse failure"}
	default:
		return Strategy{
			Action:   ActionRetry,
			WaitTime: time.Duration(typeWaitSeconds[info.Type]) * time.Second,
			Reason:   "retry after " + string(info.Type),
		}
	}
}
