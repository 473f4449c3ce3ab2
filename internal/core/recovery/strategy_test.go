package recovery

import (
	"testing"
	"time"
)

func historyOf(types ...ErrorType) *ErrorHistory {
	var h ErrorHistory
	for _, typ := range types {
		h.Push(HistoryEntry{Type: typ})
	}
	return &h
}

func TestDetermineStrategy(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name       string
		info       ErrorInfo
		history    *ErrorHistory
		retryCount int
		want       Strategy
	}{
		{
			name:    "three timeouts open the breaker",
			info:    Classify("timeout", "en"),
			history: historyOf(TypeTimeout, TypeTimeout, TypeTimeout),
			want:    Strategy{Action: ActionSkipStep, Reason: "repeated TIMEOUT errors"},
		},
		{
			name:    "three token limits summarize instead of skipping",
			info:    Classify("token limit", "en"),
			history: historyOf(TypeTokenLimit, TypeParse, TypeTokenLimit, TypeTokenLimit),
			want: Strategy{
				Action: ActionRetryWithModification, Modification: ModSummarizePrompt,
				Reason: "repeated token limit errors",
			},
		},
		{
			name:       "breaker takes precedence over abort",
			info:       Classify("network down", "en"),
			history:    historyOf(TypeNetwork, TypeNetwork, TypeNetwork),
			retryCount: 12,
			want:       Strategy{Action: ActionSkipStep, Reason: "repeated NETWORK_ERROR errors"},
		},
		{
			name:       "retry ceiling aborts",
			info:       Classify("timeout", "en"),
			history:    historyOf(TypeTimeout),
			retryCount: 10,
			want:       Strategy{Action: ActionAbort, Reason: "retry ceiling reached"},
		},
		{
			name:    "search provider simplifies query",
			info:    Classify("search provider: 500", "en"),
			history: historyOf(TypeSearchProvider),
			want: Strategy{
				Action: ActionRetryWithModification, Modification: ModSimplifyQuery,
				WaitTime: SearchRetryWait, Reason: "search provider failure",
			},
		},
		{
			name:    "rate limit waits for server",
			info:    Classify("429 try again in 90 seconds", "en"),
			history: historyOf(TypeRateLimit),
			want:    Strategy{Action: ActionRetry, WaitTime: 90 * time.Second, Reason: "rate limited"},
		},
		{
			name:    "token limit truncates",
			info:    Classify("context length exceeded", "en"),
			history: historyOf(TypeTokenLimit),
			want: Strategy{
				Action: ActionRetryWithModification, Modification: ModTruncatePrompt, Reason: "prompt too long",
			},
		},
		{
			name:    "parse retries immediately",
			info:    Classify("unexpected token in json", "en"),
			history: historyOf(TypeParse, TypeParse),
			want:    Strategy{Action: ActionRetry, Reason: "transient parse failure"},
		},
		{
			name:    "timeout waits",
			info:    Classify("timed out", "en"),
			history: nil,
			want:    Strategy{Action: ActionRetry, WaitTime: 10 * time.Second, Reason: "retry after TIMEOUT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetermineStrategy(tt.info, tt.history, tt.retryCount, th)
			if got != tt.want {
				t.Errorf("DetermineStrategy() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDetermineStrategy_NeverPlainRetryAfterThreeSameType(t *testing.T) {
	types := []ErrorType{TypeSearchProvider, TypeTimeout, TypeRateLimit, TypeTokenLimit, TypeParse, TypeNetwork, TypeDB, TypeUnknown}
	for _, typ := range types {
		info := ErrorInfo{Type: typ, Retryable: true}
		got := DetermineStrategy(info, historyOf(typ, typ, typ), 0, DefaultThresholds())
		if got.Action == ActionRetry {
			t.Errorf("%s: got plain RETRY after three same-type errors", typ)
		}
		if typ != TypeTokenLimit && got.Action != ActionSkipStep {
			t.Errorf("%s: Action = %s, want SKIP_STEP", typ, got.Action)
		}
	}
}

func TestDetermineStrategy_CustomThresholds(t *testing.T) {
	th := Thresholds{SameType: 2, AbortRetries: 4}
	got := DetermineStrategy(ErrorInfo{Type: TypeDB}, historyOf(TypeDB, TypeDB), 0, th)
	if got.Action != ActionSkipStep {
		t.Errorf("Action = %s, want SKIP_STEP with same-type threshold 2", got.Action)
	}
	got = DetermineStrategy(ErrorInfo{Type: TypeDB}, historyOf(TypeDB), 4, th)
	if got.Action != ActionAbort {
		t.Errorf("Action = %s, want ABORT with abort threshold 4", got.Action)
	}
}
