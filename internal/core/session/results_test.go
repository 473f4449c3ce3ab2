package session

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeResult(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		payload string
		want    Result
		wantErr bool
	}{
		{
			name:    "think json",
			step:    StepThink,
			payload: `{"plan":"outline","queries":["a","b"]}`,
			want:    ThinkResult{Plan: "outline", Queries: []string{"a", "b"}},
		},
		{
			name:    "think free text extracts queries",
			step:    StepThink,
			payload: "Outline the thread.\nQUERY: go generics adoption\n- query: sqlite wal mode",
			want: ThinkResult{
				Plan:    "Outline the thread.\nQUERY: go generics adoption\n- query: sqlite wal mode",
				Queries: []string{"go generics adoption", "sqlite wal mode"},
			},
		},
		{
			name:    "execute json",
			step:    StepExecute,
			payload: `{"findings":[{"query":"a","content":"A","citations":["https://x"]}]}`,
			want:    ExecuteResult{Findings: []Finding{{Query: "a", Content: "A", Citations: []string{"https://x"}}}},
		},
		{
			name:    "integrate text",
			step:    StepIntegrate,
			payload: "final draft",
			want:    IntegrateResult{Content: "final draft"},
		},
		{
			name:    "malformed json",
			step:    StepIntegrate,
			payload: `{"content":`,
			wantErr: true,
		},
		{
			name:    "empty",
			step:    StepThink,
			payload: "  ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeResult(tt.step, tt.payload)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DecodeResult() expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeResult() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeResult() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSkippedResultEncodesFlag(t *testing.T) {
	for _, step := range []Step{StepThink, StepExecute, StepIntegrate} {
		encoded, err := EncodeResult(SkippedResult(step))
		if err != nil {
			t.Fatalf("EncodeResult(%s) error = %v", step, err)
		}
		decoded, err := DecodeResult(step, encoded)
		if err != nil {
			t.Fatalf("DecodeResult(%s) error = %v", step, err)
		}
		if !decoded.IsSkipped() || decoded.Step() != step {
			t.Errorf("decoded %s = %+v, want skipped result for same step", step, decoded)
		}
	}
}
