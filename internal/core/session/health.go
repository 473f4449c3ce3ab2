package session

import (
	"fmt"
	"time"
)

// Health thresholds.
const (
	HealthRetryThreshold = 5
	HealthStallTimeout   = 10 * time.Minute
)

// HealthInput is a snapshot of the values the health rules look at.
type HealthInput struct {
	Status          Status
	RetryCount      int
	UpdatedAt       time.Time
	Now             time.Time
	CurrentPhase    int
	CompletedPhases int
}

// HealthReport lists detected issues with one recommendation per issue.
type HealthReport struct {
	Healthy         bool     `json:"healthy"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// CheckHealth evaluates a session snapshot.
func CheckHealth(in HealthInput) HealthReport {
	report := HealthReport{Issues: []string{}, Recommendations: []string{}}

	if in.RetryCount >= HealthRetryThreshold {
		report.Issues = append(report.Issues,
			fmt.Sprintf("session has been retried %d times", in.RetryCount))
		report.Recommendations = append(report.Recommendations,
			"inspect the error history and consider restarting the session with different parameters")
	}

	if in.Status != StatusCompleted && !in.UpdatedAt.IsZero() && in.Now.Sub(in.UpdatedAt) > HealthStallTimeout {
		report.Issues = append(report.Issues,
			fmt.Sprintf("no progress for %s", in.Now.Sub(in.UpdatedAt).Truncate(time.Second)))
		report.Recommendations = append(report.Recommendations,
			"retry from the last successful point or check the queue worker")
	}

	if in.CompletedPhases < in.CurrentPhase-1 {
		report.Issues = append(report.Issues,
			fmt.Sprintf("only %d phases completed but session is at phase %d", in.CompletedPhases, in.CurrentPhase))
		report.Recommendations = append(report.Recommendations,
			"retry from the last successful point to fill in the skipped phases")
	}

	report.Healthy = len(report.Issues) == 0
	return report
}
