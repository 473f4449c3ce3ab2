// Package clock provides an injectable time source so that delayed retries,
// queue re-delivery and health thresholds can be exercised deterministically.
package clock

import "time"

// Timer is the subset of *time.Timer used by callers.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall-clock reads and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is a Clock backed by the time package.
type Real struct{}

// New returns the real clock.
func New() Real { return Real{} }

// Now returns the current UTC time.
func (Real) Now() time.Time { return time.Now().UTC() }

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
