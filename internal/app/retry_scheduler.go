package app

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/cotflow/internal/clock"
)

// RetryFunc is invoked when a session's retry timer fires.
type RetryFunc func(sessionID string)

// RetryScheduler keeps at most one pending retry timer per session.
type RetryScheduler struct {
	clock clock.Clock
	log   *zap.Logger

	mu      sync.Mutex
	handler RetryFunc
	timers  map[string]*scheduledRetry
	stopped bool
	inUse   sync.WaitGroup
}

type scheduledRetry struct {
	timer clock.Timer
	at    time.Time
}

// NewRetryScheduler creates a scheduler on clk.
func NewRetryScheduler(clk clock.Clock, log *zap.Logger) *RetryScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RetryScheduler{
		clock:  clk,
		log:    log.Named("retry"),
		timers: make(map[string]*scheduledRetry),
	}
}

// Bind sets the function run when a timer fires.
func (s *RetryScheduler) Bind(fn RetryFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

// Schedule arms a retry for sessionID after delay, replacing any pending one.
// It returns the time the retry is due.
func (s *RetryScheduler) Schedule(sessionID string, delay time.Duration) time.Time {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.clock.Now().Add(delay)
	if s.stopped {
		return at
	}
	if prev, ok := s.timers[sessionID]; ok {
		prev.timer.Stop()
	}

	entry := &scheduledRetry{at: at}
	entry.timer = s.clock.AfterFunc(delay, func() { s.fire(sessionID, entry) })
	s.timers[sessionID] = entry
	s.log.Debug("retry scheduled", zap.String("session_id", sessionID), zap.Duration("delay", delay))
	return at
}

func (s *RetryScheduler) fire(sessionID string, entry *scheduledRetry) {
	s.mu.Lock()
	if s.stopped || s.timers[sessionID] != entry {
		s.mu.Unlock()
		return
	}
	delete(s.timers, sessionID)
	handler := s.handler
	s.inUse.Add(1)
	s.mu.Unlock()
	defer s.inUse.Done()

	if handler != nil {
		handler(sessionID)
	}
}

// Cancel drops the pending retry of sessionID. Returns false when none was armed.
func (s *RetryScheduler) Cancel(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.timers[sessionID]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.timers, sessionID)
	return true
}

// Pending returns the number of armed timers.
func (s *RetryScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every timer and waits for running handlers to return.
func (s *RetryScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.inUse.Wait()
}
