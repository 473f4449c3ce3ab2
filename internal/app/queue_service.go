package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/cotflow/internal/clock"
	"github.com/example/cotflow/internal/core/queue"
	"github.com/example/cotflow/internal/core/session"
	"github.com/example/cotflow/internal/ports/primary"
	"github.com/example/cotflow/internal/ports/secondary"
)

// QueueConfig holds the worker's pacing and retry settings.
type QueueConfig struct {
	PacingDelay    time.Duration
	RequeueDelay   time.Duration
	MaxItemRetries int
	SearchTimeout  time.Duration
}

// DefaultQueueConfig returns the stock queue settings.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		PacingDelay:    queue.PacingDelay,
		RequeueDelay:   queue.RequeueDelay,
		MaxItemRetries: queue.MaxItemRetries,
		SearchTimeout:  2 * time.Minute,
	}
}

// RequestQueueImpl implements the RequestQueue interface.
//
// A single worker goroutine drains items one at a time in FIFO order. It runs
// only while there is dequeueable work and exits when the queue is empty.
type RequestQueueImpl struct {
	sessionRepo secondary.SessionRepository
	itemRepo    secondary.QueueItemRepository
	search      secondary.SearchClient
	resumer     secondary.Resumer
	events      secondary.EventLog
	locks       *SessionLocks
	clock       clock.Clock
	cfg         QueueConfig
	log         *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
	running bool
	wake    chan struct{}
	wg      sync.WaitGroup
}

// NewRequestQueue creates a new RequestQueue with injected dependencies.
// The worker does not run until Start is called.
func NewRequestQueue(
	sessionRepo secondary.SessionRepository,
	itemRepo secondary.QueueItemRepository,
	search secondary.SearchClient,
	resumer secondary.Resumer,
	events secondary.EventLog,
	locks *SessionLocks,
	clk clock.Clock,
	cfg QueueConfig,
	log *zap.Logger,
) *RequestQueueImpl {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxItemRetries <= 0 {
		cfg.MaxItemRetries = queue.MaxItemRetries
	}
	return &RequestQueueImpl{
		sessionRepo: sessionRepo,
		itemRepo:    itemRepo,
		search:      search,
		resumer:     resumer,
		events:      events,
		locks:       locks,
		clock:       clk,
		cfg:         cfg,
		log:         log.Named("queue"),
		wake:        make(chan struct{}, 1),
	}
}

// Enqueue creates one PENDING item per request and parks the session on the queue.
// Enqueueing again for the phase the session already waits on extends the tracked set.
func (q *RequestQueueImpl) Enqueue(ctx context.Context, req primary.EnqueueRequest) ([]string, error) {
	unlock := q.locks.Lock(req.SessionID)
	ids, err := q.enqueue(ctx, req)
	unlock()
	if err != nil {
		return nil, err
	}

	if q.events != nil {
		detail := fmt.Sprintf("phase=%d items=%d", req.Phase, len(ids))
		if err := q.events.Append(ctx, req.SessionID, secondary.EventQueueEnqueued, detail); err != nil {
			q.log.Warn("failed to audit enqueue", zap.String("session_id", req.SessionID), zap.Error(err))
		}
	}
	q.log.Info("requests enqueued",
		zap.String("session_id", req.SessionID),
		zap.Int("phase", req.Phase),
		zap.Int("count", len(ids)))

	q.ensureWorker()
	return ids, nil
}

func (q *RequestQueueImpl) enqueue(ctx context.Context, req primary.EnqueueRequest) ([]string, error) {
	// 1. Guards
	record, err := q.sessionRepo.GetByID(ctx, req.SessionID)
	if err != nil && !errors.Is(err, secondary.ErrNotFound) {
		return nil, err
	}
	guard := queue.CanEnqueue(queue.EnqueueContext{
		SessionID:     req.SessionID,
		SessionExists: record != nil,
		Phase:         req.Phase,
		Requests:      req.Requests,
	})
	if err := guard.Error(); err != nil {
		if record == nil {
			return nil, fmt.Errorf("%w: %s", primary.ErrSessionNotFound, req.SessionID)
		}
		return nil, err
	}
	from := session.Status(record.Status)
	if t := session.CanTransition(from, session.StatusWaitingOnQueue); !t.Allowed {
		return nil, t.Error()
	}
	md, err := session.ParseMetadata(record.Metadata)
	if err != nil {
		return nil, err
	}

	// 2. Items
	now := secondary.FormatTime(q.clock.Now())
	ids := make([]string, len(req.Requests))
	items := make([]*secondary.QueueItemRecord, len(req.Requests))
	for i, r := range req.Requests {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request %d: %w", i, err)
		}
		ids[i] = uuid.NewString()
		items[i] = &secondary.QueueItemRecord{
			ID:          ids[i],
			SessionID:   req.SessionID,
			PhaseNumber: req.Phase,
			Request:     string(raw),
			Status:      string(queue.StatusPending),
			AvailableAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	if err := q.itemRepo.CreateBatch(ctx, items); err != nil {
		return nil, err
	}

	// 3. Park the session
	if from == session.StatusWaitingOnQueue && md.QueuePhase == req.Phase {
		md.QueueIDs = append(md.QueueIDs, ids...)
	} else {
		md.QueueIDs = ids
		md.QueuePhase = req.Phase
	}
	raw, err := md.Encode()
	if err != nil {
		return nil, err
	}
	record.Metadata = raw
	record.Status = string(session.StatusWaitingOnQueue)
	record.CurrentPhase = req.Phase
	record.CurrentStep = string(session.StepExecute)
	record.UpdatedAt = now
	if err := q.sessionRepo.Update(ctx, record); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetQueueStatus returns counts and items, optionally for one session.
func (q *RequestQueueImpl) GetQueueStatus(ctx context.Context, sessionID string) (*primary.QueueStatus, error) {
	counts, err := q.itemRepo.CountByStatus(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	records, err := q.itemRepo.List(ctx, secondary.QueueItemFilters{SessionID: sessionID})
	if err != nil {
		return nil, err
	}

	items := make([]*primary.QueueItem, 0, len(records))
	for _, r := range records {
		item := &primary.QueueItem{
			ID:          r.ID,
			SessionID:   r.SessionID,
			PhaseNumber: r.PhaseNumber,
			Status:      r.Status,
			RetryCount:  r.RetryCount,
			Error:       r.Error,
			AvailableAt: r.AvailableAt,
			CreatedAt:   r.CreatedAt,
			ProcessedAt: r.ProcessedAt,
		}
		if err := json.Unmarshal([]byte(r.Request), &item.Request); err != nil {
			q.log.Warn("unreadable queue request", zap.String("item_id", r.ID), zap.Error(err))
		}
		items = append(items, item)
	}

	q.mu.Lock()
	running := q.running
	q.mu.Unlock()
	return &primary.QueueStatus{Running: running, Counts: counts, Items: items}, nil
}

// GetQueueResponses returns the given items ordered by creation time.
func (q *RequestQueueImpl) GetQueueResponses(ctx context.Context, ids []string) ([]*primary.QueueResponse, error) {
	records, err := q.itemRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*primary.QueueResponse, 0, len(records))
	for _, r := range records {
		resp := &primary.QueueResponse{
			ID:          r.ID,
			PhaseNumber: r.PhaseNumber,
			Status:      r.Status,
			Error:       r.Error,
			CreatedAt:   r.CreatedAt,
		}
		if err := json.Unmarshal([]byte(r.Request), &resp.Request); err != nil {
			return nil, fmt.Errorf("invalid request on queue item %s: %w", r.ID, err)
		}
		if r.Response != "" {
			var body queue.Response
			if err := json.Unmarshal([]byte(r.Response), &body); err != nil {
				return nil, fmt.Errorf("invalid response on queue item %s: %w", r.ID, err)
			}
			resp.Response = &body
		}
		out = append(out, resp)
	}
	return out, nil
}

// Start enables the worker, recovering items left in PROCESSING by an earlier run.
// Calling Start on a running queue is a no-op.
func (q *RequestQueueImpl) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return primary.ErrQueueStopped
	}
	if q.started {
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	n, err := q.itemRepo.ResetProcessing(ctx, secondary.FormatTime(q.clock.Now()))
	if err != nil {
		return err
	}
	if n > 0 {
		q.log.Info("recovered interrupted queue items", zap.Int("count", n))
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return primary.ErrQueueStopped
	}
	q.ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	q.started = true
	q.mu.Unlock()

	q.ensureWorker()
	return nil
}

// Stop halts the worker and waits for it to exit. An item being searched stays
// PROCESSING and is recovered by the next Start.
func (q *RequestQueueImpl) Stop() {
	q.mu.Lock()
	q.stopped = true
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// ensureWorker starts the worker when it is idle, or wakes it when it is sleeping.
func (q *RequestQueueImpl) ensureWorker() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started || q.stopped {
		return
	}
	if q.running {
		select {
		case q.wake <- struct{}{}:
		default:
		}
		return
	}
	q.running = true
	q.wg.Add(1)
	go q.work(q.ctx)
}

func (q *RequestQueueImpl) work(ctx context.Context) {
	defer q.wg.Done()
	q.log.Debug("queue worker started")

	for ctx.Err() == nil {
		now := q.clock.Now()
		item, err := q.itemRepo.ClaimNext(ctx, secondary.FormatTime(now), q.cfg.MaxItemRetries)
		if err != nil {
			q.log.Error("failed to claim queue item", zap.Error(err))
			if !q.sleep(ctx, q.cfg.PacingDelay, false) {
				break
			}
			continue
		}

		if item == nil {
			wait, more := q.nextWait(ctx, now)
			if !more {
				if q.idle(ctx) {
					q.log.Debug("queue worker idle")
					return
				}
				continue
			}
			if !q.sleep(ctx, wait, true) {
				break
			}
			continue
		}

		q.process(ctx, item)
		if !q.sleep(ctx, q.cfg.PacingDelay, false) {
			break
		}
	}

	q.mu.Lock()
	q.running = false
	q.mu.Unlock()
	q.log.Debug("queue worker stopped")
}

// nextWait returns how long until the earliest requeued item becomes available.
func (q *RequestQueueImpl) nextWait(ctx context.Context, now time.Time) (time.Duration, bool) {
	next, ok, err := q.itemRepo.NextAvailableAt(ctx, q.cfg.MaxItemRetries)
	if err != nil {
		q.log.Error("failed to read next queue deadline", zap.Error(err))
		return q.cfg.RequeueDelay, true
	}
	if !ok {
		return 0, false
	}
	at, err := secondary.ParseTime(next)
	if err != nil {
		return q.cfg.RequeueDelay, true
	}
	return at.Sub(now), true
}

// idle clears the running flag and reports whether the worker may exit. Work that
// was enqueued while the flag was still set is picked up by re-checking afterwards.
func (q *RequestQueueImpl) idle(ctx context.Context) bool {
	q.mu.Lock()
	q.running = false
	q.mu.Unlock()

	if _, more := q.nextWait(ctx, q.clock.Now()); !more {
		return true
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running || q.stopped {
		return true
	}
	q.running = true
	return false
}

// sleep waits for d on the injected clock. It returns false when ctx is done.
// Only a wakeable sleep ends early on Enqueue; the pacing delay always runs in full.
func (q *RequestQueueImpl) sleep(ctx context.Context, d time.Duration, wakeable bool) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	done := make(chan struct{})
	t := q.clock.AfterFunc(d, func() { close(done) })
	defer t.Stop()

	var wake <-chan struct{}
	if wakeable {
		wake = q.wake
	}
	select {
	case <-ctx.Done():
		return false
	case <-done:
		return true
	case <-wake:
		return true
	}
}

func (q *RequestQueueImpl) process(ctx context.Context, item *secondary.QueueItemRecord) {
	log := q.log.With(zap.String("item_id", item.ID), zap.String("session_id", item.SessionID))

	var req queue.Request
	searchErr := json.Unmarshal([]byte(item.Request), &req)
	var resp *secondary.SearchResponse
	if searchErr == nil {
		sctx := ctx
		if q.cfg.SearchTimeout > 0 {
			var cancel context.CancelFunc
			sctx, cancel = context.WithTimeout(ctx, q.cfg.SearchTimeout)
			defer cancel()
		}
		resp, searchErr = q.search.Search(sctx, secondary.SearchRequest{Query: req.Query, Intent: req.Intent})
	}
	if ctx.Err() != nil {
		log.Info("search interrupted by shutdown; item stays processing")
		return
	}

	now := q.clock.Now()
	if searchErr != nil {
		outcome := queue.PlanFailure(item.RetryCount, now, q.cfg.MaxItemRetries, q.cfg.RequeueDelay)
		f := secondary.QueueFailure{
			Error:      searchErr.Error(),
			RetryCount: outcome.RetryCount,
			Requeue:    outcome.Requeue,
			UpdatedAt:  secondary.FormatTime(now),
		}
		if outcome.Requeue {
			f.AvailableAt = secondary.FormatTime(outcome.AvailableAt)
		}
		if err := q.itemRepo.Fail(ctx, item.ID, f); err != nil {
			log.Error("failed to record search failure", zap.Error(err))
			return
		}
		log.Warn("search failed",
			zap.Int("retry_count", outcome.RetryCount),
			zap.Bool("requeued", outcome.Requeue),
			zap.Error(searchErr))
	} else {
		body, err := json.Marshal(queue.Response{Content: resp.Content, Citations: resp.Citations})
		if err != nil {
			log.Error("failed to encode search response", zap.Error(err))
			return
		}
		if err := q.itemRepo.Complete(ctx, item.ID, string(body), secondary.FormatTime(now)); err != nil {
			log.Error("failed to store search response", zap.Error(err))
			return
		}
		log.Debug("search completed")
	}

	q.checkSession(ctx, item.SessionID)
}

// checkSession resumes a waiting session once every tracked item has resolved.
// The status compare-and-set makes the resume happen exactly once.
func (q *RequestQueueImpl) checkSession(ctx context.Context, sessionID string) {
	log := q.log.With(zap.String("session_id", sessionID))

	unlock := q.locks.Lock(sessionID)
	resumed, err := q.drainSession(ctx, sessionID)
	unlock()
	if err != nil {
		log.Error("failed to check queued session", zap.Error(err))
		return
	}
	if !resumed {
		return
	}

	if q.events != nil {
		if err := q.events.Append(ctx, sessionID, secondary.EventQueueDrained, ""); err != nil {
			log.Warn("failed to audit queue drain", zap.Error(err))
		}
	}
	log.Info("queued work resolved; resuming session")
	if q.resumer == nil {
		return
	}
	if err := q.resumer.ResumeSession(ctx, sessionID); err != nil {
		log.Error("failed to resume session", zap.Error(err))
	}
}

func (q *RequestQueueImpl) drainSession(ctx context.Context, sessionID string) (bool, error) {
	record, err := q.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if record.Status != string(session.StatusWaitingOnQueue) {
		return false, nil
	}
	md, err := session.ParseMetadata(record.Metadata)
	if err != nil {
		return false, err
	}

	items, err := q.itemRepo.GetByIDs(ctx, md.QueueIDs)
	if err != nil {
		return false, err
	}
	states := make(map[string]queue.ItemState, len(items))
	for _, it := range items {
		states[it.ID] = queue.ItemState{Status: queue.ItemStatus(it.Status), RetryCount: it.RetryCount}
	}
	if !queue.AllResolved(md.QueueIDs, states, q.cfg.MaxItemRetries) {
		return false, nil
	}

	return q.sessionRepo.UpdateStatusIf(ctx, sessionID,
		[]string{string(session.StatusWaitingOnQueue)},
		string(session.StatusExecuting),
		secondary.FormatTime(q.clock.Now()))
}

// Ensure RequestQueueImpl implements the interface
var _ primary.RequestQueue = (*RequestQueueImpl)(nil)
