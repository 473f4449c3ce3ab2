package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/example/cotflow/internal/ports/secondary"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// ============================================================================
// Mock Repositories
// ============================================================================

type mockSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*secondary.SessionRecord
	order    []string
	failNext error
}

func newMockSessionRepository() *mockSessionRepository {
	return &mockSessionRepository{sessions: make(map[string]*secondary.SessionRecord)}
}

func (m *mockSessionRepository) Create(ctx context.Context, s *secondary.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	cp := *s
	if cp.ErrorHistory == "" {
		cp.ErrorHistory = "[]"
	}
	if cp.Metadata == "" {
		cp.Metadata = "{}"
	}
	m.sessions[s.ID] = &cp
	m.order = append(m.order, s.ID)
	return nil
}

func (m *mockSessionRepository) GetByID(ctx context.Context, id string) (*secondary.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, secondary.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepository) Update(ctx context.Context, s *secondary.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	if _, ok := m.sessions[s.ID]; !ok {
		return fmt.Errorf("session %s: %w", s.ID, secondary.ErrNotFound)
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockSessionRepository) UpdateStatusIf(ctx context.Context, id string, from []string, to, updatedAt string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if s.Status == f {
			s.Status = to
			s.UpdatedAt = updatedAt
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSessionRepository) List(ctx context.Context, filters secondary.SessionFilters) ([]*secondary.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.SessionRecord
	for i := len(m.order) - 1; i >= 0; i-- {
		s := m.sessions[m.order[i]]
		if filters.Status != "" && s.Status != filters.Status {
			continue
		}
		cp := *s
		out = append(out, &cp)
		if filters.Limit > 0 && len(out) == filters.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockSessionRepository) ListScheduledRetries(ctx context.Context) ([]*secondary.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.SessionRecord
	for _, id := range m.order {
		s := m.sessions[id]
		if s.Status == "FAILED" && s.NextRetryAt != "" {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockSessionRepository) get(t *testing.T, id string) *secondary.SessionRecord {
	t.Helper()
	s, err := m.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("session %s: %v", id, err)
	}
	return s
}

type mockPhaseRepository struct {
	mu     sync.Mutex
	phases map[string]map[int]*secondary.PhaseRecord
}

func newMockPhaseRepository() *mockPhaseRepository {
	return &mockPhaseRepository{phases: make(map[string]map[int]*secondary.PhaseRecord)}
}

func (m *mockPhaseRepository) UpsertStepResult(ctx context.Context, res *secondary.StepResultRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySession, ok := m.phases[res.SessionID]
	if !ok {
		bySession = make(map[int]*secondary.PhaseRecord)
		m.phases[res.SessionID] = bySession
	}
	p, ok := bySession[res.PhaseNumber]
	if !ok {
		p = &secondary.PhaseRecord{SessionID: res.SessionID, PhaseNumber: res.PhaseNumber, CreatedAt: res.At}
		bySession[res.PhaseNumber] = p
	}
	switch res.Step {
	case "THINK":
		p.ThinkResult, p.ThinkPrompt, p.ThinkTokens, p.ThinkAt = res.Result, res.Prompt, res.Tokens, res.At
	case "EXECUTE":
		p.ExecuteResult, p.ExecutePrompt, p.ExecuteTokens, p.ExecuteAt = res.Result, res.Prompt, res.Tokens, res.At
	case "INTEGRATE":
		p.IntegrateResult, p.IntegratePrompt, p.IntegrateTokens, p.IntegrateAt = res.Result, res.Prompt, res.Tokens, res.At
	default:
		return fmt.Errorf("invalid step %q", res.Step)
	}
	if p.Status != "completed" {
		p.Status = res.PhaseStatus
	}
	p.UpdatedAt = res.At
	return nil
}

func (m *mockPhaseRepository) Get(ctx context.Context, sessionID string, phaseNumber int) (*secondary.PhaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phases[sessionID][phaseNumber]
	if !ok {
		return nil, fmt.Errorf("phase %d: %w", phaseNumber, secondary.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *mockPhaseRepository) ListBySession(ctx context.Context, sessionID string) ([]*secondary.PhaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.PhaseRecord
	for _, p := range m.phases[sessionID] {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhaseNumber < out[j].PhaseNumber })
	return out, nil
}

type mockQueueItemRepository struct {
	mu    sync.Mutex
	items []*secondary.QueueItemRecord
}

func newMockQueueItemRepository() *mockQueueItemRepository {
	return &mockQueueItemRepository{}
}

func (m *mockQueueItemRepository) CreateBatch(ctx context.Context, items []*secondary.QueueItemRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		cp := *it
		if cp.AvailableAt == "" {
			cp.AvailableAt = cp.CreatedAt
		}
		m.items = append(m.items, &cp)
	}
	return nil
}

func (m *mockQueueItemRepository) GetByIDs(ctx context.Context, ids []string) ([]*secondary.QueueItemRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*secondary.QueueItemRecord
	for _, it := range m.items {
		if want[it.ID] {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockQueueItemRepository) List(ctx context.Context, filters secondary.QueueItemFilters) ([]*secondary.QueueItemRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.QueueItemRecord
	for _, it := range m.items {
		if filters.SessionID != "" && it.SessionID != filters.SessionID {
			continue
		}
		if filters.Status != "" && it.Status != filters.Status {
			continue
		}
		cp := *it
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockQueueItemRepository) ClaimNext(ctx context.Context, now string, maxRetries int) (*secondary.QueueItemRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.Status == "PENDING" && it.RetryCount < maxRetries && it.AvailableAt <= now {
			it.Status = "PROCESSING"
			it.UpdatedAt = now
			cp := *it
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockQueueItemRepository) find(id string) *secondary.QueueItemRecord {
	for _, it := range m.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (m *mockQueueItemRepository) Complete(ctx context.Context, id, response, processedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.find(id)
	if it == nil || it.Status != "PROCESSING" {
		return secondary.ErrNotFound
	}
	it.Status = "COMPLETED"
	it.Response = response
	it.Error = ""
	it.ProcessedAt = processedAt
	it.UpdatedAt = processedAt
	return nil
}

func (m *mockQueueItemRepository) Fail(ctx context.Context, id string, f secondary.QueueFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.find(id)
	if it == nil || it.Status != "PROCESSING" {
		return secondary.ErrNotFound
	}
	it.Error = f.Error
	it.RetryCount = f.RetryCount
	it.UpdatedAt = f.UpdatedAt
	if f.Requeue {
		it.Status = "PENDING"
		if f.AvailableAt != "" {
			it.AvailableAt = f.AvailableAt
		}
		return nil
	}
	it.Status = "FAILED"
	it.ProcessedAt = f.UpdatedAt
	return nil
}

func (m *mockQueueItemRepository) NextAvailableAt(ctx context.Context, maxRetries int) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, ok := "", false
	for _, it := range m.items {
		if it.Status == "PENDING" && it.RetryCount < maxRetries && (!ok || it.AvailableAt < next) {
			next, ok = it.AvailableAt, true
		}
	}
	return next, ok, nil
}

func (m *mockQueueItemRepository) ResetProcessing(ctx context.Context, updatedAt string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, it := range m.items {
		if it.Status == "PROCESSING" {
			it.Status = "PENDING"
			it.UpdatedAt = updatedAt
			n++
		}
	}
	return n, nil
}

func (m *mockQueueItemRepository) CountByStatus(ctx context.Context, sessionID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, it := range m.items {
		if sessionID == "" || it.SessionID == sessionID {
			counts[it.Status]++
		}
	}
	return counts, nil
}

func (m *mockQueueItemRepository) statuses() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.items))
	for _, it := range m.items {
		out[it.ID] = it.Status
	}
	return out
}

type mockEventLog struct {
	mu     sync.Mutex
	events []*secondary.SessionEventRecord
}

func newMockEventLog() *mockEventLog {
	return &mockEventLog{}
}

func (m *mockEventLog) Append(ctx context.Context, sessionID, event, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, &secondary.SessionEventRecord{
		ID:        int64(len(m.events) + 1),
		SessionID: sessionID,
		Event:     event,
		Detail:    detail,
	})
	return nil
}

func (m *mockEventLog) List(ctx context.Context, sessionID string, limit int) ([]*secondary.SessionEventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.SessionEventRecord
	for _, e := range m.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockEventLog) count(sessionID, event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.SessionID == sessionID && e.Event == event {
			n++
		}
	}
	return n
}

// ============================================================================
// Mock Collaborators
// ============================================================================

type triggerCall struct {
	SessionID string
	Phase     int
	Step      string
}

type mockTrigger struct {
	mu      sync.Mutex
	err     error
	calls   []triggerCall
	resumes []string
}

func (m *mockTrigger) TriggerStep(ctx context.Context, sessionID string, phase int, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, triggerCall{SessionID: sessionID, Phase: phase, Step: step})
	return nil
}

func (m *mockTrigger) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockTrigger) ResumeSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes = append(m.resumes, sessionID)
	return nil
}

func (m *mockTrigger) triggered() []triggerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]triggerCall(nil), m.calls...)
}

func (m *mockTrigger) resumed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.resumes...)
}

type mockNotifier struct {
	mu     sync.Mutex
	events []secondary.Notification
}

func (m *mockNotifier) Notify(ctx context.Context, n secondary.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, n)
	return nil
}

func (m *mockNotifier) notified() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, n := range m.events {
		out = append(out, n.Event)
	}
	return out
}

// mockSearch answers every query, failing the ones listed in fail.
type mockSearch struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func newMockSearch() *mockSearch {
	return &mockSearch{fail: make(map[string]error)}
}

func (m *mockSearch) Search(ctx context.Context, req secondary.SearchRequest) (*secondary.SearchResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req.Query)
	if err, ok := m.fail[req.Query]; ok {
		return nil, err
	}
	return &secondary.SearchResponse{
		Content:   "answer for " + req.Query,
		Citations: []string{"https://example.com/" + req.Query},
	}, nil
}

func (m *mockSearch) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockGenerator returns scripted responses per prompt kind.
type mockGenerator struct {
	mu      sync.Mutex
	prompts []string
	err     error
	respond func(req secondary.GenerateRequest) string
}

func (m *mockGenerator) Generate(ctx context.Context, req secondary.GenerateRequest) (*secondary.GenerateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, req.Prompt)
	if m.err != nil {
		return nil, m.err
	}
	text := "generated"
	if m.respond != nil {
		text = m.respond(req)
	}
	return &secondary.GenerateResponse{Text: text, Tokens: len(req.Prompt) / 4}, nil
}

var errBoom = errors.New("boom")
