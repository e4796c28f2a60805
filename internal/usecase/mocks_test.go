//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"ai-studio-backend/internal/domain"
	"ai-studio-backend/internal/domain/model"
	"ai-studio-backend/internal/domain/ports/adapter"
	"ai-studio-backend/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// -----------------------------
// Job repository (in-memory)
// -----------------------------

type memJobRepo struct {
	mu       sync.RWMutex
	store    map[string]*model.Job
	order    []string // insertion order, stands in for created_at ordering
	saveErr  error
	countErr error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.Job)}
}

func cloneJob(j *model.Job) *model.Job {
	cp := *j
	return &cp
}

func (m *memJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[job.ID]; !ok {
		m.order = append(m.order, job.ID)
	}
	m.store[job.ID] = cloneJob(job)
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *memJobRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	return m.FindByID(ctx, tx, id)
}

func (m *memJobRepo) ListByUser(ctx context.Context, tx repository.Tx, userID, projectID string, limit int) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for i := len(m.order) - 1; i >= 0; i-- {
		j := m.store[m.order[i]]
		if j.UserID != userID {
			continue
		}
		if projectID != "" && j.ProjectID != projectID {
			continue
		}
		out = append(out, cloneJob(j))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memJobRepo) ListForStream(ctx context.Context, userID string, terminalSince time.Time) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for _, id := range m.order {
		j := m.store[id]
		if j.UserID != userID {
			continue
		}
		if j.Active() || (j.CompletedAt != nil && j.CompletedAt.After(terminalSince)) {
			out = append(out, cloneJob(j))
		}
	}
	return out, nil
}

func (m *memJobRepo) ClaimBatch(ctx context.Context, limit int) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for _, id := range m.order {
		j := m.store[id]
		if j.Status != model.JobStatusPending {
			continue
		}
		out = append(out, cloneJob(j))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memJobRepo) CountActiveByUser(ctx context.Context, tx repository.Tx, userID string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, j := range m.store {
		if j.UserID == userID && j.Active() {
			n++
		}
	}
	return n, nil
}

// -----------------------------
// Transaction manager (pass-through)
// -----------------------------

type fakeTxManager struct{}

func (fakeTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// -----------------------------
// Rate counter
// -----------------------------

type fakeRateCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateCounter() *fakeRateCounter {
	return &fakeRateCounter{counts: make(map[string]int64)}
}

func (f *fakeRateCounter) IncrDaily(ctx context.Context, userID string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[userID]++
	return f.counts[userID], nil
}

// -----------------------------
// Checkpoint store (in-memory, JSON round-trip like the real one)
// -----------------------------

type memCheckpointStore struct {
	mu     sync.Mutex
	latest map[string][]byte
	steps  map[string][]string
	putErr error
}

func newMemCheckpointStore() *memCheckpointStore {
	return &memCheckpointStore{
		latest: make(map[string][]byte),
		steps:  make(map[string][]string),
	}
}

func (m *memCheckpointStore) Put(ctx context.Context, threadID, step string, state *model.AgentState) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[threadID] = b
	m.steps[threadID] = append(m.steps[threadID], step)
	return nil
}

func (m *memCheckpointStore) Latest(ctx context.Context, threadID string) (*model.AgentState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.latest[threadID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	var state model.AgentState
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (m *memCheckpointStore) Clear(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.latest, threadID)
	delete(m.steps, threadID)
	return nil
}

func (m *memCheckpointStore) stepsFor(threadID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.steps[threadID]...)
}

// -----------------------------
// Completion adapter (scripted)
// -----------------------------

type scriptedStep struct {
	completion *adapter.Completion
	err        error
}

// scriptedAI replays a fixed sequence of completions. When `repeat` is set the
// last step repeats forever instead of running out.
type scriptedAI struct {
	mu     sync.Mutex
	script []scriptedStep
	pos    int
	repeat bool
	calls  [][]adapter.Message
}

func (s *scriptedAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{"scripted"}, nil
}

func (s *scriptedAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	c, err := s.ChatWithTools(ctx, model, messages, nil)
	if err != nil {
		return "", err
	}
	return c.Content, nil
}

func (s *scriptedAI) ChatWithTools(ctx context.Context, model string, messages []adapter.Message, tools []adapter.ToolSpec) (*adapter.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]adapter.Message(nil), messages...))
	if s.pos >= len(s.script) {
		if !s.repeat || len(s.script) == 0 {
			return &adapter.Completion{Content: "out of script"}, nil
		}
		s.pos = len(s.script) - 1
	}
	step := s.script[s.pos]
	s.pos++
	return step.completion, step.err
}

func replyCompletion(text string) scriptedStep {
	return scriptedStep{completion: &adapter.Completion{Content: text}}
}

func toolCompletion(callID, name, args string) scriptedStep {
	tc := &adapter.WireToolCall{ID: callID, Type: "function"}
	tc.Function.Name = name
	tc.Function.Arguments = args
	return scriptedStep{completion: &adapter.Completion{ToolCall: tc}}
}

// -----------------------------
// Tool executor (configurable)
// -----------------------------

type fakeToolCall struct {
	Name string
	Args string
}

type fakeTools struct {
	mu       sync.Mutex
	decls    []adapter.ToolDeclaration
	results  map[string]json.RawMessage
	errs     map[string]error
	executed []fakeToolCall
}

func newFakeTools(decls ...adapter.ToolDeclaration) *fakeTools {
	return &fakeTools{
		decls:   decls,
		results: make(map[string]json.RawMessage),
		errs:    make(map[string]error),
	}
}

func (f *fakeTools) Declarations() []adapter.ToolDeclaration { return f.decls }

func (f *fakeTools) Declaration(name string) (adapter.ToolDeclaration, bool) {
	for _, d := range f.decls {
		if d.Spec.Name == name {
			return d, true
		}
	}
	return adapter.ToolDeclaration{}, false
}

func (f *fakeTools) Execute(ctx context.Context, userID, projectID, name string, args json.RawMessage) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, fakeToolCall{Name: name, Args: string(args)})
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	if res, ok := f.results[name]; ok {
		return res, nil
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeTools) executedCalls() []fakeToolCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeToolCall(nil), f.executed...)
}

func gatedTool(name string, costMicro int64) adapter.ToolDeclaration {
	return adapter.ToolDeclaration{
		Spec: adapter.ToolSpec{
			Name:        name,
			Description: "test tool " + name,
			Parameters:  json.RawMessage(`{"type":"object"}`),
		},
		RequiresConfirmation: true,
		CostMicroPerCall:     costMicro,
	}
}

func openTool(name string) adapter.ToolDeclaration {
	return adapter.ToolDeclaration{
		Spec: adapter.ToolSpec{
			Name:        name,
			Description: "test tool " + name,
			Parameters:  json.RawMessage(`{"type":"object"}`),
		},
	}
}
