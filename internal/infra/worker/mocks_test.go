//go:build !integration

package worker

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-studio-backend/internal/domain"
	"ai-studio-backend/internal/domain/model"
	"ai-studio-backend/internal/domain/ports/adapter"
	"ai-studio-backend/internal/usecase"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// jobsStub records the queue calls handlers and the runner make.
type jobsStub struct {
	mu   sync.Mutex
	jobs map[string]*model.Job

	started    []string
	progress   []int
	completed  map[string]json.RawMessage
	failed     map[string]string
	requeued   map[string][]string
	startErr   error
	notStarted bool
}

var _ usecase.JobUseCase = (*jobsStub)(nil)

func newJobsStub(jobs ...*model.Job) *jobsStub {
	s := &jobsStub{
		jobs:      make(map[string]*model.Job),
		completed: make(map[string]json.RawMessage),
		failed:    make(map[string]string),
		requeued:  make(map[string][]string),
	}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *jobsStub) Lookup(ctx context.Context, jobID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *jobsStub) ClaimBatch(ctx context.Context, limit int) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Job
	for _, j := range s.jobs {
		if j.Status == model.JobStatusPending {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *jobsStub) Start(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return false, s.startErr
	}
	if s.notStarted {
		return false, nil
	}
	s.started = append(s.started, jobID)
	if j, ok := s.jobs[jobID]; ok {
		j.Status = model.JobStatusProcessing
	}
	return true, nil
}

func (s *jobsStub) UpdateProgress(ctx context.Context, jobID string, progress, currentStep int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, progress)
	return nil
}

func (s *jobsStub) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[jobID] = result
	if j, ok := s.jobs[jobID]; ok {
		j.Status = model.JobStatusCompleted
	}
	return nil
}

func (s *jobsStub) Fail(ctx context.Context, jobID, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[jobID] = errorMessage
	if j, ok := s.jobs[jobID]; ok {
		j.Status = model.JobStatusFailed
	}
	return nil
}

func (s *jobsStub) Requeue(ctx context.Context, jobID string, retryCount int, waitingFor []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requeued[jobID] = waitingFor
	if j, ok := s.jobs[jobID]; ok {
		j.Status = model.JobStatusPending
	}
	return nil
}

// User-facing operations are not exercised by the worker.
func (s *jobsStub) Create(ctx context.Context, userID, projectID string, jobType model.JobType, input json.RawMessage, totalSteps int) (*model.Job, error) {
	return nil, domain.ErrInvalidArgument
}
func (s *jobsStub) Get(ctx context.Context, userID, jobID string) (*model.Job, error) {
	return s.Lookup(ctx, jobID)
}
func (s *jobsStub) List(ctx context.Context, userID, projectID string, limit int) ([]*model.Job, error) {
	return nil, nil
}
func (s *jobsStub) ListForStream(ctx context.Context, userID string, terminalSince time.Time) ([]*model.Job, error) {
	return nil, nil
}
func (s *jobsStub) Cancel(ctx context.Context, userID, jobID string) (*model.Job, error) {
	return nil, domain.ErrInvalidArgument
}
func (s *jobsStub) Retry(ctx context.Context, userID, jobID string) (*model.Job, error) {
	return nil, domain.ErrInvalidArgument
}

// chatStub is a canned completion adapter for handler tests.
type chatStub struct {
	reply string
	err   error
}

func (c *chatStub) ListModels(ctx context.Context) ([]string, error) {
	return []string{"stub"}, nil
}

func (c *chatStub) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	return c.reply, c.err
}

func (c *chatStub) ChatWithTools(ctx context.Context, model string, messages []adapter.Message, tools []adapter.ToolSpec) (*adapter.Completion, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &adapter.Completion{Content: c.reply}, nil
}
