//go:build !integration

package web

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rs/zerolog"

	"ai-studio-backend/internal/config"
	"ai-studio-backend/internal/domain"
	"ai-studio-backend/internal/domain/model"
	"ai-studio-backend/internal/usecase"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// jobUCStub lets each test script exactly the calls its handler makes.
type jobUCStub struct {
	CreateFunc        func(ctx context.Context, userID, projectID string, jobType model.JobType, input json.RawMessage, totalSteps int) (*model.Job, error)
	GetFunc           func(ctx context.Context, userID, jobID string) (*model.Job, error)
	ListFunc          func(ctx context.Context, userID, projectID string, limit int) ([]*model.Job, error)
	ListForStreamFunc func(ctx context.Context, userID string, terminalSince time.Time) ([]*model.Job, error)
	CancelFunc        func(ctx context.Context, userID, jobID string) (*model.Job, error)
	RetryFunc         func(ctx context.Context, userID, jobID string) (*model.Job, error)
	LookupFunc        func(ctx context.Context, jobID string) (*model.Job, error)
	ClaimBatchFunc    func(ctx context.Context, limit int) ([]*model.Job, error)
	StartFunc         func(ctx context.Context, jobID string) (bool, error)
	ProgressFunc      func(ctx context.Context, jobID string, progress, currentStep int, message string) error
	CompleteFunc      func(ctx context.Context, jobID string, result json.RawMessage) error
	FailFunc          func(ctx context.Context, jobID, errorMessage string) error
	RequeueFunc       func(ctx context.Context, jobID string, retryCount int, waitingFor []string) error
}

var _ usecase.JobUseCase = (*jobUCStub)(nil)

func (s *jobUCStub) Create(ctx context.Context, userID, projectID string, jobType model.JobType, input json.RawMessage, totalSteps int) (*model.Job, error) {
	if s.CreateFunc == nil {
		return nil, domain.ErrInvalidArgument
	}
	return s.CreateFunc(ctx, userID, projectID, jobType, input, totalSteps)
}

func (s *jobUCStub) Get(ctx context.Context, userID, jobID string) (*model.Job, error) {
	if s.GetFunc == nil {
		return nil, domain.ErrNotFound
	}
	return s.GetFunc(ctx, userID, jobID)
}

func (s *jobUCStub) List(ctx context.Context, userID, projectID string, limit int) ([]*model.Job, error) {
	if s.ListFunc == nil {
		return nil, nil
	}
	return s.ListFunc(ctx, userID, projectID, limit)
}

func (s *jobUCStub) ListForStream(ctx context.Context, userID string, terminalSince time.Time) ([]*model.Job, error) {
	if s.ListForStreamFunc == nil {
		return nil, nil
	}
	return s.ListForStreamFunc(ctx, userID, terminalSince)
}

func (s *jobUCStub) Cancel(ctx context.Context, userID, jobID string) (*model.Job, error) {
	if s.CancelFunc == nil {
		return nil, domain.ErrNotFound
	}
	return s.CancelFunc(ctx, userID, jobID)
}

func (s *jobUCStub) Retry(ctx context.Context, userID, jobID string) (*model.Job, error) {
	if s.RetryFunc == nil {
		return nil, domain.ErrNotFound
	}
	return s.RetryFunc(ctx, userID, jobID)
}

func (s *jobUCStub) Lookup(ctx context.Context, jobID string) (*model.Job, error) {
	if s.LookupFunc == nil {
		return nil, domain.ErrNotFound
	}
	return s.LookupFunc(ctx, jobID)
}

func (s *jobUCStub) ClaimBatch(ctx context.Context, limit int) ([]*model.Job, error) {
	if s.ClaimBatchFunc == nil {
		return nil, nil
	}
	return s.ClaimBatchFunc(ctx, limit)
}

func (s *jobUCStub) Start(ctx context.Context, jobID string) (bool, error) {
	if s.StartFunc == nil {
		return false, domain.ErrNotFound
	}
	return s.StartFunc(ctx, jobID)
}

func (s *jobUCStub) UpdateProgress(ctx context.Context, jobID string, progress, currentStep int, message string) error {
	if s.ProgressFunc == nil {
		return domain.ErrNotFound
	}
	return s.ProgressFunc(ctx, jobID, progress, currentStep, message)
}

func (s *jobUCStub) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	if s.CompleteFunc == nil {
		return domain.ErrNotFound
	}
	return s.CompleteFunc(ctx, jobID, result)
}

func (s *jobUCStub) Fail(ctx context.Context, jobID, errorMessage string) error {
	if s.FailFunc == nil {
		return domain.ErrNotFound
	}
	return s.FailFunc(ctx, jobID, errorMessage)
}

func (s *jobUCStub) Requeue(ctx context.Context, jobID string, retryCount int, waitingFor []string) error {
	if s.RequeueFunc == nil {
		return domain.ErrNotFound
	}
	return s.RequeueFunc(ctx, jobID, retryCount, waitingFor)
}

// agentUCStub replays scripted events and returns a scripted error.
type agentUCStub struct {
	events  []usecase.AgentEvent
	err     error
	lastReq usecase.AgentRequest
}

var _ usecase.AgentUseCase = (*agentUCStub)(nil)

func (s *agentUCStub) Execute(ctx context.Context, req usecase.AgentRequest, emit usecase.EventSink) error {
	s.lastReq = req
	for _, ev := range s.events {
		emit(ev)
	}
	return s.err
}

func testStreamConfig() config.StreamConfig {
	return config.StreamConfig{
		PollInterval:      10 * time.Millisecond,
		HeartbeatInterval: time.Second,
		MaxLifetime:       80 * time.Millisecond,
		TerminalWindow:    5 * time.Minute,
	}
}

func testServer(jobs usecase.JobUseCase, agent usecase.AgentUseCase) *Server {
	return NewServer(jobs, agent, config.ServerConfig{
		SessionSecret: "test-secret",
		WorkerToken:   "worker-token",
	}, testStreamConfig(), true, testLogger())
}

func sampleJob(id, userID string, status model.JobStatus) *model.Job {
	return &model.Job{
		ID:        id,
		UserID:    userID,
		Type:      model.JobTypeImageGeneration,
		Status:    status,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}
