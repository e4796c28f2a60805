package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"ai-studio-backend/internal/domain"
	"ai-studio-backend/internal/domain/model"
	"ai-studio-backend/internal/domain/ports/repository"
	"ai-studio-backend/internal/infra/logging"
	"ai-studio-backend/internal/infra/metrics"
)

// Compile-time check
var _ JobUseCase = (*jobUC)(nil)

// JobUseCase is the queue API. User-facing operations are authorized by
// ownership; worker-facing operations are authorized by the capability token
// at the web boundary, not here.
type JobUseCase interface {
	Create(ctx context.Context, userID, projectID string, jobType model.JobType, input json.RawMessage, totalSteps int) (*model.Job, error)
	Get(ctx context.Context, userID, jobID string) (*model.Job, error)
	List(ctx context.Context, userID, projectID string, limit int) ([]*model.Job, error)
	ListForStream(ctx context.Context, userID string, terminalSince time.Time) ([]*model.Job, error)
	Cancel(ctx context.Context, userID, jobID string) (*model.Job, error)
	Retry(ctx context.Context, userID, jobID string) (*model.Job, error)

	// Worker-facing.
	Lookup(ctx context.Context, jobID string) (*model.Job, error)
	ClaimBatch(ctx context.Context, limit int) ([]*model.Job, error)
	Start(ctx context.Context, jobID string) (bool, error)
	UpdateProgress(ctx context.Context, jobID string, progress, currentStep int, message string) error
	Complete(ctx context.Context, jobID string, result json.RawMessage) error
	Fail(ctx context.Context, jobID, errorMessage string) error
	Requeue(ctx context.Context, jobID string, retryCount int, waitingFor []string) error
}

type JobLimits struct {
	MaxActivePerUser int
	MaxDailyPerUser  int
}

type jobUC struct {
	jobs   repository.JobRepository
	rates  repository.RateCounter
	tm     repository.TransactionManager
	limits JobLimits
	log    *zerolog.Logger
}

func NewJobUseCase(jobs repository.JobRepository, rates repository.RateCounter, tm repository.TransactionManager, limits JobLimits, log *zerolog.Logger) *jobUC {
	if limits.MaxActivePerUser <= 0 {
		limits.MaxActivePerUser = 10
	}
	if limits.MaxDailyPerUser <= 0 {
		limits.MaxDailyPerUser = 1000
	}
	return &jobUC{jobs: jobs, rates: rates, tm: tm, limits: limits, log: log}
}

// Create enqueues a new pending job. Rate-limit check failures fail open: a
// user is never blocked because the counter store is down.
func (u *jobUC) Create(ctx context.Context, userID, projectID string, jobType model.JobType, input json.RawMessage, totalSteps int) (*model.Job, error) {
	defer logging.TraceDuration(u.log, "JobUC.Create")()
	if userID == "" || !model.KnownJobType(jobType) {
		return nil, domain.ErrInvalidArgument
	}

	active, err := u.jobs.CountActiveByUser(ctx, nil, userID)
	if err != nil {
		u.log.Warn().Err(err).Str("user_id", userID).Msg("active-job count unavailable, allowing create")
	} else if active >= u.limits.MaxActivePerUser {
		metrics.IncJobCreateRefused("active")
		return nil, fmt.Errorf("%w: %d jobs in flight (cap %d)", domain.ErrRateLimited, active, u.limits.MaxActivePerUser)
	}

	if u.rates != nil {
		today, err := u.rates.IncrDaily(ctx, userID)
		if err != nil {
			u.log.Warn().Err(err).Str("user_id", userID).Msg("daily counter unavailable, allowing create")
		} else if today > int64(u.limits.MaxDailyPerUser) {
			metrics.IncJobCreateRefused("daily")
			return nil, fmt.Errorf("%w: %d jobs today (cap %d)", domain.ErrRateLimited, today, u.limits.MaxDailyPerUser)
		}
	}

	job := &model.Job{
		ID:         uuid.NewString(),
		UserID:     userID,
		ProjectID:  projectID,
		Type:       jobType,
		Status:     model.JobStatusPending,
		TotalSteps: totalSteps,
		InputData:  input,
		CreatedAt:  time.Now(),
	}
	if err := u.jobs.Save(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	metrics.IncJobCreated(string(jobType))
	u.log.Info().Str("job_id", job.ID).Str("type", string(jobType)).Str("user_id", userID).Msg("job created")
	return job, nil
}

func (u *jobUC) Get(ctx context.Context, userID, jobID string) (*model.Job, error) {
	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrUnauthorized
	}
	return job, nil
}

func (u *jobUC) List(ctx context.Context, userID, projectID string, limit int) ([]*model.Job, error) {
	return u.jobs.ListByUser(ctx, nil, userID, projectID, limit)
}

func (u *jobUC) ListForStream(ctx context.Context, userID string, terminalSince time.Time) ([]*model.Job, error) {
	return u.jobs.ListForStream(ctx, userID, terminalSince)
}

// Lookup is the worker-side read: the caller is a backend process, not the
// owner, so no ownership check applies.
func (u *jobUC) Lookup(ctx context.Context, jobID string) (*model.Job, error) {
	return u.jobs.FindByID(ctx, nil, jobID)
}

func (u *jobUC) ClaimBatch(ctx context.Context, limit int) ([]*model.Job, error) {
	jobs, err := u.jobs.ClaimBatch(ctx, limit)
	if err != nil {
		return nil, err
	}
	metrics.AddJobsClaimed(len(jobs))
	return jobs, nil
}

// Start moves pending → processing. A job no longer pending is left
// untouched, so duplicate or late Start calls are harmless; the returned bool
// tells the worker whether it owns the job.
func (u *jobUC) Start(ctx context.Context, jobID string) (bool, error) {
	started := false
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := u.jobs.FindByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Status != model.JobStatusPending {
			return nil
		}
		now := time.Now()
		job.Status = model.JobStatusProcessing
		job.StartedAt = &now
		started = true
		return u.jobs.Save(ctx, tx, job)
	})
	if err != nil {
		return false, err
	}
	if started {
		metrics.IncJobTransition(string(model.JobStatusProcessing))
	}
	return started, nil
}

func (u *jobUC) UpdateProgress(ctx context.Context, jobID string, progress, currentStep int, message string) error {
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := u.jobs.FindByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Status != model.JobStatusProcessing {
			return fmt.Errorf("%w: progress update on %s job", domain.ErrInvalidTransition, job.Status)
		}
		job.Progress = model.ClampProgress(progress)
		if currentStep > 0 {
			job.CurrentStep = currentStep
		}
		if message != "" {
			job.ProgressMessage = message
		}
		return u.jobs.Save(ctx, tx, job)
	})
}

func (u *jobUC) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	return u.terminate(ctx, jobID, model.JobStatusCompleted, func(job *model.Job) {
		job.Progress = 100
		job.ResultData = result
	})
}

func (u *jobUC) Fail(ctx context.Context, jobID, errorMessage string) error {
	return u.terminate(ctx, jobID, model.JobStatusFailed, func(job *model.Job) {
		job.ErrorMessage = errorMessage
	})
}

// terminate performs the one-way transition into a terminal status and sets
// completedAt exactly once.
func (u *jobUC) terminate(ctx context.Context, jobID string, status model.JobStatus, mutate func(*model.Job)) error {
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := u.jobs.FindByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Terminal() {
			return fmt.Errorf("%w: job already %s", domain.ErrInvalidTransition, job.Status)
		}
		now := time.Now()
		job.Status = status
		job.CompletedAt = &now
		mutate(job)
		return u.jobs.Save(ctx, tx, job)
	})
	if err == nil {
		metrics.IncJobTransition(string(status))
	}
	return err
}

func (u *jobUC) Cancel(ctx context.Context, userID, jobID string) (*model.Job, error) {
	var out *model.Job
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := u.jobs.FindByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.UserID != userID {
			return domain.ErrUnauthorized
		}
		if !job.CanCancel() {
			return fmt.Errorf("%w: cancel on %s job", domain.ErrInvalidTransition, job.Status)
		}
		now := time.Now()
		job.Status = model.JobStatusCancelled
		job.CompletedAt = &now
		out = job
		return u.jobs.Save(ctx, tx, job)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncJobTransition(string(model.JobStatusCancelled))
	return out, nil
}

// Retry clones a failed or cancelled job into a fresh pending row. The old
// row is never mutated, preserving audit history.
func (u *jobUC) Retry(ctx context.Context, userID, jobID string) (*model.Job, error) {
	old, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if old.UserID != userID {
		return nil, domain.ErrUnauthorized
	}
	if !old.CanRetry() {
		return nil, fmt.Errorf("%w: retry on %s job", domain.ErrInvalidTransition, old.Status)
	}
	return u.Create(ctx, old.UserID, old.ProjectID, old.Type, old.InputData, old.TotalSteps)
}

// requeueMeta is the dependency-wait record merged into inputData; the queue
// itself never interprets the rest of the payload.
type requeueMeta struct {
	RetryCount int      `json:"retryCount"`
	WaitingFor []string `json:"waitingFor,omitempty"`
	At         string   `json:"at"`
}

// Requeue moves a processing job back to pending when it discovers a
// prerequisite is not yet ready. startedAt is preserved (soft retry).
func (u *jobUC) Requeue(ctx context.Context, jobID string, retryCount int, waitingFor []string) error {
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := u.jobs.FindByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Status != model.JobStatusProcessing {
			return fmt.Errorf("%w: requeue on %s job", domain.ErrInvalidTransition, job.Status)
		}

		input := map[string]json.RawMessage{}
		if len(job.InputData) > 0 {
			if err := json.Unmarshal(job.InputData, &input); err != nil {
				input = map[string]json.RawMessage{}
			}
		}
		meta, _ := json.Marshal(requeueMeta{
			RetryCount: retryCount,
			WaitingFor: waitingFor,
			At:         time.Now().UTC().Format(time.RFC3339),
		})
		input["_requeue"] = meta
		merged, err := json.Marshal(input)
		if err != nil {
			return err
		}

		job.Status = model.JobStatusPending
		job.InputData = merged
		return u.jobs.Save(ctx, tx, job)
	})
	if err == nil {
		metrics.IncJobTransition(string(model.JobStatusPending))
	}
	return err
}
