package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-studio-backend/internal/domain/model"
	"ai-studio-backend/internal/usecase"
)

// Handler executes one claimed job. Returning a *DependencyWait requeues the
// job instead of failing it; any other error marks the job failed.
type Handler func(ctx context.Context, job *model.Job, rt *Runtime) error

// Runtime is the narrow surface a handler gets for talking back to the queue.
type Runtime struct {
	Jobs usecase.JobUseCase
	Log  *zerolog.Logger
}

// Progress reports handler progress and checks for cooperative cancellation:
// it returns false when the job has been cancelled and the handler should
// stop before its next expensive sub-step.
func (rt *Runtime) Progress(ctx context.Context, jobID string, progress, step int, message string) bool {
	current, err := rt.Jobs.Lookup(ctx, jobID)
	if err == nil && current.Status == model.JobStatusCancelled {
		return false
	}
	if err := rt.Jobs.UpdateProgress(ctx, jobID, progress, step, message); err != nil {
		rt.Log.Warn().Err(err).Str("job_id", jobID).Msg("progress update failed")
	}
	return true
}

// DependencyWait signals that a prerequisite resource is not ready yet.
type DependencyWait struct {
	WaitingFor []string
	RetryCount int
}

func (e *DependencyWait) Error() string {
	return fmt.Sprintf("waiting for %s", strings.Join(e.WaitingFor, ", "))
}

// Runner repeatedly claims pending jobs and executes them on the pool.
type Runner struct {
	jobs         usecase.JobUseCase
	handlers     map[model.JobType]Handler
	pollInterval time.Duration
	batchSize    int
	log          *zerolog.Logger
}

func NewRunner(jobs usecase.JobUseCase, handlers map[model.JobType]Handler, pollInterval time.Duration, batchSize int, log *zerolog.Logger) *Runner {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 5
	}
	return &Runner{jobs: jobs, handlers: handlers, pollInterval: pollInterval, batchSize: batchSize, log: log}
}

// Start runs the claim loop until ctx is cancelled. Run it in a goroutine.
func (r *Runner) Start(ctx context.Context, pool *Pool) {
	r.log.Info().Dur("poll_interval", r.pollInterval).Int("batch", r.batchSize).Msg("job runner started")
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("job runner stopping")
			return
		case <-ticker.C:
			claimed, err := r.jobs.ClaimBatch(ctx, r.batchSize)
			if err != nil {
				r.log.Error().Err(err).Msg("claim batch failed")
				continue
			}
			for _, job := range claimed {
				job := job
				_ = pool.Submit(func(ctx context.Context) error {
					r.processOne(ctx, job)
					return nil
				})
			}
		}
	}
}

func (r *Runner) processOne(ctx context.Context, job *model.Job) {
	// The pending-only guard on Start drops rows another claimant won.
	started, err := r.jobs.Start(ctx, job.ID)
	if err != nil {
		r.log.Error().Err(err).Str("job_id", job.ID).Msg("start failed")
		return
	}
	if !started {
		return
	}

	log := r.log.With().Str("job_id", job.ID).Str("type", string(job.Type)).Logger()
	log.Info().Msg("processing job")
	begin := time.Now()

	handler, ok := r.handlers[job.Type]
	if !ok {
		_ = r.jobs.Fail(ctx, job.ID, fmt.Sprintf("no handler registered for job type %q", job.Type))
		return
	}

	err = r.runHandler(ctx, handler, job)

	var wait *DependencyWait
	switch {
	case errors.As(err, &wait):
		log.Info().Strs("waiting_for", wait.WaitingFor).Msg("job requeued")
		if rqErr := r.jobs.Requeue(ctx, job.ID, wait.RetryCount, wait.WaitingFor); rqErr != nil {
			log.Error().Err(rqErr).Msg("requeue failed")
		}
	case err != nil:
		log.Error().Err(err).Dur("duration", time.Since(begin)).Msg("job failed")
		// Background context: the job's own ctx may already be cancelled.
		_ = r.jobs.Fail(context.Background(), job.ID, err.Error())
	default:
		log.Info().Dur("duration", time.Since(begin)).Msg("job finished")
	}
}

// runHandler isolates handler panics from the runner loop.
func (r *Runner) runHandler(ctx context.Context, handler Handler, job *model.Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	rt := &Runtime{Jobs: r.jobs, Log: r.log}
	return handler(ctx, job, rt)
}
