package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-studio-backend/internal/domain"
	"ai-studio-backend/internal/domain/model"
	"ai-studio-backend/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{pool: pool, tm: tm}
}

const jobColumns = `id, user_id, project_id, type, status, progress, current_step, total_steps,
progress_message, input_data, result_data, error_message, parent_job_id, is_imported,
created_at, started_at, completed_at, updated_at`

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO jobs (id, user_id, project_id, type, status, progress, current_step, total_steps,
  progress_message, input_data, result_data, error_message, parent_job_id, is_imported,
  created_at, started_at, completed_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  progress = EXCLUDED.progress,
  current_step = EXCLUDED.current_step,
  total_steps = EXCLUDED.total_steps,
  progress_message = EXCLUDED.progress_message,
  input_data = EXCLUDED.input_data,
  result_data = EXCLUDED.result_data,
  error_message = EXCLUDED.error_message,
  is_imported = EXCLUDED.is_imported,
  started_at = EXCLUDED.started_at,
  completed_at = EXCLUDED.completed_at,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.UserID, job.ProjectID, job.Type, job.Status, job.Progress,
		job.CurrentStep, job.TotalSteps, job.ProgressMessage,
		job.InputData, job.ResultData, job.ErrorMessage, job.ParentJobID, job.IsImported,
		job.CreatedAt, job.StartedAt, job.CompletedAt, job.UpdatedAt)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 FOR UPDATE;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) ListByUser(ctx context.Context, tx repository.Tx, userID, projectID string, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE user_id = $1`
	args := []interface{}{userID}
	if projectID != "" {
		q += ` AND project_id = $2`
		args = append(args, projectID)
	}
	q += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit) + `;`

	rows, err := pickRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *jobRepo) ListForStream(ctx context.Context, userID string, terminalSince time.Time) ([]*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
FROM jobs
WHERE user_id = $1
  AND (status IN ('pending', 'processing') OR completed_at >= $2)
ORDER BY created_at DESC;`

	rows, err := pickRows(ctx, r.pool, nil, q, userID, terminalSince)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ClaimBatch atomically selects up to limit pending jobs oldest-first,
// skipping rows locked by concurrent claimants. Status is not changed; the
// caller transitions each job via Start, whose pending-only guard drops any
// row another claimant started first.
func (r *jobRepo) ClaimBatch(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 1
	}
	var jobs []*model.Job
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const q = `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = 'pending'
ORDER BY created_at
LIMIT $1
FOR UPDATE SKIP LOCKED;`

		rows, err := pickRows(ctx, r.pool, tx, q, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		jobs, err = scanJobs(rows)
		return err
	})
	return jobs, err
}

func (r *jobRepo) CountActiveByUser(ctx context.Context, tx repository.Tx, userID string) (int, error) {
	const q = `SELECT COUNT(*) FROM jobs WHERE user_id = $1 AND status IN ('pending', 'processing');`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var status, jobType string
	err := row.Scan(
		&j.ID, &j.UserID, &j.ProjectID, &jobType, &status, &j.Progress,
		&j.CurrentStep, &j.TotalSteps, &j.ProgressMessage,
		&j.InputData, &j.ResultData, &j.ErrorMessage, &j.ParentJobID, &j.IsImported,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Status = model.JobStatus(status)
	j.Type = model.JobType(jobType)
	return &j, nil
}

func scanJobs(rows pgx.Rows) ([]*model.Job, error) {
	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
