package repository

import (
	"context"
	"time"

	"ai-studio-backend/internal/domain/model"
)

// JobRepository is the port for the single shared job table.
type JobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)

	// FindByIDForUpdate locks the row for the duration of the enclosing
	// transaction; status transitions go through it so concurrent mutations
	// serialize per job.
	FindByIDForUpdate(ctx context.Context, tx Tx, id string) (*model.Job, error)
	ListByUser(ctx context.Context, tx Tx, userID, projectID string, limit int) ([]*model.Job, error)

	// ListForStream returns the user's active jobs plus jobs that reached a
	// terminal status after `terminalSince` (the job stream's snapshot set).
	ListForStream(ctx context.Context, userID string, terminalSince time.Time) ([]*model.Job, error)

	// ClaimBatch selects up to limit pending jobs oldest-first, skipping rows
	// locked by concurrent claimants, without changing their status. No two
	// concurrent claimants ever receive the same row.
	ClaimBatch(ctx context.Context, limit int) ([]*model.Job, error)

	// CountActiveByUser counts the user's jobs in {pending, processing}.
	CountActiveByUser(ctx context.Context, tx Tx, userID string) (int, error)
}
