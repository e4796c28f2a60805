package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// schema is the single-table schema this core owns. Forward-only and
// idempotent; anything richer belongs to a real migration tool.
const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    project_id       TEXT NOT NULL DEFAULT '',
    type             TEXT NOT NULL,
    status           TEXT NOT NULL DEFAULT 'pending',
    progress         INT  NOT NULL DEFAULT 0,
    current_step     INT  NOT NULL DEFAULT 0,
    total_steps      INT  NOT NULL DEFAULT 0,
    progress_message TEXT NOT NULL DEFAULT '',
    input_data       JSONB,
    result_data      JSONB,
    error_message    TEXT NOT NULL DEFAULT '',
    parent_job_id    TEXT NOT NULL DEFAULT '',
    is_imported      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    started_at       TIMESTAMPTZ,
    completed_at     TIMESTAMPTZ,
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_pending ON jobs (created_at) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_jobs_user ON jobs (user_id, created_at DESC);
`

// Migrate applies the jobs schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply jobs schema: %w", err)
	}
	return nil
}
