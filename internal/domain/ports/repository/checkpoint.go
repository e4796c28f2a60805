package repository

import (
	"context"

	"ai-studio-backend/internal/domain/model"
)

// CheckpointStore persists agent state snapshots keyed by thread identifier.
// One snapshot is written per graph step; the latest one is the resume point.
// Created and consumed exclusively by the agent graph.
type CheckpointStore interface {
	Put(ctx context.Context, threadID, step string, state *model.AgentState) error
	Latest(ctx context.Context, threadID string) (*model.AgentState, error)
	Clear(ctx context.Context, threadID string) error
}

// RateCounter tracks per-user job creation counts for the daily cap.
type RateCounter interface {
	// IncrDaily increments and returns today's creation count for the user.
	IncrDaily(ctx context.Context, userID string) (int64, error)
}
