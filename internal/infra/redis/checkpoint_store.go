package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ai-studio-backend/internal/domain"
	"ai-studio-backend/internal/domain/model"
	"ai-studio-backend/internal/domain/ports/repository"
)

var _ repository.CheckpointStore = (*CheckpointStore)(nil)

const checkpointHistory = 20

// CheckpointStore persists one agent-state snapshot per graph step, keyed by
// thread identifier. The latest snapshot is the resume point; a bounded
// history is kept for debugging. No TTL: a thread may wait for approval
// indefinitely.
type CheckpointStore struct {
	client RedisClient
}

func NewCheckpointStore(client RedisClient) *CheckpointStore {
	return &CheckpointStore{client: client}
}

type checkpoint struct {
	Step    string            `json:"step"`
	SavedAt time.Time         `json:"savedAt"`
	State   *model.AgentState `json:"state"`
}

func (s *CheckpointStore) latestKey(threadID string) string {
	return fmt.Sprintf("agent_ckpt:%s", threadID)
}

func (s *CheckpointStore) historyKey(threadID string) string {
	return fmt.Sprintf("agent_ckpt_hist:%s", threadID)
}

func (s *CheckpointStore) Put(ctx context.Context, threadID, step string, state *model.AgentState) error {
	data, err := json.Marshal(checkpoint{Step: step, SavedAt: time.Now(), State: state})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.latestKey(threadID), data, 0); err != nil {
		return err
	}
	if err := s.client.LPush(ctx, s.historyKey(threadID), data); err != nil {
		return err
	}
	return s.client.LTrim(ctx, s.historyKey(threadID), 0, checkpointHistory-1)
}

func (s *CheckpointStore) Latest(ctx context.Context, threadID string) (*model.AgentState, error) {
	data, err := s.client.Get(ctx, s.latestKey(threadID))
	if err != nil {
		if IsNil(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var cp checkpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return nil, err
	}
	return cp.State, nil
}

func (s *CheckpointStore) Clear(ctx context.Context, threadID string) error {
	return s.client.Del(ctx, s.latestKey(threadID), s.historyKey(threadID))
}
