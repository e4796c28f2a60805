package redis

import (
	"context"
	"fmt"
	"time"

	"ai-studio-backend/internal/domain/ports/repository"
)

var _ repository.RateCounter = (*RateCounter)(nil)

// RateCounter counts job creations per user per UTC calendar day. Keys expire
// after two days so the check stays O(1) and self-cleaning.
type RateCounter struct {
	client RedisClient
}

func NewRateCounter(client RedisClient) *RateCounter {
	return &RateCounter{client: client}
}

func dailyKey(userID string, now time.Time) string {
	return fmt.Sprintf("jobs_daily:%s:%s", userID, now.UTC().Format("2006-01-02"))
}

func (r *RateCounter) IncrDaily(ctx context.Context, userID string) (int64, error) {
	key := dailyKey(userID, time.Now())
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, 48*time.Hour); err != nil {
			return count, err
		}
	}
	return count, nil
}
