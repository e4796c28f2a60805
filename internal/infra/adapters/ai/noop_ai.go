package ai

import (
	"context"
	"log"
	"time"

	"ai-studio-backend/internal/domain/ports/adapter"
)

var _ adapter.CompletionAdapter = (*NoopAdapter)(nil)

// NoopAdapter implements adapter.CompletionAdapter for local/dev testing.
// It logs messages instead of sending real provider requests.
type NoopAdapter struct{}

func NewNoopAdapter() *NoopAdapter {
	return &NoopAdapter{}
}

func (a *NoopAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop-model"}, nil
}

func (a *NoopAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	log.Printf("[noop-ai] chat (%d messages)\n", len(messages))
	return "This is a noop completion.", nil
}

func (a *NoopAdapter) ChatWithTools(ctx context.Context, model string, messages []adapter.Message, tools []adapter.ToolSpec) (*adapter.Completion, error) {
	reply, err := a.Chat(ctx, model, messages)
	if err != nil {
		return nil, err
	}
	return &adapter.Completion{Content: reply}, nil
}
