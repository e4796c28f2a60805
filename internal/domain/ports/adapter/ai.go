package adapter

import (
	"context"
	"encoding/json"
)

// Message represents a chat message on the provider wire.
type Message struct {
	Role       string         `json:"role"` // "system", "user", "assistant", "tool"
	Content    string         `json:"content"`
	ToolCalls  []WireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// WireToolCall is the provider's representation of a requested tool call.
type WireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ToolSpec declares one callable function bound to the completion request.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON schema
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is one assistant reply: text content and/or at most one tool
// call that the agent graph will act on.
type Completion struct {
	Content  string
	ToolCall *WireToolCall
	Usage    Usage
}

// CompletionAdapter is the port for the external text-completion provider.
type CompletionAdapter interface {
	ListModels(ctx context.Context) ([]string, error)

	// Chat returns only the assistant text.
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// ChatWithTools invokes the provider with the declared tool catalogue
	// bound as callable functions.
	ChatWithTools(ctx context.Context, model string, messages []Message, tools []ToolSpec) (*Completion, error)
}
