package adapter

import (
	"context"
	"encoding/json"
)

// ToolDeclaration describes one tool the agent may call. Confirmation-gated
// tools suspend the graph for human approval before execution.
type ToolDeclaration struct {
	Spec                 ToolSpec
	RequiresConfirmation bool
	// CostMicroPerCall is the flat micro-credit baseline used by the cost
	// estimate shown on the approval card.
	CostMicroPerCall int64
}

// ToolResult is the outcome of executing one tool call.
type ToolResult struct {
	Content json.RawMessage
	Err     error
}

// ToolExecutor runs a named tool with raw JSON arguments on behalf of a user.
type ToolExecutor interface {
	Declarations() []ToolDeclaration
	Declaration(name string) (ToolDeclaration, bool)
	Execute(ctx context.Context, userID, projectID, name string, args json.RawMessage) (json.RawMessage, error)
}
