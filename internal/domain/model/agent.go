package model

import (
	"encoding/json"
	"time"
)

type ConversationStatus string

const (
	ConversationActive           ConversationStatus = "active"
	ConversationAwaitingApproval ConversationStatus = "awaiting_approval"
	ConversationCompleted        ConversationStatus = "completed"
)

// AgentMessage is one turn in the conversation threaded through the graph.
// ToolCallID links a "tool" role message back to the call it answers.
type AgentMessage struct {
	ID         string    `json:"id,omitempty"`
	Role       string    `json:"role"` // "system" | "user" | "assistant" | "tool"
	Content    string    `json:"content"`
	ToolCall   *ToolCall `json:"tool_call,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ToolCall is the model's request to invoke one declared tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// PendingAction is the approval record for a confirmation-gated tool call.
// Exactly one may be outstanding per thread at a time.
type PendingAction struct {
	ToolCall           ToolCall  `json:"toolCall"`
	Description        string    `json:"description"`
	EstimatedCostMicro int64     `json:"estimatedCostMicro"`
	CreatedAt          time.Time `json:"createdAt"`
}

// IterationEntry records one model invocation within an execution.
type IterationEntry struct {
	Iteration int    `json:"iteration"`
	ToolName  string `json:"toolName,omitempty"`
	Outcome   string `json:"outcome"` // "reply" | "tool_ok" | "tool_error" | "rejected" | "pending"
	Detail    string `json:"detail,omitempty"`
}

// ResumeDecision is the one-shot human approval consumed by execute-tool.
type ResumeDecision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// UserContext describes what the user currently has selected or open; it is
// injected into the system message at collect-context.
type UserContext struct {
	ProjectID     string   `json:"projectId,omitempty"`
	SelectedAsset string   `json:"selectedAsset,omitempty"`
	OpenAssets    []string `json:"openAssets,omitempty"`
}

// AgentState is the full conversation state threaded through one graph
// execution. It is what the checkpoint store snapshots after every step.
type AgentState struct {
	ThreadID         string             `json:"threadId"`
	UserID           string             `json:"userId"`
	ConversationID   string             `json:"conversationId"`
	Status           ConversationStatus `json:"status"`
	Messages         []AgentMessage     `json:"messages"`
	PendingAction    *PendingAction     `json:"pendingAction,omitempty"`
	Decision         *ResumeDecision    `json:"decision,omitempty"`
	Iterations       []IterationEntry   `json:"iterations"`
	CurrentIteration int                `json:"currentIteration"`
	Context          UserContext        `json:"context"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

func NewAgentState(threadID, userID, conversationID string, uctx UserContext) *AgentState {
	return &AgentState{
		ThreadID:       threadID,
		UserID:         userID,
		ConversationID: conversationID,
		Status:         ConversationActive,
		Messages:       make([]AgentMessage, 0, 8),
		Context:        uctx,
		UpdatedAt:      time.Now(),
	}
}

func (s *AgentState) AddMessage(m AgentMessage) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	s.Messages = append(s.Messages, m)
	s.UpdatedAt = time.Now()
}

// HasSystemMessage is the idempotent re-entry check for collect-context.
func (s *AgentState) HasSystemMessage() bool {
	for _, m := range s.Messages {
		if m.Role == "system" {
			return true
		}
	}
	return false
}

// LastToolCall returns the assistant's most recent tool call, or nil when the
// last reply was plain text.
func (s *AgentState) LastToolCall() *ToolCall {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == "assistant" {
			return m.ToolCall
		}
	}
	return nil
}
