package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"ai-studio-backend/internal/domain"
	"ai-studio-backend/internal/domain/model"
	"ai-studio-backend/internal/domain/ports/adapter"
	"ai-studio-backend/internal/domain/ports/repository"
	"ai-studio-backend/internal/infra/logging"
	"ai-studio-backend/internal/infra/metrics"
)

type AgentEventType string

const (
	EventUserMessageID      AgentEventType = "user_message_id"
	EventAssistantMessageID AgentEventType = "assistant_message_id"
	EventStateUpdate        AgentEventType = "state_update"
	EventInterrupt          AgentEventType = "interrupt"
	EventComplete           AgentEventType = "complete"
	EventError              AgentEventType = "error"
)

// AgentEvent is one push frame on the agent stream.
type AgentEvent struct {
	Type AgentEventType `json:"type"`
	Data interface{}    `json:"data,omitempty"`
}

// EventSink receives events as graph transitions happen. Implementations
// must not block; the web layer writes each event to the response as it
// arrives.
type EventSink func(AgentEvent)

type StateUpdateData struct {
	Iterations       []model.IterationEntry `json:"iterations"`
	CurrentIteration int                    `json:"currentIteration"`
	PendingAction    *model.PendingAction   `json:"pendingAction"`
}

type InterruptData struct {
	Action        string               `json:"action"`
	PendingAction *model.PendingAction `json:"pendingAction"`
	ThreadID      string               `json:"threadId"`
}

func stateUpdateEvent(state *model.AgentState) AgentEvent {
	return AgentEvent{Type: EventStateUpdate, Data: StateUpdateData{
		Iterations:       state.Iterations,
		CurrentIteration: state.CurrentIteration,
		PendingAction:    state.PendingAction,
	}}
}

// AgentRequest carries one of two mutually exclusive shapes: a fresh user
// message (new turn) or a thread id plus decision (resume after interrupt).
type AgentRequest struct {
	UserID string

	// New turn.
	Message        string
	ConversationID string
	ProjectID      string
	Context        model.UserContext

	// Resume.
	ThreadID string
	Resume   *model.ResumeDecision
}

// Compile-time check
var _ AgentUseCase = (*agentUC)(nil)

type AgentUseCase interface {
	// Execute runs one graph execution to its terminal event (complete,
	// interrupt, or error), emitting events as transitions happen. Callers
	// must serialize executions per thread.
	Execute(ctx context.Context, req AgentRequest, emit EventSink) error
}

type agentUC struct {
	graph       *agentGraph
	checkpoints repository.CheckpointStore
	log         *zerolog.Logger
}

func NewAgentUseCase(
	ai adapter.CompletionAdapter,
	tools adapter.ToolExecutor,
	checkpoints repository.CheckpointStore,
	cost *CostEstimator,
	modelName string,
	maxIterations int,
	log *zerolog.Logger,
) *agentUC {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	return &agentUC{
		graph: &agentGraph{
			ai:            ai,
			tools:         tools,
			checkpoints:   checkpoints,
			cost:          cost,
			model:         modelName,
			maxIterations: maxIterations,
		},
		checkpoints: checkpoints,
		log:         log,
	}
}

// DeriveThreadID maps (projectID, conversationID) onto a stable thread key.
func DeriveThreadID(projectID, conversationID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("thread:"+projectID+":"+conversationID)).String()
}

func (u *agentUC) Execute(ctx context.Context, req AgentRequest, emit EventSink) error {
	defer logging.TraceDuration(u.log, "AgentUC.Execute")()
	state, step, err := u.prepare(ctx, req, emit)
	if err != nil {
		emit(AgentEvent{Type: EventError, Data: err.Error()})
		return err
	}

	stopped, err := u.graph.run(ctx, state, step, emit)
	switch {
	case err != nil:
		// Fatal (provider) failure: surface a terminal error and mark the
		// conversation completed so the client is not left stuck "active".
		u.log.Error().Err(err).Str("thread_id", state.ThreadID).Msg("agent execution failed")
		state.Status = model.ConversationCompleted
		_ = u.checkpoints.Put(ctx, state.ThreadID, string(stopped), state)
		emit(AgentEvent{Type: EventError, Data: "the assistant is temporarily unavailable"})
		return err

	case stopped == stepWaitForApproval:
		metrics.IncAgentInterrupt()
		emit(stateUpdateEvent(state))
		emit(AgentEvent{Type: EventInterrupt, Data: InterruptData{
			Action:        "approval_required",
			PendingAction: state.PendingAction,
			ThreadID:      state.ThreadID,
		}})
		emit(AgentEvent{Type: EventComplete, Data: "pending_confirmation"})
		return nil

	default:
		state.Status = model.ConversationCompleted
		if err := u.checkpoints.Put(ctx, state.ThreadID, string(stepDone), state); err != nil {
			u.log.Warn().Err(err).Str("thread_id", state.ThreadID).Msg("final checkpoint write failed")
		}
		emit(AgentEvent{Type: EventComplete, Data: "done"})
		return nil
	}
}

// prepare resolves the request into (state, entry step). New turns start at
// collect-context; resumes re-enter at wait-for-approval's successor using
// the latest checkpoint, with no replay of earlier nodes.
func (u *agentUC) prepare(ctx context.Context, req AgentRequest, emit EventSink) (*model.AgentState, graphStep, error) {
	if req.Resume != nil {
		if req.ThreadID == "" {
			return nil, "", fmt.Errorf("%w: resume requires a thread id", domain.ErrInvalidArgument)
		}
		state, err := u.checkpoints.Latest(ctx, req.ThreadID)
		if err != nil {
			return nil, "", fmt.Errorf("load checkpoint: %w", err)
		}
		if req.UserID != "" && state.UserID != req.UserID {
			return nil, "", domain.ErrUnauthorized
		}
		if state.PendingAction == nil {
			// Checkpoint idempotence: a decision was already consumed for
			// this interrupt; a second resume is rejected, not re-executed.
			return nil, "", domain.ErrNoPendingAction
		}
		decision := *req.Resume
		state.Decision = &decision
		return state, stepExecuteTool, nil
	}

	if req.Message == "" || req.ConversationID == "" {
		return nil, "", fmt.Errorf("%w: message and conversationId are required", domain.ErrInvalidArgument)
	}

	threadID := DeriveThreadID(req.ProjectID, req.ConversationID)
	state, err := u.checkpoints.Latest(ctx, threadID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		state = model.NewAgentState(threadID, req.UserID, req.ConversationID, req.Context)
	case err != nil:
		return nil, "", fmt.Errorf("load checkpoint: %w", err)
	default:
		if state.UserID != req.UserID {
			return nil, "", domain.ErrUnauthorized
		}
		if state.PendingAction != nil {
			return nil, "", fmt.Errorf("%w: an approval is outstanding for this thread", domain.ErrInvalidTransition)
		}
		// A new turn starts a fresh execution over the same history.
		state.Status = model.ConversationActive
		state.Context = req.Context
		state.Iterations = nil
		state.CurrentIteration = 0
	}

	userMsg := model.AgentMessage{
		ID:        ulid.Make().String(),
		Role:      "user",
		Content:   req.Message,
		Timestamp: time.Now(),
	}
	state.AddMessage(userMsg)
	emit(AgentEvent{Type: EventUserMessageID, Data: userMsg.ID})

	return state, stepCollectContext, nil
}
