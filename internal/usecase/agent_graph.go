package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"ai-studio-backend/internal/domain"
	"ai-studio-backend/internal/domain/model"
	"ai-studio-backend/internal/domain/ports/adapter"
	"ai-studio-backend/internal/domain/ports/repository"
	"ai-studio-backend/internal/infra/metrics"
)

// graphStep names one node of the agent state graph. The graph was a
// declarative node/edge structure in spirit; here it is an explicit state
// machine: each node returns the next step, and the state is checkpointed
// after every transition.
type graphStep string

const (
	stepCollectContext    graphStep = "collect_context"
	stepCallModel         graphStep = "call_model"
	stepCheckConfirmation graphStep = "check_confirmation"
	stepWaitForApproval   graphStep = "wait_for_approval"
	stepExecuteTool       graphStep = "execute_tool"
	stepDone              graphStep = "done"
)

// agentGraph executes the bounded tool-calling loop for one thread. It is
// stateless between runs; everything lives in the checkpointed AgentState.
type agentGraph struct {
	ai            adapter.CompletionAdapter
	tools         adapter.ToolExecutor
	checkpoints   repository.CheckpointStore
	cost          *CostEstimator
	model         string
	maxIterations int
}

// run drives the graph from `step` until it terminates or suspends.
// It returns the step at which execution stopped.
func (g *agentGraph) run(ctx context.Context, state *model.AgentState, step graphStep, emit EventSink) (graphStep, error) {
	for {
		var next graphStep
		var err error

		switch step {
		case stepCollectContext:
			next = g.collectContext(state)
		case stepCallModel:
			next, err = g.callModel(ctx, state, emit)
		case stepCheckConfirmation:
			next = g.checkConfirmation(state)
		case stepWaitForApproval:
			// Deliberate suspension: persist and hand control back. The
			// process holds nothing open; resume recovers from the checkpoint.
			return stepWaitForApproval, g.checkpoint(ctx, state, stepWaitForApproval)
		case stepExecuteTool:
			next = g.executeTool(ctx, state, emit)
		case stepDone:
			return stepDone, nil
		default:
			return step, fmt.Errorf("%w: unknown graph step %q", domain.ErrInvalidArgument, step)
		}

		if err != nil {
			// Provider/transport failures are fatal for this execution; the
			// last checkpoint stands and the thread remains resumable.
			_ = g.checkpoint(ctx, state, step)
			return step, err
		}
		if cerr := g.checkpoint(ctx, state, step); cerr != nil {
			return step, cerr
		}
		step = next
	}
}

func (g *agentGraph) checkpoint(ctx context.Context, state *model.AgentState, step graphStep) error {
	state.UpdatedAt = time.Now()
	return g.checkpoints.Put(ctx, state.ThreadID, string(step), state)
}

// collectContext runs once per execution; a system message already present in
// history (re-entry after resume) makes it a no-op.
func (g *agentGraph) collectContext(state *model.AgentState) graphStep {
	if state.HasSystemMessage() {
		return stepCallModel
	}
	var b strings.Builder
	b.WriteString("You are a creative studio assistant. You drive image and video work by calling tools; ")
	b.WriteString("expensive actions are queued as jobs the user can track.\n")
	if state.Context.ProjectID != "" {
		fmt.Fprintf(&b, "Active project: %s.\n", state.Context.ProjectID)
	}
	if state.Context.SelectedAsset != "" {
		fmt.Fprintf(&b, "The user currently has asset %s selected.\n", state.Context.SelectedAsset)
	}
	if len(state.Context.OpenAssets) > 0 {
		fmt.Fprintf(&b, "Open assets: %s.\n", strings.Join(state.Context.OpenAssets, ", "))
	}
	sys := model.AgentMessage{Role: "system", Content: b.String()}
	state.Messages = append([]model.AgentMessage{sys}, state.Messages...)
	state.UpdatedAt = time.Now()
	return stepCallModel
}

// callModel invokes the completion provider with the full history and the
// tool catalogue bound as callable functions.
func (g *agentGraph) callModel(ctx context.Context, state *model.AgentState, emit EventSink) (graphStep, error) {
	if state.CurrentIteration >= g.maxIterations {
		notice := model.AgentMessage{
			ID:      ulid.Make().String(),
			Role:    "assistant",
			Content: "Stopping here: this request hit the per-turn iteration limit.",
		}
		state.AddMessage(notice)
		emit(AgentEvent{Type: EventAssistantMessageID, Data: notice.ID})
		emit(stateUpdateEvent(state))
		return stepDone, nil
	}

	specs := make([]adapter.ToolSpec, 0)
	for _, d := range g.tools.Declarations() {
		specs = append(specs, d.Spec)
	}

	start := time.Now()
	completion, err := g.ai.ChatWithTools(ctx, g.model, toWireMessages(state.Messages), specs)
	latencyMs := int(time.Since(start) / time.Millisecond)
	if err != nil {
		metrics.ObserveCompletionLatency(g.model, latencyMs, false)
		return stepCallModel, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	metrics.ObserveCompletionLatency(g.model, latencyMs, true)
	metrics.IncAgentIteration()

	state.CurrentIteration++
	entry := model.IterationEntry{Iteration: state.CurrentIteration, Outcome: "reply"}

	msg := model.AgentMessage{
		ID:      ulid.Make().String(),
		Role:    "assistant",
		Content: completion.Content,
	}
	if completion.ToolCall != nil {
		msg.ToolCall = &model.ToolCall{
			ID:        completion.ToolCall.ID,
			Name:      completion.ToolCall.Function.Name,
			Arguments: []byte(completion.ToolCall.Function.Arguments),
		}
		entry.ToolName = msg.ToolCall.Name
		entry.Outcome = "pending"
	}
	state.AddMessage(msg)
	state.Iterations = append(state.Iterations, entry)

	emit(AgentEvent{Type: EventAssistantMessageID, Data: msg.ID})
	emit(stateUpdateEvent(state))

	if msg.ToolCall == nil {
		return stepDone, nil
	}
	return stepCheckConfirmation, nil
}

// checkConfirmation inspects the declaration the model selected. No model
// call happens here. Confirmation-gated tools get a pending action with a
// cost estimate; everything else proceeds straight to execution.
func (g *agentGraph) checkConfirmation(state *model.AgentState) graphStep {
	tc := state.LastToolCall()
	if tc == nil {
		return stepDone
	}
	decl, ok := g.tools.Declaration(tc.Name)
	if !ok || !decl.RequiresConfirmation {
		return stepExecuteTool
	}
	state.PendingAction = &model.PendingAction{
		ToolCall:           *tc,
		Description:        decl.Spec.Description,
		EstimatedCostMicro: g.cost.EstimateMicro(decl, tc.Arguments),
		CreatedAt:          time.Now(),
	}
	state.Status = model.ConversationAwaitingApproval
	return stepWaitForApproval
}

// executeTool consumes the one-shot decision, runs (or refuses) the tool, and
// folds the outcome back into the conversation. Tool failures never abort the
// execution; the model reacts to them on the next iteration.
func (g *agentGraph) executeTool(ctx context.Context, state *model.AgentState, emit EventSink) graphStep {
	tc := state.LastToolCall()
	decision := state.Decision
	state.Decision = nil // one-shot, always cleared
	state.PendingAction = nil
	state.Status = model.ConversationActive

	if tc == nil {
		return stepCallModel
	}

	if len(state.Iterations) == 0 {
		state.Iterations = append(state.Iterations, model.IterationEntry{
			Iteration: state.CurrentIteration, ToolName: tc.Name,
		})
	}
	last := &state.Iterations[len(state.Iterations)-1]

	if decision != nil && !decision.Approved {
		metrics.IncAgentResume(false)
		reason := decision.Reason
		if reason == "" {
			reason = "the user declined this action"
		}
		last.Outcome = "rejected"
		last.Detail = reason
		state.AddMessage(model.AgentMessage{
			Role:       "tool",
			ToolCallID: tc.ID,
			Content:    fmt.Sprintf(`{"error":%q}`, "action rejected: "+reason),
		})
		emit(stateUpdateEvent(state))
		return stepCallModel
	}
	if decision != nil {
		metrics.IncAgentResume(true)
	}

	result, err := g.safeExecute(ctx, state, tc)
	if err != nil {
		last.Outcome = "tool_error"
		last.Detail = err.Error()
		state.AddMessage(model.AgentMessage{
			Role:       "tool",
			ToolCallID: tc.ID,
			Content:    fmt.Sprintf(`{"error":%q}`, err.Error()),
		})
	} else {
		last.Outcome = "tool_ok"
		state.AddMessage(model.AgentMessage{
			Role:       "tool",
			ToolCallID: tc.ID,
			Content:    string(result),
		})
	}
	emit(stateUpdateEvent(state))
	return stepCallModel
}

// safeExecute converts a panicking tool into an ordinary error so one bad
// handler cannot take down the whole execution.
func (g *agentGraph) safeExecute(ctx context.Context, state *model.AgentState, tc *model.ToolCall) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", tc.Name, r)
		}
	}()
	return g.tools.Execute(ctx, state.UserID, state.Context.ProjectID, tc.Name, tc.Arguments)
}

func toWireMessages(msgs []model.AgentMessage) []adapter.Message {
	out := make([]adapter.Message, 0, len(msgs))
	for _, m := range msgs {
		w := adapter.Message{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		if m.ToolCall != nil {
			wtc := adapter.WireToolCall{ID: m.ToolCall.ID, Type: "function"}
			wtc.Function.Name = m.ToolCall.Name
			wtc.Function.Arguments = string(m.ToolCall.Arguments)
			w.ToolCalls = []adapter.WireToolCall{wtc}
		}
		out = append(out, w)
	}
	return out
}
