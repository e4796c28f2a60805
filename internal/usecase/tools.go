package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"ai-studio-backend/internal/domain"
	"ai-studio-backend/internal/domain/model"
	"ai-studio-backend/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.ToolExecutor = (*ToolRegistry)(nil)

type toolHandler func(ctx context.Context, userID, projectID string, args json.RawMessage) (json.RawMessage, error)

type toolEntry struct {
	decl    adapter.ToolDeclaration
	handler toolHandler
}

// ToolRegistry is the agent's tool catalogue. Side-effecting, cost-incurring
// tools are confirmation-gated and create jobs; read-only tools run inline.
type ToolRegistry struct {
	entries map[string]toolEntry
	order   []string
}

// NewToolRegistry builds the catalogue. costOverrides replaces the built-in
// micro-credit baseline for any tool named in it.
func NewToolRegistry(jobs JobUseCase, costOverrides map[string]int64) *ToolRegistry {
	r := &ToolRegistry{entries: map[string]toolEntry{}}

	r.add(adapter.ToolDeclaration{
		Spec: adapter.ToolSpec{
			Name:        "generate_image",
			Description: "Queue an image synthesis job from a text prompt. Returns the job id to track.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"prompt":{"type":"string","description":"what to render"},
				"style":{"type":"string","description":"optional style preset"}},
				"required":["prompt"]}`),
		},
		RequiresConfirmation: true,
		CostMicroPerCall:     25000,
	}, jobCreatingHandler(jobs, model.JobTypeImageGeneration, 4))

	r.add(adapter.ToolDeclaration{
		Spec: adapter.ToolSpec{
			Name:        "generate_video",
			Description: "Queue a video synthesis job from a text prompt. Slow and expensive; returns the job id.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"prompt":{"type":"string"},
				"durationSeconds":{"type":"integer","minimum":1,"maximum":30}},
				"required":["prompt"]}`),
		},
		RequiresConfirmation: true,
		CostMicroPerCall:     250000,
	}, jobCreatingHandler(jobs, model.JobTypeVideoGeneration, 8))

	r.add(adapter.ToolDeclaration{
		Spec: adapter.ToolSpec{
			Name:        "apply_edit",
			Description: "Queue an edit of an existing image asset (inpaint, restyle, upscale).",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"assetId":{"type":"string"},
				"instruction":{"type":"string"}},
				"required":["assetId","instruction"]}`),
		},
		RequiresConfirmation: true,
		CostMicroPerCall:     40000,
	}, jobCreatingHandler(jobs, model.JobTypeImageEdit, 3))

	r.add(adapter.ToolDeclaration{
		Spec: adapter.ToolSpec{
			Name:        "list_jobs",
			Description: "List the user's recent jobs and their statuses. Read-only.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"limit":{"type":"integer"}}}`),
		},
	}, func(ctx context.Context, userID, projectID string, args json.RawMessage) (json.RawMessage, error) {
		var p struct {
			Limit int `json:"limit"`
		}
		_ = json.Unmarshal(args, &p)
		list, err := jobs.List(ctx, userID, projectID, p.Limit)
		if err != nil {
			return nil, err
		}
		type row struct {
			ID       string `json:"id"`
			Type     string `json:"type"`
			Status   string `json:"status"`
			Progress int    `json:"progress"`
		}
		out := make([]row, 0, len(list))
		for _, j := range list {
			out = append(out, row{ID: j.ID, Type: string(j.Type), Status: string(j.Status), Progress: j.Progress})
		}
		return json.Marshal(out)
	})

	for name, micro := range costOverrides {
		if e, ok := r.entries[name]; ok {
			e.decl.CostMicroPerCall = micro
			r.entries[name] = e
		}
	}

	return r
}

func (r *ToolRegistry) add(decl adapter.ToolDeclaration, h toolHandler) {
	r.entries[decl.Spec.Name] = toolEntry{decl: decl, handler: h}
	r.order = append(r.order, decl.Spec.Name)
}

func (r *ToolRegistry) Declarations() []adapter.ToolDeclaration {
	out := make([]adapter.ToolDeclaration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].decl)
	}
	return out
}

func (r *ToolRegistry) Declaration(name string) (adapter.ToolDeclaration, bool) {
	e, ok := r.entries[name]
	return e.decl, ok
}

func (r *ToolRegistry) Execute(ctx context.Context, userID, projectID, name string, args json.RawMessage) (json.RawMessage, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown tool %q", domain.ErrInvalidArgument, name)
	}
	return e.handler(ctx, userID, projectID, args)
}

// jobCreatingHandler turns a tool call into a pending job; the worker loop
// picks it up later and the client tracks it on the job stream.
func jobCreatingHandler(jobs JobUseCase, jobType model.JobType, totalSteps int) toolHandler {
	return func(ctx context.Context, userID, projectID string, args json.RawMessage) (json.RawMessage, error) {
		job, err := jobs.Create(ctx, userID, projectID, jobType, args, totalSteps)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{
			"jobId":  job.ID,
			"type":   string(job.Type),
			"status": string(job.Status),
		})
	}
}
