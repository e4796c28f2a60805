//go:build !integration

package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ai-studio-backend/internal/domain"
	"ai-studio-backend/internal/domain/model"
)

func doJSON(t *testing.T, router http.Handler, method, path, user, body string, worker bool) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("{}")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if worker {
		req.Header.Set("Authorization", "Bearer worker-token")
	} else if user != "" {
		req.Header.Set("X-Debug-User", user)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateJobHandler(t *testing.T) {
	t.Run("creates and returns the job", func(t *testing.T) {
		jobs := &jobUCStub{
			CreateFunc: func(ctx context.Context, userID, projectID string, jobType model.JobType, input json.RawMessage, totalSteps int) (*model.Job, error) {
				if userID != "user-1" || jobType != model.JobTypeImageGeneration {
					t.Errorf("wrong args: user=%s type=%s", userID, jobType)
				}
				return sampleJob("j1", userID, model.JobStatusPending), nil
			},
		}
		router := testServer(jobs, &agentUCStub{}).Router()

		rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs", "user-1",
			`{"projectId":"p1","type":"image_generation","input":{"prompt":"x"}}`, false)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var out resultJSON
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		if !out.Success || out.Job == nil || out.Job.ID != "j1" {
			t.Fatalf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("maps rate limiting to 429", func(t *testing.T) {
		jobs := &jobUCStub{
			CreateFunc: func(ctx context.Context, userID, projectID string, jobType model.JobType, input json.RawMessage, totalSteps int) (*model.Job, error) {
				return nil, fmt.Errorf("%w: too many", domain.ErrRateLimited)
			},
		}
		router := testServer(jobs, &agentUCStub{}).Router()

		rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs", "user-1",
			`{"type":"image_generation"}`, false)
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
	})

	t.Run("requires authentication", func(t *testing.T) {
		router := testServer(&jobUCStub{}, &agentUCStub{}).Router()
		rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs", "", `{}`, false)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{domain.ErrNoPendingAction, http.StatusConflict},
		{domain.ErrInvalidArgument, http.StatusBadRequest},
		{fmt.Errorf("opaque"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, c.err)
		if rec.Code != c.code {
			t.Errorf("%v: expected %d, got %d", c.err, c.code, rec.Code)
		}
	}
}

func TestCancelAndRetryHandlers(t *testing.T) {
	t.Run("cancel conflict surfaces as 409", func(t *testing.T) {
		jobs := &jobUCStub{
			CancelFunc: func(ctx context.Context, userID, jobID string) (*model.Job, error) {
				return nil, fmt.Errorf("%w: cancel on completed job", domain.ErrInvalidTransition)
			},
		}
		router := testServer(jobs, &agentUCStub{}).Router()
		rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs/j1/cancel", "user-1", "", false)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("retry returns the fresh row", func(t *testing.T) {
		jobs := &jobUCStub{
			RetryFunc: func(ctx context.Context, userID, jobID string) (*model.Job, error) {
				return sampleJob("j2", userID, model.JobStatusPending), nil
			},
		}
		router := testServer(jobs, &agentUCStub{}).Router()
		rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs/j1/retry", "user-1", "", false)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		var out resultJSON
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		if out.Job == nil || out.Job.ID != "j2" {
			t.Fatalf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("foreign job surfaces as 403", func(t *testing.T) {
		jobs := &jobUCStub{
			GetFunc: func(ctx context.Context, userID, jobID string) (*model.Job, error) {
				return nil, domain.ErrUnauthorized
			},
		}
		router := testServer(jobs, &agentUCStub{}).Router()
		rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/j1", "user-2", "", false)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})
}

func TestWorkerHandlers(t *testing.T) {
	t.Run("claims a batch with the capability token", func(t *testing.T) {
		jobs := &jobUCStub{
			ClaimBatchFunc: func(ctx context.Context, limit int) ([]*model.Job, error) {
				if limit != 3 {
					t.Errorf("expected limit 3, got %d", limit)
				}
				return []*model.Job{sampleJob("j1", "user-1", model.JobStatusPending)}, nil
			},
		}
		router := testServer(jobs, &agentUCStub{}).Router()
		rec := doJSON(t, router, http.MethodPost, "/api/v1/worker/jobs/claim", "", `{"limit":3}`, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var out resultJSON
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		if len(out.Jobs) != 1 {
			t.Fatalf("expected one claimed job, got %s", rec.Body.String())
		}
	})

	t.Run("start reports ownership", func(t *testing.T) {
		jobs := &jobUCStub{
			StartFunc: func(ctx context.Context, jobID string) (bool, error) { return false, nil },
		}
		router := testServer(jobs, &agentUCStub{}).Router()
		rec := doJSON(t, router, http.MethodPost, "/api/v1/worker/jobs/j1/start", "", "", true)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"started":false`) {
			t.Fatalf("expected started=false, got %s", rec.Body.String())
		}
	})

	t.Run("worker routes reject session users", func(t *testing.T) {
		router := testServer(&jobUCStub{}, &agentUCStub{}).Router()
		rec := doJSON(t, router, http.MethodPost, "/api/v1/worker/jobs/claim", "user-1", "", false)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("requeue forwards the wait set", func(t *testing.T) {
		var gotWaiting []string
		jobs := &jobUCStub{
			RequeueFunc: func(ctx context.Context, jobID string, retryCount int, waitingFor []string) error {
				gotWaiting = waitingFor
				return nil
			},
		}
		router := testServer(jobs, &agentUCStub{}).Router()
		rec := doJSON(t, router, http.MethodPost, "/api/v1/worker/jobs/j1/requeue", "",
			`{"retryCount":2,"waitingFor":["dep-1"]}`, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if len(gotWaiting) != 1 || gotWaiting[0] != "dep-1" {
			t.Fatalf("wait set not forwarded: %+v", gotWaiting)
		}
	})
}
