package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ai-studio-backend/internal/domain"
	"ai-studio-backend/internal/domain/model"
	"ai-studio-backend/internal/infra/logging"
)

// jobJSON is the wire shape of a job row.
type jobJSON struct {
	ID              string          `json:"id"`
	ProjectID       string          `json:"projectId,omitempty"`
	Type            string          `json:"type"`
	Status          string          `json:"status"`
	Progress        int             `json:"progress"`
	CurrentStep     int             `json:"currentStep,omitempty"`
	TotalSteps      int             `json:"totalSteps,omitempty"`
	ProgressMessage string          `json:"progressMessage,omitempty"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	ResultData      json.RawMessage `json:"resultData,omitempty"`
	InputData       json.RawMessage `json:"inputData,omitempty"`
	ParentJobID     string          `json:"parentJobId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	StartedAt       *time.Time      `json:"startedAt,omitempty"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func toJobJSON(j *model.Job) jobJSON {
	return jobJSON{
		ID:              j.ID,
		ProjectID:       j.ProjectID,
		Type:            string(j.Type),
		Status:          string(j.Status),
		Progress:        j.Progress,
		CurrentStep:     j.CurrentStep,
		TotalSteps:      j.TotalSteps,
		ProgressMessage: j.ProgressMessage,
		ErrorMessage:    j.ErrorMessage,
		ResultData:      j.ResultData,
		InputData:       j.InputData,
		ParentJobID:     j.ParentJobID,
		CreatedAt:       j.CreatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}

func toJobsJSON(jobs []*model.Job) []jobJSON {
	out := make([]jobJSON, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobJSON(j))
	}
	return out
}

// Mutation outcomes are structured results, never bare HTTP errors, so worker
// loops can branch on them without parsing bodies heuristically.
type resultJSON struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Job     *jobJSON    `json:"job,omitempty"`
	Jobs    []jobJSON   `json:"jobs,omitempty"`
	Extra   interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		code = http.StatusForbidden
	case errors.Is(err, domain.ErrRateLimited):
		code = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNoPendingAction):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
	}
	writeJSON(w, code, resultJSON{Success: false, Error: err.Error()})
}

// ---- user-facing job handlers ----

type createJobRequest struct {
	ProjectID  string          `json:"projectId"`
	Type       string          `json:"type"`
	Input      json.RawMessage `json:"input"`
	TotalSteps int             `json:"totalSteps"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	userID := logging.UserIDFrom(r.Context())
	job, err := s.jobUC.Create(r.Context(), userID, req.ProjectID, model.JobType(req.Type), req.Input, req.TotalSteps)
	if err != nil {
		writeError(w, err)
		return
	}
	j := toJobJSON(job)
	writeJSON(w, http.StatusCreated, resultJSON{Success: true, Job: &j})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	userID := logging.UserIDFrom(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := s.jobUC.List(r.Context(), userID, r.URL.Query().Get("projectId"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultJSON{Success: true, Jobs: toJobsJSON(jobs)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	userID := logging.UserIDFrom(r.Context())
	job, err := s.jobUC.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	j := toJobJSON(job)
	writeJSON(w, http.StatusOK, resultJSON{Success: true, Job: &j})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	userID := logging.UserIDFrom(r.Context())
	job, err := s.jobUC.Cancel(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	j := toJobJSON(job)
	writeJSON(w, http.StatusOK, resultJSON{Success: true, Job: &j})
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	userID := logging.UserIDFrom(r.Context())
	job, err := s.jobUC.Retry(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	j := toJobJSON(job)
	writeJSON(w, http.StatusCreated, resultJSON{Success: true, Job: &j})
}

// ---- worker-facing handlers (capability-token authorized) ----

func (s *Server) handleClaimBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Limit int `json:"limit"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	jobs, err := s.jobUC.ClaimBatch(r.Context(), req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultJSON{Success: true, Jobs: toJobsJSON(jobs)})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	started, err := s.jobUC.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultJSON{Success: true, Extra: map[string]bool{"started": started}})
}

func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Progress    int    `json:"progress"`
		CurrentStep int    `json:"currentStep"`
		Message     string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	if err := s.jobUC.UpdateProgress(r.Context(), chi.URLParam(r, "id"), req.Progress, req.CurrentStep, req.Message); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultJSON{Success: true})
}

func (s *Server) handleCompleteJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	if err := s.jobUC.Complete(r.Context(), chi.URLParam(r, "id"), req.Result); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultJSON{Success: true})
}

func (s *Server) handleFailJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	if err := s.jobUC.Fail(r.Context(), chi.URLParam(r, "id"), req.Error); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultJSON{Success: true})
}

func (s *Server) handleRequeueJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RetryCount int      `json:"retryCount"`
		WaitingFor []string `json:"waitingFor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	if err := s.jobUC.Requeue(r.Context(), chi.URLParam(r, "id"), req.RetryCount, req.WaitingFor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultJSON{Success: true})
}
