package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"ai-studio-backend/internal/domain/model"
	"ai-studio-backend/internal/infra/logging"
	"ai-studio-backend/internal/usecase"
)

// streamFrame is one newline-delimited JSON frame on the job stream.
type streamFrame struct {
	Type      string    `json:"type"`
	Jobs      []jobJSON `json:"jobs,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// handleJobStream re-queries the caller's active and recently-terminal jobs
// on a fixed tick and pushes the full snapshot. Snapshots are at-least-once;
// clients must treat duplicates as idempotent. The stream self-terminates
// after the configured max lifetime, forcing a client reconnect.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	userID := logging.UserIDFrom(r.Context())
	log := logging.With(r.Context(), s.log)

	if err := writeFrame(w, flusher, streamFrame{Type: "connected"}); err != nil {
		return
	}

	poll := time.NewTicker(s.stream.PollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(s.stream.HeartbeatInterval)
	defer heartbeat.Stop()
	lifetime := time.NewTimer(s.stream.MaxLifetime)
	defer lifetime.Stop()

	push := func() bool {
		since := time.Now().Add(-s.stream.TerminalWindow)
		jobs, err := s.jobUC.ListForStream(r.Context(), userID, since)
		if err != nil {
			log.Warn().Err(err).Msg("job stream query failed")
			_ = writeFrame(w, flusher, streamFrame{Type: "error", Message: "snapshot query failed"})
			return true // transient; keep the connection
		}
		return writeFrame(w, flusher, streamFrame{
			Type:      "jobs_update",
			Jobs:      toJobsJSON(jobs),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}) == nil
	}

	if !push() {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-lifetime.C:
			log.Debug().Msg("job stream lifetime reached")
			return
		case <-heartbeat.C:
			if writeFrame(w, flusher, streamFrame{Type: "heartbeat"}) != nil {
				return
			}
		case <-poll.C:
			if !push() {
				return
			}
		}
	}
}

// agentExecuteRequest accepts both shapes: a new turn or a resume.
type agentExecuteRequest struct {
	Message        string                `json:"message,omitempty"`
	ConversationID string                `json:"conversationId,omitempty"`
	ProjectID      string                `json:"projectId,omitempty"`
	Context        model.UserContext     `json:"context,omitempty"`
	ThreadID       string                `json:"threadId,omitempty"`
	ResumeValue    *model.ResumeDecision `json:"resumeValue,omitempty"`
}

// threadLocks serializes executions per thread: concurrent resumes of the
// same thread are not safe, and the graph does not guard against them itself.
// Entries are refcounted and evicted once the last holder releases, so the
// map stays bounded by the number of in-flight executions.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: map[string]*threadLock{}}
}

func (t *threadLocks) acquire(threadID string) func() {
	t.mu.Lock()
	l, ok := t.locks[threadID]
	if !ok {
		l = &threadLock{}
		t.locks[threadID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, threadID)
		}
		t.mu.Unlock()
	}
}

// handleAgentExecute runs one agent execution and pushes one NDJSON event per
// graph transition. The response terminates exactly once per execution: after
// complete, after an interrupt, or after an error.
func (s *Server) handleAgentExecute(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var req agentExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, resultJSON{Success: false, Error: "malformed request"})
		return
	}

	userID := logging.UserIDFrom(r.Context())
	agentReq := usecase.AgentRequest{
		UserID:         userID,
		Message:        req.Message,
		ConversationID: req.ConversationID,
		ProjectID:      req.ProjectID,
		Context:        req.Context,
		ThreadID:       req.ThreadID,
		Resume:         req.ResumeValue,
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = usecase.DeriveThreadID(req.ProjectID, req.ConversationID)
	}
	unlock := s.threads.acquire(threadID)
	defer unlock()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var wmu sync.Mutex
	emit := func(ev usecase.AgentEvent) {
		wmu.Lock()
		defer wmu.Unlock()
		_ = writeFrame(w, flusher, ev)
	}

	ctx := logging.WithThreadID(r.Context(), threadID)
	if err := s.agentUC.Execute(ctx, agentReq, emit); err != nil {
		logging.With(ctx, s.log).Error().Err(err).Msg("agent execution error")
	}
}
