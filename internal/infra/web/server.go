package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"ai-studio-backend/internal/config"
	"ai-studio-backend/internal/usecase"
)

// Server is the user- and worker-facing HTTP surface.
type Server struct {
	jobUC   usecase.JobUseCase
	agentUC usecase.AgentUseCase
	stream  config.StreamConfig
	cfg     config.ServerConfig
	dev     bool
	log     *zerolog.Logger
	threads *threadLocks
	server  *http.Server
}

func NewServer(jobUC usecase.JobUseCase, agentUC usecase.AgentUseCase, cfg config.ServerConfig, stream config.StreamConfig, dev bool, log *zerolog.Logger) *Server {
	return &Server{
		jobUC:   jobUC,
		agentUC: agentUC,
		stream:  stream,
		cfg:     cfg,
		dev:     dev,
		log:     log,
		threads: newThreadLocks(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// User-facing routes: authorized by session identity.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionAuth(s.cfg.SessionSecret, s.dev))

		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/stream", s.handleJobStream)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/jobs/{id}/cancel", s.handleCancelJob)
		r.Post("/jobs/{id}/retry", s.handleRetryJob)

		r.Post("/agent/execute", s.handleAgentExecute)
	})

	// Worker-facing routes: authorized by the capability token, not ownership.
	r.Route("/api/v1/worker", func(r chi.Router) {
		r.Use(WorkerAuth(s.cfg.WorkerToken))

		r.Post("/jobs/claim", s.handleClaimBatch)
		r.Post("/jobs/{id}/start", s.handleStartJob)
		r.Post("/jobs/{id}/progress", s.handleJobProgress)
		r.Post("/jobs/{id}/complete", s.handleCompleteJob)
		r.Post("/jobs/{id}/fail", s.handleFailJob)
		r.Post("/jobs/{id}/requeue", s.handleRequeueJob)
	})

	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.Router(),
		// No WriteTimeout: the job and agent streams outlive any sane value;
		// both bound their own lifetimes.
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", s.cfg.Port).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
