package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminServer exposes /metrics and /health on a separate port, away from the
// user-facing API.
type AdminServer struct {
	server *http.Server
}

func NewAdminServer(port int) *AdminServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return &AdminServer{
		server: &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux},
	}
}

func (s *AdminServer) Start() error {
	MustRegister()
	return s.server.ListenAndServe()
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
