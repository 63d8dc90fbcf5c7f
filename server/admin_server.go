package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatusFunc reports the worker loop state and the number of tracked sessions
type StatusFunc func() (state string, sessions int)

// AdminServer exposes health and metrics of a worker process
type AdminServer struct {
	httpServer *http.Server
	status     StatusFunc
	logger     *zap.Logger
}

func NewAdminServer(port int, gatherer prometheus.Gatherer, status StatusFunc, logger *zap.Logger) *AdminServer {
	s := &AdminServer{
		status: status,
		logger: logger.Named("admin-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Start begins listening for connections
func (s *AdminServer) Start() error {
	s.logger.Info("📊 admin server starting", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *AdminServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the HTTP handler of the server
func (s *AdminServer) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *AdminServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	state, sessions := s.status()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","state":%q,"sessions":%d}`, state, sessions)
}
