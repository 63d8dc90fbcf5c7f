package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/room4-2/asr-worker/config"
	"github.com/room4-2/asr-worker/coordinator"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// WorkerServer accepts connections from ASR workers
type WorkerServer struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	manager    *coordinator.Manager
	config     *config.Config
	logger     *zap.Logger
}

func NewWorkerServer(cfg *config.Config, manager *coordinator.Manager, gatherer prometheus.Gatherer, logger *zap.Logger) *WorkerServer {
	s := &WorkerServer{
		manager: manager,
		config:  cfg,
		logger:  logger.Named("worker-server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// Workers are backend processes, not browsers.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/asr", s.handleWorker)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.BackendPort),
		Handler: mux,
		// No ReadTimeout/WriteTimeout: these interfere with long-lived WebSocket connections.
	}

	return s
}

// Start begins listening for connections
func (s *WorkerServer) Start() error {
	s.logger.Info("🚀 worker server starting", zap.String("addr", s.httpServer.Addr))
	s.logger.Info(fmt.Sprintf("📡 worker endpoint: ws://localhost%s/asr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *WorkerServer) Shutdown(ctx context.Context) error {
	s.logger.Info("🛑 shutting down worker server...")
	s.manager.Shutdown()
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the HTTP handler of the server
func (s *WorkerServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// GetAddr returns the server's listen address
func (s *WorkerServer) GetAddr() string {
	return s.httpServer.Addr
}

func (s *WorkerServer) handleWorker(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("worker websocket upgrade failed", zap.Error(err))
		return
	}

	worker := s.manager.Attach(conn, coordinator.WorkerID(r.RemoteAddr))

	// Wait for the worker connection to close
	<-worker.Done()
}

func (s *WorkerServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","server":"backend","workers":%d}`, s.manager.WorkerCount())
}
