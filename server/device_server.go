package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/room4-2/asr-worker/config"
	"github.com/room4-2/asr-worker/coordinator"
	"github.com/room4-2/asr-worker/messages"
	"github.com/room4-2/asr-worker/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const deviceWriteWait = 10 * time.Second

// DeviceServer accepts device connections and bridges them to ASR workers
type DeviceServer struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	manager    *coordinator.Manager
	config     *config.Config
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewDeviceServer(cfg *config.Config, manager *coordinator.Manager, m *metrics.Metrics, logger *zap.Logger) *DeviceServer {
	s := &DeviceServer{
		manager: manager,
		config:  cfg,
		metrics: m,
		logger:  logger.Named("device-server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    64 * 1024, // 64KB for audio chunks
			WriteBufferSize:   64 * 1024,
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// devices don't send browser Origin headers
				if origin == "" {
					return true
				}
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.FrontendPort),
		Handler: mux,
		// No ReadTimeout/WriteTimeout: device connections are long-lived.
	}

	return s
}

// Start begins listening for connections
func (s *DeviceServer) Start() error {
	s.logger.Info("🚀 device server starting", zap.String("addr", s.httpServer.Addr))
	s.logger.Info(fmt.Sprintf("📡 device endpoint: ws://localhost:%d/ws", s.config.FrontendPort))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *DeviceServer) Shutdown(ctx context.Context) error {
	s.logger.Info("🛑 shutting down device server...")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the HTTP handler of the server
func (s *DeviceServer) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *DeviceServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("device websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	worker, err := s.manager.Pick()
	if err != nil {
		s.logger.Error("❌ rejecting device", zap.String("remote", r.RemoteAddr), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(deviceWriteWait))
		return
	}

	sess := worker.NewSession()
	logger := s.logger.With(zap.String("session_id", sess.ID), zap.String("worker_id", worker.ID))

	var writeMu sync.Mutex
	sess.OnText(func(text string) {
		data, err := messages.NewTextMessage(text).Marshal()
		if err != nil {
			logger.Error("failed to encode text message", zap.Error(err))
			return
		}

		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(deviceWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Warn("failed to send text to device", zap.Error(err))
			return
		}
		logger.Debug("💬 text sent to device", zap.String("text", text))
	})
	// the device has nothing to talk to once its worker is gone
	sess.OnClose(func() {
		conn.Close()
	})

	s.metrics.ConnectedDevices.Inc()
	defer s.metrics.ConnectedDevices.Dec()

	logger.Info("✅ device connected", zap.String("remote", r.RemoteAddr))

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		switch messageType {
		case websocket.BinaryMessage:
			if err := sess.SendAudio(data); err != nil {
				logger.Warn("failed to forward audio", zap.Error(err))
				if errors.Is(err, coordinator.ErrSessionClosed) {
					return
				}
			}
		case websocket.TextMessage:
			s.handleDeviceText(sess, data, logger)
		}
	}

	if err := sess.Finish(); err != nil {
		logger.Warn("failed to finish session", zap.Error(err))
	}
	logger.Info("🔌 device disconnected")
}

func (s *DeviceServer) handleDeviceText(sess *coordinator.Session, data []byte, logger *zap.Logger) {
	ctrl, err := messages.ParseControl(data)
	if err != nil {
		logger.Warn("invalid device message", zap.Error(err))
		return
	}

	if ctrl.Type != messages.TypeListen {
		logger.Warn("unknown device message type", zap.String("type", ctrl.Type))
		return
	}

	if err := sess.SendControl(ctrl); err != nil {
		logger.Warn("failed to forward control message", zap.Error(err))
	}
}

func (s *DeviceServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","server":"frontend","workers":%d}`, s.manager.WorkerCount())
}
