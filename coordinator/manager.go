// Package coordinator keeps track of connected ASR workers and the device
// sessions multiplexed over them.
package coordinator

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/room4-2/asr-worker/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrNoWorkers is returned by Pick when no worker is connected
var ErrNoWorkers = errors.New("no asr worker connected")

// Manager is the pool of connected workers
type Manager struct {
	workers map[string]*Worker
	mu      sync.RWMutex

	pingInterval time.Duration
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewManager creates an empty worker pool
func NewManager(pingInterval time.Duration, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		workers:      make(map[string]*Worker),
		pingInterval: pingInterval,
		metrics:      m,
		logger:       logger.Named("coordinator"),
	}
}

// WorkerID derives a worker id from a remote address
func WorkerID(remoteAddr string) string {
	host, port, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	if host == "::1" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// Attach registers conn as a worker and starts reading its responses.
// The worker is detached when its connection fails. A worker already
// registered under id is closed and replaced.
func (m *Manager) Attach(conn *websocket.Conn, id string) *Worker {
	w := newWorker(id, conn, m.metrics, m.logger)

	m.mu.Lock()
	old, exists := m.workers[id]
	m.workers[id] = w
	m.mu.Unlock()

	if exists {
		old.Close()
	} else {
		m.metrics.ConnectedWorkers.Inc()
	}

	go func() {
		w.readLoop()
		m.detachWorker(w)
	}()

	m.logger.Info("✅ asr worker connected", zap.String("worker_id", id))
	return w
}

// Detach closes and forgets the worker with id
func (m *Manager) Detach(id string) {
	m.mu.Lock()
	w, ok := m.workers[id]
	if ok {
		delete(m.workers, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	w.Close()
	m.metrics.ConnectedWorkers.Dec()
	m.logger.Info("🔌 asr worker disconnected", zap.String("worker_id", id))
}

// detachWorker removes w only if it is still the registered worker for its id
func (m *Manager) detachWorker(w *Worker) {
	m.mu.Lock()
	current, ok := m.workers[w.ID]
	if ok && current == w {
		delete(m.workers, w.ID)
	}
	m.mu.Unlock()

	w.Close()
	if ok && current == w {
		m.metrics.ConnectedWorkers.Dec()
		m.logger.Info("🔌 asr worker disconnected", zap.String("worker_id", w.ID))
	}
}

// Pick returns a uniformly random connected worker
func (m *Manager) Pick() (*Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.workers) == 0 {
		return nil, ErrNoWorkers
	}

	n := rand.IntN(len(m.workers))
	for _, w := range m.workers {
		if n == 0 {
			return w, nil
		}
		n--
	}
	return nil, ErrNoWorkers
}

// WorkerCount returns the number of connected workers
func (m *Manager) WorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

func (m *Manager) snapshot() []*Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	workers := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	return workers
}

// StartPingRoutine pings every worker periodically and drops the ones that fail
func (m *Manager) StartPingRoutine(ctx context.Context) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, w := range m.snapshot() {
				if err := w.ping(); err != nil {
					m.logger.Warn("⚠️ worker ping failed", zap.String("worker_id", w.ID), zap.Error(err))
					m.detachWorker(w)
				}
			}
		}
	}
}

// Shutdown closes every worker
func (m *Manager) Shutdown() {
	m.mu.Lock()
	workers := m.workers
	m.workers = make(map[string]*Worker)
	m.mu.Unlock()

	for _, w := range workers {
		w.Close()
		m.metrics.ConnectedWorkers.Dec()
	}
	m.logger.Info("🛑 coordinator shut down", zap.Int("workers", len(workers)))
}
