package coordinator

import (
	"sync"
	"time"

	"github.com/room4-2/asr-worker/messages"
	"github.com/room4-2/asr-worker/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second
	pingWait  = 5 * time.Second
)

// Worker is the coordinator side of one ASR worker connection
type Worker struct {
	ID string

	conn    *websocket.Conn
	writeMu sync.Mutex

	sessions map[string]*Session
	mu       sync.RWMutex

	done      chan struct{}
	closeOnce sync.Once

	metrics *metrics.Metrics
	logger  *zap.Logger
}

func newWorker(id string, conn *websocket.Conn, m *metrics.Metrics, logger *zap.Logger) *Worker {
	return &Worker{
		ID:       id,
		conn:     conn,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
		metrics:  m,
		logger:   logger.With(zap.String("worker_id", id)),
	}
}

// NewSession opens a session with a fresh id on this worker
func (w *Worker) NewSession() *Session {
	s := newSession(uuid.New().String(), w)

	w.mu.Lock()
	w.sessions[s.ID] = s
	w.mu.Unlock()

	s.logger.Info("🎙️ session opened")
	return s
}

// RemoveSession forgets the session with id
func (w *Worker) RemoveSession(id string) {
	w.mu.Lock()
	_, ok := w.sessions[id]
	delete(w.sessions, id)
	w.mu.Unlock()

	if ok {
		w.logger.Info("🔚 session removed", zap.String("session_id", id))
	}
}

// SessionCount returns the number of open sessions
func (w *Worker) SessionCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.sessions)
}

func (w *Worker) session(id string) (*Session, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.sessions[id]
	return s, ok
}

// Done is closed once the worker connection is gone
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Close closes every session and the connection
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		sessions := make([]*Session, 0, len(w.sessions))
		for _, s := range w.sessions {
			sessions = append(sessions, s)
		}
		w.sessions = make(map[string]*Session)
		w.mu.Unlock()

		for _, s := range sessions {
			s.close()
		}

		w.conn.Close()
		close(w.done)
	})
}

func (w *Worker) send(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(messageType, data)
}

func (w *Worker) ping() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingWait))
}

// readLoop dispatches worker responses until the connection fails
func (w *Worker) readLoop() {
	defer w.Close()

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Warn("⚠️ worker connection lost", zap.Error(err))
			}
			return
		}

		if messageType != websocket.TextMessage {
			w.logger.Warn("unexpected binary message from worker", zap.Int("bytes", len(data)))
			continue
		}
		w.handleResponse(data)
	}
}

func (w *Worker) handleResponse(data []byte) {
	resp, err := messages.ParseResponse(data)
	if err != nil {
		w.logger.Error("❌ failed to parse worker response", zap.Error(err))
		return
	}
	w.metrics.ResponsesRouted.WithLabelValues(responseLabel(resp.Type)).Inc()

	switch resp.Type {
	case messages.TypeChat:
		s, ok := w.session(resp.SessionID)
		if !ok {
			w.logger.Debug("response for unknown session", zap.String("session_id", resp.SessionID))
			return
		}
		s.deliverText(resp.Content)
	case messages.TypeError:
		w.logger.Warn("⚠️ worker reported an error",
			zap.String("session_id", resp.SessionID),
			zap.String("error", resp.Content),
		)
	default:
		w.logger.Warn("unknown response type", zap.String("type", resp.Type))
	}
}

// responseLabel keeps the metric label set bounded
func responseLabel(typ string) string {
	switch typ {
	case messages.TypeChat, messages.TypeError:
		return typ
	default:
		return metrics.ReasonOther
	}
}
