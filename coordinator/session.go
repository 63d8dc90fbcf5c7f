package coordinator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/room4-2/asr-worker/frame"
	"github.com/room4-2/asr-worker/messages"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrSessionClosed is returned when sending on a finished or closed session
var ErrSessionClosed = errors.New("session closed")

// Session is one device conversation multiplexed over a worker connection
type Session struct {
	ID string

	worker *Worker
	logger *zap.Logger

	mu      sync.Mutex
	closed  bool
	onText  func(text string)
	onClose func()
}

func newSession(id string, w *Worker) *Session {
	return &Session{
		ID:     id,
		worker: w,
		logger: w.logger.With(zap.String("session_id", id)),
	}
}

// OnText registers the callback invoked with every recognized text
func (s *Session) OnText(fn func(text string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onText = fn
}

// OnClose registers the callback invoked when the worker connection goes away
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

// SendAudio frames pcm with the session id and forwards it to the worker
func (s *Session) SendAudio(pcm []byte) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	data, err := frame.Encode(&frame.Frame{SessionID: s.ID, PCM: pcm})
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	if err := s.worker.send(websocket.BinaryMessage, data); err != nil {
		return err
	}
	s.worker.metrics.FramesSent.Inc()
	return nil
}

// SendControl stamps ctrl with the session id and forwards it to the worker
func (s *Session) SendControl(ctrl *messages.Control) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	ctrl.SessionID = s.ID
	data, err := ctrl.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode control message: %w", err)
	}
	return s.worker.send(websocket.TextMessage, data)
}

// Finish tells the worker the session is over and detaches it
func (s *Session) Finish() error {
	err := s.SendControl(messages.NewFinishControl(s.ID))
	s.worker.RemoveSession(s.ID)

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) deliverText(text string) {
	s.mu.Lock()
	fn := s.onText
	s.mu.Unlock()

	if fn != nil {
		fn(text)
	}
}

// close marks the session closed and fires OnClose once
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	fn := s.onClose
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}
