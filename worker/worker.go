// Package worker runs the ASR side of a coordinator connection: it decodes
// binary audio frames, tracks their sessions, recognizes the audio and
// answers with a JSON response carrying the same session id.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/room4-2/asr-worker/config"
	"github.com/room4-2/asr-worker/frame"
	"github.com/room4-2/asr-worker/messages"
	"github.com/room4-2/asr-worker/metrics"
	"github.com/room4-2/asr-worker/recognizer"
	"github.com/room4-2/asr-worker/session"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout            = 10 * time.Second
	defaultRecognizeTimeout = 30 * time.Second
)

// Conn is the duplex message transport. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// deadlineSetter is implemented by transports that support write deadlines
type deadlineSetter interface {
	SetWriteDeadline(t time.Time) error
}

// PayloadHook observes every decoded frame before recognition
type PayloadHook func(f *frame.Frame)

// Config holds the collaborators of a Worker
type Config struct {
	Registry         *session.Registry
	Recognizer       recognizer.Recognizer // nil: placeholder text
	PlaceholderText  string
	RecognizeTimeout time.Duration
	PayloadHook      PayloadHook
	Metrics          *metrics.Metrics
	Logger           *zap.Logger
}

// Worker processes the frames of one connection, one message at a time
type Worker struct {
	conn             Conn
	registry         *session.Registry
	recognizer       recognizer.Recognizer
	recognizeTimeout time.Duration
	payloadHook      PayloadHook
	metrics          *metrics.Metrics
	logger           *zap.Logger

	state     atomic.Int32
	closeOnce sync.Once
}

// New creates a worker for conn
func New(conn Conn, cfg *Config) (*Worker, error) {
	if conn == nil {
		return nil, fmt.Errorf("conn is nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is nil")
	}

	rec := cfg.Recognizer
	if rec == nil {
		text := cfg.PlaceholderText
		if text == "" {
			text = config.DefaultPlaceholderText
		}
		rec = recognizer.NewPlaceholder(text)
	}

	timeout := cfg.RecognizeTimeout
	if timeout <= 0 {
		timeout = defaultRecognizeTimeout
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.NewUnregistered()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Worker{
		conn:             conn,
		registry:         cfg.Registry,
		recognizer:       rec,
		recognizeTimeout: timeout,
		payloadHook:      cfg.PayloadHook,
		metrics:          m,
		logger:           logger.Named("worker"),
	}
	w.setState(StateConnecting)
	return w, nil
}

// State returns the current state of the worker
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// transition moves to s unless the worker has been closed
func (w *Worker) transition(s State) {
	for {
		cur := w.state.Load()
		if State(cur) == StateClosed {
			return
		}
		if w.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// Run processes messages until the transport fails or ctx is cancelled.
// Cancellation is a clean shutdown and returns nil; a transport failure
// returns ErrTransportClosed or a *TransportError.
func (w *Worker) Run(ctx context.Context) error {
	if w.State() == StateClosed {
		return ErrTransportClosed
	}
	w.transition(StateConnected)
	w.logger.Info("✅ worker connected")

	defer w.setState(StateClosed)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Closing the transport is the only way to unblock a pending read
	go func() {
		<-runCtx.Done()
		w.Close()
	}()

	for {
		w.transition(StateReceiving)
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.Close()
			if ctx.Err() != nil {
				w.logger.Info("🛑 worker stopped")
				return nil
			}
			return w.transportFailure("read", err)
		}

		switch messageType {
		case websocket.BinaryMessage:
			if err := w.handleFrame(runCtx, data); err != nil {
				w.Close()
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		default:
			w.handleText(data)
		}

		w.transition(StateConnected)
	}
}

// Close closes the transport and moves the worker to StateClosed. It is idempotent.
func (w *Worker) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.setState(StateClosed)
		err = w.conn.Close()
	})
	return err
}

func (w *Worker) handleText(data []byte) {
	w.metrics.TextMessages.Inc()

	// Non-frame traffic is diagnostic only
	if ctrl, err := messages.ParseControl(data); err == nil {
		w.logger.Info("📨 control message received",
			zap.String("type", ctrl.Type),
			zap.String("session_id", ctrl.SessionID),
			zap.String("data", ctrl.Data),
		)
		return
	}
	w.logger.Info("📨 text message received", zap.ByteString("message", data))
}

// handleFrame returns an error only for transport failures
func (w *Worker) handleFrame(ctx context.Context, data []byte) error {
	w.transition(StateProcessing)
	w.metrics.FramesReceived.Inc()

	f, err := frame.Decode(data)
	if err != nil {
		w.metrics.DecodeErrors.WithLabelValues(decodeErrorReason(err)).Inc()
		w.logger.Error("❌ discarding malformed frame", zap.Int("bytes", len(data)), zap.Error(err))
		return nil
	}
	w.metrics.FramesDecoded.Inc()

	w.registry.ResolveOrCreate(f.SessionID)
	w.registry.Update(f.SessionID, len(f.PCM))

	if w.payloadHook != nil {
		w.payloadHook(f)
	}

	resp := w.recognize(ctx, f)

	payload, err := resp.Marshal()
	if err != nil {
		w.logger.Error("❌ failed to encode response", zap.String("session_id", f.SessionID), zap.Error(err))
		return nil
	}

	w.transition(StateSending)
	if ds, ok := w.conn.(deadlineSetter); ok {
		_ = ds.SetWriteDeadline(time.Now().Add(writeTimeout))
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return w.transportFailure("write", err)
	}
	w.metrics.ResponsesSent.Inc()

	w.logger.Debug("📤 response sent",
		zap.String("session_id", f.SessionID),
		zap.String("type", resp.Type),
		zap.Int("pcm_bytes", len(f.PCM)),
	)
	return nil
}

func (w *Worker) recognize(ctx context.Context, f *frame.Frame) *messages.Response {
	ctx, cancel := context.WithTimeout(ctx, w.recognizeTimeout)
	defer cancel()

	start := time.Now()
	text, err := w.recognizer.Recognize(ctx, f.PCM)
	w.metrics.RecognizeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		w.metrics.RecognizeFailures.Inc()
		w.logger.Warn("⚠️ recognition failed", zap.String("session_id", f.SessionID), zap.Error(err))
		return messages.NewErrorResponse(f.SessionID, fmt.Sprintf("recognition failed: %v", err))
	}
	return messages.NewChatResponse(f.SessionID, text)
}

func (w *Worker) transportFailure(op string, err error) error {
	w.setState(StateClosed)
	if isCleanClose(err) {
		w.logger.Info("🔌 coordinator closed the connection", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	w.logger.Error("❌ transport failure", zap.String("op", op), zap.Error(err))
	return &TransportError{Op: op, Err: err}
}

func decodeErrorReason(err error) string {
	switch {
	case errors.Is(err, frame.ErrTruncatedFrame):
		return metrics.ReasonTruncated
	case errors.Is(err, frame.ErrInvalidEncoding):
		return metrics.ReasonInvalidEncoding
	default:
		return metrics.ReasonOther
	}
}

// DebugPayloadHook logs every decoded payload as a list of integers
func DebugPayloadHook(logger *zap.Logger) PayloadHook {
	return func(f *frame.Frame) {
		samples := make([]int, len(f.PCM))
		for i, b := range f.PCM {
			samples[i] = int(b)
		}
		logger.Debug("🎤 decoded frame",
			zap.String("session_id", f.SessionID),
			zap.Int("pcm_length", len(f.PCM)),
			zap.Ints("pcm", samples),
		)
	}
}
