package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/room4-2/asr-worker/config"
	"github.com/room4-2/asr-worker/logging"
	"github.com/room4-2/asr-worker/metrics"
	"github.com/room4-2/asr-worker/recognizer"
	"github.com/room4-2/asr-worker/server"
	"github.com/room4-2/asr-worker/session"
	"github.com/room4-2/asr-worker/worker"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	m := metrics.New(prometheus.DefaultRegisterer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Session registry, mirrored to Redis when it is reachable
	opts := []session.Option{session.WithMetrics(m), session.WithLogger(logger)}
	mirror, err := session.NewRedisMirror(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.SessionTimeout, logger)
	if err != nil {
		logger.Warn("⚠️ redis unavailable, sessions are kept in memory only", zap.Error(err))
	} else {
		defer mirror.Close()
		go mirror.Run(ctx)
		opts = append(opts, session.WithMirror(mirror))
	}
	registry := session.NewRegistry(opts...)
	go registry.StartCleanupRoutine(ctx, time.Minute, cfg.SessionTimeout)

	rec, err := newRecognizer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create recognizer", zap.Error(err))
	}

	var hook worker.PayloadHook
	if cfg.DebugPayloads {
		hook = worker.DebugPayloadHook(logger)
	}

	var current atomic.Pointer[worker.Worker]
	status := func() (string, int) {
		w := current.Load()
		if w == nil {
			return worker.StateConnecting.String(), registry.Len()
		}
		return w.State().String(), registry.Len()
	}

	admin := server.NewAdminServer(cfg.MetricsPort, prometheus.DefaultGatherer, status, logger)
	go func() {
		if err := admin.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server error", zap.Error(err))
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received shutdown signal...")
		cancel()
	}()

	for ctx.Err() == nil {
		conn, err := worker.Dial(ctx, cfg.CoordinatorURL)
		if err != nil {
			logger.Warn("⚠️ coordinator unreachable", zap.Error(err), zap.Duration("retry_in", cfg.ReconnectDelay))
			sleep(ctx, cfg.ReconnectDelay)
			continue
		}

		w, err := worker.New(conn, &worker.Config{
			Registry:         registry,
			Recognizer:       rec,
			PlaceholderText:  cfg.PlaceholderText,
			RecognizeTimeout: cfg.RecognizeTimeout,
			PayloadHook:      hook,
			Metrics:          m,
			Logger:           logger,
		})
		if err != nil {
			logger.Fatal("Failed to create worker", zap.Error(err))
		}
		current.Store(w)

		logger.Info("🔗 connected to coordinator", zap.String("url", cfg.CoordinatorURL))
		if err := w.Run(ctx); err != nil {
			logger.Warn("⚠️ worker loop ended", zap.Error(err), zap.Duration("retry_in", cfg.ReconnectDelay))
			sleep(ctx, cfg.ReconnectDelay)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown error", zap.Error(err))
	}

	logger.Info("Worker stopped")
}

func newRecognizer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (recognizer.Recognizer, error) {
	if !cfg.RecognizerEnabled() {
		logger.Info("no GEMINI_API_KEY set, answering with placeholder text")
		return recognizer.NewPlaceholder(cfg.PlaceholderText), nil
	}

	format := recognizer.DefaultWAVFormat
	format.SampleRate = cfg.SampleRate
	return recognizer.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, format, logger)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
