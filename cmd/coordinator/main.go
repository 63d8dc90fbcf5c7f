package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/room4-2/asr-worker/config"
	"github.com/room4-2/asr-worker/coordinator"
	"github.com/room4-2/asr-worker/logging"
	"github.com/room4-2/asr-worker/metrics"
	"github.com/room4-2/asr-worker/server"

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

	// Create worker pool
	manager := coordinator.NewManager(cfg.PingInterval, m, logger)

	// Start ping routine
	ctx, cancel := context.WithCancel(context.Background())
	go manager.StartPingRoutine(ctx)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Both servers share the in-process worker pool, so they always run together
	deviceSrv := server.NewDeviceServer(cfg, manager, m, logger)
	workerSrv := server.NewWorkerServer(cfg, manager, prometheus.DefaultGatherer, logger)

	go func() {
		<-sigChan
		logger.Info("Received shutdown signal...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := deviceSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("device server shutdown error", zap.Error(err))
		}
		if err := workerSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("worker server shutdown error", zap.Error(err))
		}
	}()

	// Start worker server in background
	go func() {
		if err := workerSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("worker server error", zap.Error(err))
		}
	}()

	// Start device server (blocks)
	if err := deviceSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("device server error", zap.Error(err))
	}

	logger.Info("Coordinator stopped")
}
