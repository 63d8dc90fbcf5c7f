package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envVars = []string{
	"CONFIG_FILE", "COORDINATOR_URL", "METRICS_PORT", "RECONNECT_DELAY",
	"RECOGNIZE_TIMEOUT", "PLACEHOLDER_TEXT", "DEBUG_PAYLOADS", "GEMINI_API_KEY",
	"GEMINI_MODEL", "SAMPLE_RATE", "FRONTEND_PORT", "BACKEND_PORT",
	"PING_INTERVAL", "ALLOWED_ORIGINS", "REDIS_URL", "REDIS_PASSWORD",
	"SESSION_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		// t.Setenv restores the previous value when the test ends
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.CoordinatorURL != "ws://localhost:8081/asr" {
		t.Errorf("CoordinatorURL = %q, want default", cfg.CoordinatorURL)
	}
	if cfg.FrontendPort != 8082 {
		t.Errorf("FrontendPort = %d, want 8082", cfg.FrontendPort)
	}
	if cfg.BackendPort != 8081 {
		t.Errorf("BackendPort = %d, want 8081", cfg.BackendPort)
	}
	if cfg.MetricsPort != 9091 {
		t.Errorf("MetricsPort = %d, want 9091", cfg.MetricsPort)
	}
	if cfg.PlaceholderText != DefaultPlaceholderText {
		t.Errorf("PlaceholderText = %q, want default", cfg.PlaceholderText)
	}
	if cfg.SessionTimeout != 30*time.Minute {
		t.Errorf("SessionTimeout = %v, want 30m", cfg.SessionTimeout)
	}
	if cfg.PingInterval != 30*time.Second {
		t.Errorf("PingInterval = %v, want 30s", cfg.PingInterval)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", cfg.SampleRate)
	}
	if cfg.DebugPayloads {
		t.Error("DebugPayloads should default to false")
	}
	if cfg.RecognizerEnabled() {
		t.Error("RecognizerEnabled should be false without GEMINI_API_KEY")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("COORDINATOR_URL", "ws://coordinator:9000/asr")
	t.Setenv("METRICS_PORT", "9200")
	t.Setenv("RECONNECT_DELAY", "2")
	t.Setenv("RECOGNIZE_TIMEOUT", "10")
	t.Setenv("PLACEHOLDER_TEXT", "stub")
	t.Setenv("DEBUG_PAYLOADS", "true")
	t.Setenv("GEMINI_API_KEY", "key-123")
	t.Setenv("GEMINI_MODEL", "gemini-test")
	t.Setenv("SAMPLE_RATE", "8000")
	t.Setenv("FRONTEND_PORT", "7000")
	t.Setenv("BACKEND_PORT", "7001")
	t.Setenv("PING_INTERVAL", "15")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("REDIS_URL", "redis:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("SESSION_TIMEOUT", "5")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.CoordinatorURL != "ws://coordinator:9000/asr" {
		t.Errorf("CoordinatorURL = %q", cfg.CoordinatorURL)
	}
	if cfg.MetricsPort != 9200 {
		t.Errorf("MetricsPort = %d, want 9200", cfg.MetricsPort)
	}
	if cfg.ReconnectDelay != 2*time.Second {
		t.Errorf("ReconnectDelay = %v, want 2s", cfg.ReconnectDelay)
	}
	if cfg.RecognizeTimeout != 10*time.Second {
		t.Errorf("RecognizeTimeout = %v, want 10s", cfg.RecognizeTimeout)
	}
	if cfg.PlaceholderText != "stub" {
		t.Errorf("PlaceholderText = %q, want stub", cfg.PlaceholderText)
	}
	if !cfg.DebugPayloads {
		t.Error("DebugPayloads = false, want true")
	}
	if !cfg.RecognizerEnabled() || cfg.GeminiModel != "gemini-test" {
		t.Errorf("Gemini config = %q/%q", cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	if cfg.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want 8000", cfg.SampleRate)
	}
	if cfg.FrontendPort != 7000 || cfg.BackendPort != 7001 {
		t.Errorf("Ports = %d/%d, want 7000/7001", cfg.FrontendPort, cfg.BackendPort)
	}
	if cfg.PingInterval != 15*time.Second {
		t.Errorf("PingInterval = %v, want 15s", cfg.PingInterval)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.RedisURL != "redis:6379" || cfg.RedisPassword != "secret" {
		t.Errorf("Redis = %q/%q", cfg.RedisURL, cfg.RedisPassword)
	}
	if cfg.SessionTimeout != 5*time.Minute {
		t.Errorf("SessionTimeout = %v, want 5m", cfg.SessionTimeout)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "console" {
		t.Errorf("Logging = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		errorMsg string
	}{
		{"bad metrics port", "METRICS_PORT", "abc", "invalid METRICS_PORT"},
		{"port out of range", "BACKEND_PORT", "70000", "invalid BACKEND_PORT"},
		{"bad session timeout", "SESSION_TIMEOUT", "soon", "invalid SESSION_TIMEOUT"},
		{"zero ping interval", "PING_INTERVAL", "0", "invalid PING_INTERVAL"},
		{"bad debug flag", "DEBUG_PAYLOADS", "maybe", "invalid DEBUG_PAYLOADS"},
		{"bad sample rate", "SAMPLE_RATE", "-1", "invalid SAMPLE_RATE"},
		{"bad log format", "LOG_FORMAT", "xml", "invalid LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
coordinator_url: ws://from-file:8081/asr
frontend_port: 9082
ping_interval: 45s
session_timeout: 10m
placeholder_text: from file
allowed_origins:
  - http://device.local
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	// environment still wins over the file
	t.Setenv("FRONTEND_PORT", "9999")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.CoordinatorURL != "ws://from-file:8081/asr" {
		t.Errorf("CoordinatorURL = %q", cfg.CoordinatorURL)
	}
	if cfg.FrontendPort != 9999 {
		t.Errorf("FrontendPort = %d, want env override 9999", cfg.FrontendPort)
	}
	if cfg.PingInterval != 45*time.Second {
		t.Errorf("PingInterval = %v, want 45s", cfg.PingInterval)
	}
	if cfg.SessionTimeout != 10*time.Minute {
		t.Errorf("SessionTimeout = %v, want 10m", cfg.SessionTimeout)
	}
	if cfg.PlaceholderText != "from file" {
		t.Errorf("PlaceholderText = %q", cfg.PlaceholderText)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://device.local" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	// untouched fields keep defaults
	if cfg.BackendPort != 8081 {
		t.Errorf("BackendPort = %d, want default 8081", cfg.BackendPort)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected read error, got %v", err)
	}
}
