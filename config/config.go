package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPlaceholderText is returned for every frame when no recognizer is configured
const DefaultPlaceholderText = "Hello, this is a test message."

// Config holds worker and coordinator configuration
type Config struct {
	// Worker
	CoordinatorURL   string        `yaml:"coordinator_url"`
	MetricsPort      int           `yaml:"metrics_port"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	RecognizeTimeout time.Duration `yaml:"recognize_timeout"`
	PlaceholderText  string        `yaml:"placeholder_text"`
	DebugPayloads    bool          `yaml:"debug_payloads"`

	// Recognition
	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`
	SampleRate   int    `yaml:"sample_rate"`

	// Coordinator
	FrontendPort   int           `yaml:"frontend_port"`
	BackendPort    int           `yaml:"backend_port"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	AllowedOrigins []string      `yaml:"allowed_origins"`

	// Sessions
	RedisURL       string        `yaml:"redis_url"`
	RedisPassword  string        `yaml:"redis_password"`
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		CoordinatorURL:   "ws://localhost:8081/asr",
		MetricsPort:      9091,
		ReconnectDelay:   5 * time.Second,
		RecognizeTimeout: 30 * time.Second,
		PlaceholderText:  DefaultPlaceholderText,
		GeminiModel:      "gemini-2.5-flash",
		SampleRate:       16000,
		FrontendPort:     8082,
		BackendPort:      8081,
		PingInterval:     30 * time.Second,
		AllowedOrigins:   []string{"*"},
		RedisURL:         "localhost:6379",
		SessionTimeout:   30 * time.Minute,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// LoadConfig loads configuration from an optional YAML file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := Default()

	// Optional: CONFIG_FILE, applied before environment overrides
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.loadEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	if url := os.Getenv("COORDINATOR_URL"); url != "" {
		c.CoordinatorURL = url
	}

	if err := envInt("METRICS_PORT", &c.MetricsPort); err != nil {
		return err
	}

	// Optional: RECONNECT_DELAY (in seconds)
	if err := envDuration("RECONNECT_DELAY", time.Second, &c.ReconnectDelay); err != nil {
		return err
	}

	// Optional: RECOGNIZE_TIMEOUT (in seconds)
	if err := envDuration("RECOGNIZE_TIMEOUT", time.Second, &c.RecognizeTimeout); err != nil {
		return err
	}

	if text := os.Getenv("PLACEHOLDER_TEXT"); text != "" {
		c.PlaceholderText = text
	}

	if debug := os.Getenv("DEBUG_PAYLOADS"); debug != "" {
		b, err := strconv.ParseBool(debug)
		if err != nil {
			return fmt.Errorf("invalid DEBUG_PAYLOADS: %w", err)
		}
		c.DebugPayloads = b
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.GeminiAPIKey = key
	}

	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		c.GeminiModel = model
	}

	if err := envInt("SAMPLE_RATE", &c.SampleRate); err != nil {
		return err
	}

	if err := envInt("FRONTEND_PORT", &c.FrontendPort); err != nil {
		return err
	}

	if err := envInt("BACKEND_PORT", &c.BackendPort); err != nil {
		return err
	}

	// Optional: PING_INTERVAL (in seconds)
	if err := envDuration("PING_INTERVAL", time.Second, &c.PingInterval); err != nil {
		return err
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = strings.Split(origins, ",")
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.RedisURL = redisURL
	}

	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		c.RedisPassword = redisPassword
	}

	// Optional: SESSION_TIMEOUT (in minutes)
	if err := envDuration("SESSION_TIMEOUT", time.Minute, &c.SessionTimeout); err != nil {
		return err
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.LogFormat = format
	}

	return nil
}

// Validate checks values that cannot be corrected at runtime
func (c *Config) Validate() error {
	for name, port := range map[string]int{
		"METRICS_PORT":  c.MetricsPort,
		"FRONTEND_PORT": c.FrontendPort,
		"BACKEND_PORT":  c.BackendPort,
	} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid %s: %d out of range", name, port)
		}
	}

	if c.CoordinatorURL == "" {
		return fmt.Errorf("COORDINATOR_URL must not be empty")
	}

	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SAMPLE_RATE: %d", c.SampleRate)
	}

	if c.PingInterval <= 0 {
		return fmt.Errorf("invalid PING_INTERVAL: %s", c.PingInterval)
	}

	if c.SessionTimeout <= 0 {
		return fmt.Errorf("invalid SESSION_TIMEOUT: %s", c.SessionTimeout)
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'console'")
	}

	return nil
}

// RecognizerEnabled reports whether a real recognizer is configured
func (c *Config) RecognizerEnabled() bool {
	return c.GeminiAPIKey != ""
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, unit time.Duration, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = time.Duration(n) * unit
	return nil
}
