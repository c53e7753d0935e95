package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"chat-client/pkg/logger"
)

type Config struct {
	Server    ServerConfig
	Reconnect ReconnectConfig
	Session   SessionConfig
	Database  DatabaseConfig
	Metrics   MetricsConfig
	LogLevel  string
}

type ServerConfig struct {
	APIURL       string
	WebSocketURL string
	HTTPTimeout  time.Duration
	ReadLimit    int64
	HistoryLimit int
}

type ReconnectConfig struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

type SessionConfig struct {
	Token string
}

// DatabaseConfig points at the optional local message archive. An empty URL disables it.
type DatabaseConfig struct {
	URL string
}

type MetricsConfig struct {
	Addr string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Debug("No .env file loaded: %v", err)
	}

	baseDelay, err := getDurationOrDefault("RECONNECT_BASE_DELAY", "2s")
	if err != nil {
		return nil, err
	}
	httpTimeout, err := getDurationOrDefault("HTTP_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	maxAttempts, err := getIntOrDefault("RECONNECT_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	historyLimit, err := getIntOrDefault("HISTORY_LIMIT", 50)
	if err != nil {
		return nil, err
	}
	readLimit, err := getIntOrDefault("WS_READ_LIMIT", 64*1024)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			APIURL:       getEnvOrDefault("CHAT_API_URL", "http://localhost:8081/api/v1"),
			WebSocketURL: getEnvOrDefault("CHAT_WS_URL", "ws://localhost:8081/api/v1/chat/ws"),
			HTTPTimeout:  httpTimeout,
			ReadLimit:    int64(readLimit),
			HistoryLimit: historyLimit,
		},
		Reconnect: ReconnectConfig{
			BaseDelay:   baseDelay,
			MaxAttempts: maxAttempts,
		},
		Session: SessionConfig{
			Token: os.Getenv("CHAT_TOKEN"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Metrics: MetricsConfig{
			Addr: os.Getenv("METRICS_ADDR"),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("RECONNECT_BASE_DELAY must be positive")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("RECONNECT_MAX_ATTEMPTS must not be negative")
	}
	if c.Server.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return duration, nil
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return intValue, nil
}
