package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"CHAT_API_URL", "CHAT_WS_URL", "CHAT_TOKEN", "RECONNECT_BASE_DELAY", "RECONNECT_MAX_ATTEMPTS",
		"HISTORY_LIMIT", "HTTP_TIMEOUT", "WS_READ_LIMIT", "DATABASE_URL", "METRICS_ADDR", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reconnect.BaseDelay != 2*time.Second {
		t.Errorf("expected base delay 2s, got %v", cfg.Reconnect.BaseDelay)
	}
	if cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("expected 5 max attempts, got %d", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Server.WebSocketURL != "ws://localhost:8081/api/v1/chat/ws" {
		t.Errorf("unexpected websocket url %q", cfg.Server.WebSocketURL)
	}
	if cfg.Server.HistoryLimit != 50 {
		t.Errorf("expected history limit 50, got %d", cfg.Server.HistoryLimit)
	}
	if cfg.Database.URL != "" {
		t.Errorf("archive should be disabled by default, got %q", cfg.Database.URL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RECONNECT_BASE_DELAY", "500ms")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "3")
	t.Setenv("CHAT_TOKEN", "abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reconnect.BaseDelay != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", cfg.Reconnect.BaseDelay)
	}
	if cfg.Reconnect.MaxAttempts != 3 {
		t.Errorf("expected 3, got %d", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Session.Token != "abc" {
		t.Errorf("expected token from env, got %q", cfg.Session.Token)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "RECONNECT_BASE_DELAY", "soon"},
		{"zero delay", "RECONNECT_BASE_DELAY", "0s"},
		{"bad integer", "RECONNECT_MAX_ATTEMPTS", "five"},
		{"negative attempts", "RECONNECT_MAX_ATTEMPTS", "-1"},
		{"zero history", "HISTORY_LIMIT", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
