package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8787" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8787")
	}
	if cfg.BackendRPCURL != "http://localhost:8000/rpc" {
		t.Fatalf("BackendRPCURL = %q, want default", cfg.BackendRPCURL)
	}
	if cfg.StreamTopic != "state.updates" {
		t.Fatalf("StreamTopic = %q, want %q", cfg.StreamTopic, "state.updates")
	}
	if cfg.HistoryLength != 100 {
		t.Fatalf("HistoryLength = %d, want 100", cfg.HistoryLength)
	}
	if cfg.SendTimeout != 60*time.Second {
		t.Fatalf("SendTimeout = %v, want 60s", cfg.SendTimeout)
	}
}

func TestLoadUsesExplicitStreamURL(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("STREAM_WS_URL", " ws://localhost:8000/updates \n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StreamWSURL != "ws://localhost:8000/updates" {
		t.Fatalf("StreamWSURL = %q, want trimmed explicit value", cfg.StreamWSURL)
	}
}

func TestLoadRejectsTinySendTimeout(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("BACKEND_SEND_TIMEOUT", "100ms")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want timeout floor violation")
	}
}

func TestLoadRejectsBadHistoryLength(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("HISTORY_LENGTH", "nope")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want parse error")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"BACKEND_RPC_URL",
		"BACKEND_SEND_TIMEOUT",
		"HISTORY_LENGTH",
		"STREAM_WS_URL",
		"STREAM_TOPIC",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
