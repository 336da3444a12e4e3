package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the task console service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	BackendRPCURL string
	SendTimeout   time.Duration
	HistoryLength int

	StreamWSURL string
	StreamTopic string
}

// Load reads environment variables and applies safe defaults. A .env file in
// the working directory is picked up first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8787"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "taskdeck"),
		AllowAnyOrigin:   false,
		BackendRPCURL:    envOrDefault("BACKEND_RPC_URL", "http://localhost:8000/rpc"),
		StreamWSURL:      stringsTrimSpace("STREAM_WS_URL"),
		StreamTopic:      envOrDefault("STREAM_TOPIC", "state.updates"),
		ShutdownTimeout:  15 * time.Second,
		SendTimeout:      60 * time.Second,
		HistoryLength:    100,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SendTimeout, err = durationFromEnv("BACKEND_SEND_TIMEOUT", cfg.SendTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryLength, err = intFromEnv("HISTORY_LENGTH", cfg.HistoryLength)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.BackendRPCURL == "" {
		return Config{}, fmt.Errorf("BACKEND_RPC_URL must not be empty")
	}
	if cfg.SendTimeout < time.Second {
		return Config{}, fmt.Errorf("BACKEND_SEND_TIMEOUT must be at least 1s")
	}
	if cfg.HistoryLength <= 0 {
		return Config{}, fmt.Errorf("HISTORY_LENGTH must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
