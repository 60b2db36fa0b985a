// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the environment-level server configuration.
type Config struct {
	RPCURL           string
	DashboardURL     string
	RedirectURL      string
	Treasury         string
	EncryptionKey    string
	SessionKeyExpiry time.Duration
	RefreshThreshold time.Duration
	StateTTL         time.Duration
	AuditEnabled     bool
	Port             int
	DataDir          string
	RedisAddr        string
}

// Load reads configuration from the environment, honoring a .env file if
// present. Values are validated later by backend.New; this layer only
// parses.
func Load() (*Config, error) {
	// Missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	cfg := &Config{
		RPCURL:        os.Getenv("ABSTRAXION_RPC_URL"),
		DashboardURL:  os.Getenv("ABSTRAXION_DASHBOARD_URL"),
		RedirectURL:   os.Getenv("ABSTRAXION_REDIRECT_URL"),
		Treasury:      os.Getenv("ABSTRAXION_TREASURY"),
		EncryptionKey: os.Getenv("ABSTRAXION_ENCRYPTION_KEY"),
		DataDir:       envDefault("ABSTRAXION_DATA_DIR", "./data"),
		RedisAddr:     os.Getenv("ABSTRAXION_REDIS_ADDR"),
	}

	var err error
	if cfg.SessionKeyExpiry, err = envMillis("ABSTRAXION_SESSION_KEY_EXPIRY_MS", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RefreshThreshold, err = envMillis("ABSTRAXION_REFRESH_THRESHOLD_MS", time.Hour); err != nil {
		return nil, err
	}
	if cfg.StateTTL, err = envMillis("ABSTRAXION_STATE_TTL_MS", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.AuditEnabled, err = envBool("ABSTRAXION_AUDIT_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.Port, err = envInt("ABSTRAXION_PORT", 8080); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envMillis(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer of milliseconds, got %q", key, raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return v, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return v, nil
}
