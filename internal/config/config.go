package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds environment-driven configuration.
type Config struct {
	Toggl struct {
		BaseURL string // default: https://api.track.toggl.com
	}
	Profiles struct {
		Path string // YAML profile catalog, e.g. ~/.config/toggl-companion/profiles.yaml
	}
	Sync struct {
		Debounce       time.Duration // quiet period before a coalesced edit fires
		Window         time.Duration // sliding request-budget window
		WindowRequests int           // max requests per window across all targets
		MaxAttempts    int           // transient retry ceiling
		RecentWindow   time.Duration // how far back the recent-entries fetch reaches
		HistoryDepth   int           // undo stack capacity
	}
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var cfg Config

	cfg.Toggl.BaseURL = os.Getenv("TOGGL_BASE_URL")
	if cfg.Toggl.BaseURL == "" {
		cfg.Toggl.BaseURL = "https://api.track.toggl.com"
	}

	cfg.Profiles.Path = os.Getenv("PROFILES_PATH")
	if cfg.Profiles.Path == "" {
		return cfg, errors.New("PROFILES_PATH is required")
	}

	var err error
	if cfg.Sync.Debounce, err = durationEnv("SYNC_DEBOUNCE", 300*time.Millisecond); err != nil {
		return cfg, err
	}
	if cfg.Sync.Window, err = durationEnv("SYNC_WINDOW", time.Second); err != nil {
		return cfg, err
	}
	if cfg.Sync.WindowRequests, err = intEnv("SYNC_WINDOW_REQUESTS", 1); err != nil {
		return cfg, err
	}
	if cfg.Sync.MaxAttempts, err = intEnv("SYNC_MAX_ATTEMPTS", 4); err != nil {
		return cfg, err
	}
	if cfg.Sync.RecentWindow, err = durationEnv("SYNC_RECENT_WINDOW", 14*24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.Sync.HistoryDepth, err = intEnv("SYNC_HISTORY_DEPTH", 100); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, errors.New(key + " must be a positive duration")
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New(key + " must be a positive integer")
	}
	return n, nil
}
