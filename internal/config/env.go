package config

import (
	"os"
	"time"
)

// applyEnv overlays FAULTLINE_* environment variables on a loaded config.
func applyEnv(cfg *Config) {
	if url := os.Getenv("FAULTLINE_TARGET_URL"); url != "" {
		cfg.Target.BaseURL = url
	}
	if endpoint := os.Getenv("FAULTLINE_TARGET_ENDPOINT"); endpoint != "" {
		cfg.Target.Endpoint = endpoint
	}
	if level := os.Getenv("FAULTLINE_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if cooldown := os.Getenv("FAULTLINE_COOLDOWN"); cooldown != "" {
		if d, err := time.ParseDuration(cooldown); err == nil {
			cfg.Cooldown = Duration(d)
		}
	}
}
