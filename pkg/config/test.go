package config

import "time"

func loadTestConfig(cfg *Config) {
	cfg.DatabaseFilePath = ":memory:"
	cfg.MediaDir = ""

	cfg.HTTPTimeout = 5 * time.Second
	cfg.PollInterval = time.Millisecond
	cfg.RateLimitCooldown = 0
	cfg.RequestPacing = 0
}
