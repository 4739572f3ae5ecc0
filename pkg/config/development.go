package config

import (
	"os"
	"time"
)

func loadDevelopmentConfig(cfg *Config) {
	cfg.DatabaseDebug = true
	cfg.DatabaseFilePath = "./tmp/data.sqlite"
	cfg.MediaDir = "./tmp/media"

	// A tighter loop is more useful while developing against a test team.
	cfg.PollInterval = 2 * time.Minute

	if base := os.Getenv("DATAWRAPPER_API_BASE_URL"); base != "" {
		cfg.APIBaseURL = base
	}
}
