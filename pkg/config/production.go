package config

import (
	"os"
	"time"
)

func loadProductionConfig(cfg *Config) {
	cfg.DatabaseFilePath = "/data/archiv.sqlite"
	cfg.MediaDir = "/data/media"

	if path := os.Getenv("DATABASE_FILE_PATH"); path != "" {
		cfg.DatabaseFilePath = path
	}
	if dir := os.Getenv("MEDIA_DIR"); dir != "" {
		cfg.MediaDir = dir
	}
	if interval := os.Getenv("POLL_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			d = max(d, time.Minute)
			cfg.PollInterval = d
		}
	}
	if root := os.Getenv("ROOT_FOLDER_NAME"); root != "" {
		cfg.RootFolderName = root
	}
}
