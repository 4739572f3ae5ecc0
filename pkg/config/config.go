package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	APIBaseURL                string
	APIToken                  string
	DatabaseBusyTimeout       time.Duration
	DatabaseConnectRetryCount int
	DatabaseConnectRetryDelay time.Duration
	DatabaseDebug             bool
	DatabaseFilePath          string
	DatabaseMaxRetries        int
	EmbedScriptURL            string
	ExcludedFolders           []string
	HTTPTimeout               time.Duration
	Hostname                  string
	MaxEmbedURLLength         int
	MediaDir                  string
	PollInterval              time.Duration
	RateLimitCooldown         time.Duration
	RequestPacing             time.Duration
	RootFolderName            string
	ThumbnailWidth            int
}

const environmentENV = "ENVIRONMENT"

func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{
		APIBaseURL:                "https://api.datawrapper.de/v3",
		APIToken:                  os.Getenv("DATAWRAPPER_API_TOKEN"),
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseMaxRetries:        5,
		EmbedScriptURL:            "https://static.rndtech.de/share/rnd/datenrecherche/script/dw_chart_min.js",
		ExcludedFolders:           []string{"printexport"},
		HTTPTimeout:               30 * time.Second,
		Hostname:                  hostname,
		MaxEmbedURLLength:         990,
		PollInterval:              15 * time.Minute,
		RateLimitCooldown:         30 * time.Second,
		RequestPacing:             500 * time.Millisecond,
		RootFolderName:            "RND",
		ThumbnailWidth:            800,
	}

	switch os.Getenv(environmentENV) {
	case "development", "":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
		loadProductionConfig(cfg)
	}

	return cfg, nil
}
