package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/dvanle/relay/internal/ingest/retry"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.ControlPlane.RefreshInterval == 0 {
		cfg.ControlPlane.RefreshInterval = 30 * time.Second
	}
	if cfg.ControlPlane.Timeout == 0 {
		cfg.ControlPlane.Timeout = 10 * time.Second
	}

	defaults := retry.DefaultParams()
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = defaults.BaseDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = defaults.MaxDelay
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = defaults.MaxAttempts
	}

	if cfg.Ingesters.Timeout == 0 {
		cfg.Ingesters.Timeout = 30 * time.Second
	}
	if cfg.Ingesters.Transport == "" {
		cfg.Ingesters.Transport = "http"
	}

	for i := range cfg.Routes {
		if cfg.Routes[i].BatchSize == 0 {
			cfg.Routes[i].BatchSize = 100
		}
		if cfg.Routes[i].PollInterval == 0 {
			cfg.Routes[i].PollInterval = time.Second
		}
	}
}
