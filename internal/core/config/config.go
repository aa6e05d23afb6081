package config

import (
	"time"

	"github.com/dvanle/relay/internal/ingest/retry"
	redisclient "github.com/dvanle/relay/internal/infra/redis"
	"github.com/dvanle/relay/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	ControlPlane ControlPlaneConfig `yaml:"control_plane"`
	Retry        RetryConfig        `yaml:"retry"`
	Routes       []RouteConfig      `yaml:"routes"`
	Ingesters    IngesterConfig     `yaml:"ingesters"`
	Redis        redisclient.Config `yaml:"redis"`
	Database     postgres.Config    `yaml:"database"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds the HTTP server settings for health and metrics.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ControlPlaneConfig holds settings for the shard-metadata API.
type ControlPlaneConfig struct {
	URL             string        `yaml:"url"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Timeout         time.Duration `yaml:"timeout"`
}

// RetryConfig holds the backoff schedule for writes and metadata fetches.
type RetryConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Params converts the config section into the retry executor's parameters.
func (c RetryConfig) Params() retry.Params {
	return retry.Params{
		BaseDelay:   c.BaseDelay,
		MaxDelay:    c.MaxDelay,
		MaxAttempts: c.MaxAttempts,
	}
}

// RouteConfig holds settings for one (index, source) publishing route.
type RouteConfig struct {
	Index        string        `yaml:"index"`
	Source       string        `yaml:"source"`
	BatchSize    int           `yaml:"batch_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// IngesterConfig maps shard leader IDs to the endpoints records are written to.
type IngesterConfig struct {
	Endpoints map[string]string `yaml:"endpoints"`
	Timeout   time.Duration     `yaml:"timeout"`
	Transport string            `yaml:"transport"` // http (default), grpc
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
