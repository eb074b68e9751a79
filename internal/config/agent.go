package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentConfig holds the field-agent configuration, loaded from a YAML
// file. Zero values are filled with defaults that mirror the server's
// accepted limits.
type AgentConfig struct {
	ServerURL      string
	Token          string
	DatabasePath   string
	SyncInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	RequestTimeout time.Duration
}

const (
	DefaultSyncInterval   = 30 * time.Second
	DefaultBatchSize      = 100
	DefaultMaxAttempts    = 5
	DefaultBackoffBase    = 2 * time.Second
	DefaultBackoffCap     = 5 * time.Minute
	DefaultRequestTimeout = 30 * time.Second
)

// rawAgentConfig is the on-disk shape. Durations are strings like "30s"
// so the file stays human-editable.
type rawAgentConfig struct {
	ServerURL      string `yaml:"server_url"`
	Token          string `yaml:"token"`
	DatabasePath   string `yaml:"database_path"`
	SyncInterval   string `yaml:"sync_interval"`
	BatchSize      int    `yaml:"batch_size"`
	MaxAttempts    int    `yaml:"max_attempts"`
	BackoffBase    string `yaml:"backoff_base"`
	BackoffCap     string `yaml:"backoff_cap"`
	RequestTimeout string `yaml:"request_timeout"`
}

func LoadAgentConfig(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent config: %w", err)
	}

	var raw rawAgentConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse agent config: %w", err)
	}

	cfg := &AgentConfig{
		ServerURL:    raw.ServerURL,
		Token:        raw.Token,
		DatabasePath: raw.DatabasePath,
		BatchSize:    raw.BatchSize,
		MaxAttempts:  raw.MaxAttempts,
	}

	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"sync_interval", raw.SyncInterval, &cfg.SyncInterval},
		{"backoff_base", raw.BackoffBase, &cfg.BackoffBase},
		{"backoff_cap", raw.BackoffCap, &cfg.BackoffCap},
		{"request_timeout", raw.RequestTimeout, &cfg.RequestTimeout},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	cfg.applyDefaults()

	if cfg.ServerURL == "" {
		return nil, errors.New("server_url is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("token is required")
	}
	if cfg.DatabasePath == "" {
		return nil, errors.New("database_path is required")
	}
	if cfg.BatchSize > 100 {
		return nil, errors.New("batch_size must not exceed 100")
	}

	return cfg, nil
}

func (c *AgentConfig) applyDefaults() {
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}
