package core

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	ServiceName         string `koanf:"service_name" mapstructure:"service_name"`
	MaxAttempts         int    `koanf:"max_attempts" mapstructure:"max_attempts"`
	BaseBackoffSeconds  int    `koanf:"base_backoff_seconds" mapstructure:"base_backoff_seconds"`
	MaxBackoffSeconds   int    `koanf:"max_backoff_seconds" mapstructure:"max_backoff_seconds"`
	HTTPTimeoutSeconds  int    `koanf:"http_timeout_seconds" mapstructure:"http_timeout_seconds"`
	WorkerPoolSize      int    `koanf:"worker_pool_size" mapstructure:"worker_pool_size"`
	LeaseTimeoutSeconds int    `koanf:"lease_timeout_seconds" mapstructure:"lease_timeout_seconds"`
	PollIntervalMillis  int    `koanf:"poll_interval_ms" mapstructure:"poll_interval_ms"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:         "webhooks",
		MaxAttempts:         6,
		BaseBackoffSeconds:  1,
		MaxBackoffSeconds:   3600,
		HTTPTimeoutSeconds:  10,
		WorkerPoolSize:      4,
		LeaseTimeoutSeconds: 120,
		PollIntervalMillis:  500,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("core: max_attempts must be >= 1")
	}
	if c.BaseBackoffSeconds < 1 {
		return fmt.Errorf("core: base_backoff_seconds must be >= 1")
	}
	if c.MaxBackoffSeconds < c.BaseBackoffSeconds {
		return fmt.Errorf("core: max_backoff_seconds must be >= base_backoff_seconds")
	}
	if c.HTTPTimeoutSeconds < 1 {
		return fmt.Errorf("core: http_timeout_seconds must be >= 1")
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("core: worker_pool_size must be >= 1")
	}
	if c.LeaseTimeoutSeconds < 1 {
		return fmt.Errorf("core: lease_timeout_seconds must be >= 1")
	}
	if c.PollIntervalMillis < 1 {
		return fmt.Errorf("core: poll_interval_ms must be >= 1")
	}
	return nil
}

func (c Config) BaseBackoff() time.Duration {
	return time.Duration(c.BaseBackoffSeconds) * time.Second
}

func (c Config) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffSeconds) * time.Second
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func (c Config) LeaseTimeout() time.Duration {
	return time.Duration(c.LeaseTimeoutSeconds) * time.Second
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}
