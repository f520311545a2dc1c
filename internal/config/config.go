// Package config provides configuration loading for the OpenAlex client and CLI.
package config

import (
	"time"

	"github.com/Sternrassler/openalex-client/pkg/batch"
	"github.com/Sternrassler/openalex-client/pkg/client"
	"github.com/Sternrassler/openalex-client/pkg/logging"
	"github.com/Sternrassler/openalex-client/pkg/merge"
	"github.com/Sternrassler/openalex-client/pkg/openalex"
	"github.com/Sternrassler/openalex-client/pkg/ratelimit"
)

// Config represents the complete client configuration. Durations are given
// in seconds.
type Config struct {
	URL       string `yaml:"url" mapstructure:"url"`
	Email     string `yaml:"email" mapstructure:"email"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`

	MaxRetries   int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoff float64 `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	MaxBackoff   float64 `yaml:"max_backoff" mapstructure:"max_backoff"`

	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	RateBuffer float64 `yaml:"rate_buffer" mapstructure:"rate_buffer"`

	TotalTimeout   float64 `yaml:"total_timeout" mapstructure:"total_timeout"`
	ConnectTimeout float64 `yaml:"connect_timeout" mapstructure:"connect_timeout"`

	ConnectionLimit        int `yaml:"connection_limit" mapstructure:"connection_limit"`
	ConnectionLimitPerHost int `yaml:"connection_limit_per_host" mapstructure:"connection_limit_per_host"`

	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	CLIBatchSize  int `yaml:"cli_batch_size" mapstructure:"cli_batch_size"`

	// RedisAddr enables rate limit state shared between processes.
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`

	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	LogPretty bool   `yaml:"log_pretty" mapstructure:"log_pretty"`
}

// DefaultConfig returns a configuration with safe default values.
func DefaultConfig() *Config {
	return &Config{
		URL:                    client.DefaultBaseURL,
		MaxRetries:             3,
		RetryBackoff:           0.5,
		MaxBackoff:             30,
		RateLimit:              10,
		RateBuffer:             0.9,
		TotalTimeout:           30,
		ConnectTimeout:         10,
		ConnectionLimit:        20,
		ConnectionLimitPerHost: 10,
		MaxConcurrent:          batch.DefaultConcurrency,
		CLIBatchSize:           batch.MaxBatchSize,
		LogLevel:               string(logging.LevelInfo),
	}
}

// ClientConfig maps the configuration onto the HTTP client configuration.
// A non-empty RedisAddr makes client.New open, and Close shut, a Redis client.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.BaseURL = c.URL
	cfg.Email = c.Email
	cfg.APIKey = c.APIKey
	cfg.UserAgent = c.UserAgent
	cfg.Retry = client.RetryConfig{
		MaxRetries:  c.MaxRetries,
		BackoffBase: seconds(c.RetryBackoff),
		MaxBackoff:  seconds(c.MaxBackoff),
		MaxJitter:   client.DefaultRetryConfig().MaxJitter,
	}
	cfg.RateLimit = ratelimit.Config{
		RequestsPerSecond: c.RateLimit,
		Buffer:            c.RateBuffer,
		Burst:             1,
		MaxWait:           ratelimit.DefaultConfig().MaxWait,
	}
	cfg.TotalTimeout = seconds(c.TotalTimeout)
	cfg.ConnectTimeout = seconds(c.ConnectTimeout)
	cfg.MaxConnections = c.ConnectionLimit
	cfg.MaxKeepalive = c.ConnectionLimitPerHost
	cfg.RedisAddr = c.RedisAddr
	return cfg
}

// OpenAlexConfig maps the configuration onto the facade configuration.
func (c *Config) OpenAlexConfig(policy merge.Policy) openalex.Config {
	return openalex.Config{
		Client:        c.ClientConfig(),
		MaxConcurrent: c.MaxConcurrent,
		BatchSize:     c.CLIBatchSize,
		Policy:        policy,
	}
}

// LoggingConfig maps the configuration onto the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.LogLevel); err == nil {
		cfg.Level = level
	}
	cfg.Pretty = c.LogPretty
	return cfg
}

// ApplyOverrides applies CLI flag overrides. Only non-zero values are applied.
func (c *Config) ApplyOverrides(email, apiKey, logLevel string, concurrency int) {
	if email != "" {
		c.Email = email
	}
	if apiKey != "" {
		c.APIKey = apiKey
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if concurrency > 0 {
		c.MaxConcurrent = concurrency
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
