package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. OPENALEX_EMAIL.
const EnvPrefix = "OPENALEX"

// DefaultFileName is searched for when no config file is given.
const DefaultFileName = "openalex"

// Load reads configuration from defaults, an optional YAML file and
// OPENALEX_* environment variables, in increasing priority. An empty
// configPath searches the working directory and $HOME/.config/openalex and
// tolerates a missing file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(DefaultFileName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "openalex"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper creates a Config from an existing Viper instance, adding
// environment variable bindings.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so environment variables are seen by Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("url", cfg.URL)
	v.SetDefault("email", cfg.Email)
	v.SetDefault("api_key", cfg.APIKey)
	v.SetDefault("user_agent", cfg.UserAgent)
	v.SetDefault("max_retries", cfg.MaxRetries)
	v.SetDefault("retry_backoff", cfg.RetryBackoff)
	v.SetDefault("max_backoff", cfg.MaxBackoff)
	v.SetDefault("rate_limit", cfg.RateLimit)
	v.SetDefault("rate_buffer", cfg.RateBuffer)
	v.SetDefault("total_timeout", cfg.TotalTimeout)
	v.SetDefault("connect_timeout", cfg.ConnectTimeout)
	v.SetDefault("connection_limit", cfg.ConnectionLimit)
	v.SetDefault("connection_limit_per_host", cfg.ConnectionLimitPerHost)
	v.SetDefault("max_concurrent", cfg.MaxConcurrent)
	v.SetDefault("cli_batch_size", cfg.CLIBatchSize)
	v.SetDefault("redis_addr", cfg.RedisAddr)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_pretty", cfg.LogPretty)
}
