package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/openalex-client/pkg/batch"
	"github.com/Sternrassler/openalex-client/pkg/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for valid values.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(c.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("url", "must be an http(s) URL (got %q)", c.URL)
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		add("email", "must be an email address (got %q)", c.Email)
	}

	if c.MaxRetries < 0 {
		add("max_retries", "must be >= 0 (got %d)", c.MaxRetries)
	}
	if c.RetryBackoff <= 0 {
		add("retry_backoff", "must be > 0 (got %g)", c.RetryBackoff)
	}
	if c.MaxBackoff < c.RetryBackoff {
		add("max_backoff", "must be >= retry_backoff (got %g)", c.MaxBackoff)
	}

	if c.RateLimit < 0 {
		add("rate_limit", "must be >= 0 (got %g)", c.RateLimit)
	}
	if c.RateBuffer <= 0 || c.RateBuffer > 1 {
		add("rate_buffer", "must be in (0, 1] (got %g)", c.RateBuffer)
	}

	if c.TotalTimeout <= 0 {
		add("total_timeout", "must be > 0 (got %g)", c.TotalTimeout)
	}
	if c.ConnectTimeout <= 0 || c.ConnectTimeout > c.TotalTimeout {
		add("connect_timeout", "must be in (0, total_timeout] (got %g)", c.ConnectTimeout)
	}

	if c.ConnectionLimit <= 0 {
		add("connection_limit", "must be > 0 (got %d)", c.ConnectionLimit)
	}
	if c.ConnectionLimitPerHost < 0 {
		add("connection_limit_per_host", "must be >= 0 (got %d)", c.ConnectionLimitPerHost)
	}
	if c.MaxConcurrent <= 0 {
		add("max_concurrent", "must be > 0 (got %d)", c.MaxConcurrent)
	}
	if c.CLIBatchSize <= 0 || c.CLIBatchSize > batch.MaxBatchSize {
		add("cli_batch_size", "must be in [1, %d] (got %d)", batch.MaxBatchSize, c.CLIBatchSize)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		add("log_level", "%v", err)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
