// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs every request attempt, batch and strategy decision.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs completed runs and recovered retries.
	LevelInfo LogLevel = "info"

	// LevelWarn logs cooldowns, exhausted retries and skipped batches.
	LevelWarn LogLevel = "warn"

	// LevelError logs failures surfaced to the caller.
	LevelError LogLevel = "error"
)

// Field names shared across packages.
const (
	FieldComponent = "component"
	FieldRunID     = "run_id"
)

var levels = map[LogLevel]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// asyncBufferSize is the number of log lines the async writer holds before dropping.
const asyncBufferSize = 10000

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Async hands lines to a diode writer so per-attempt debug events never
	// block the retry loop. Lines are dropped when the writer falls behind.
	Async bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
		Async:  true,
	}
}

// ParseLevel parses a level name. "warning" is accepted for warn.
func ParseLevel(s string) (LogLevel, error) {
	name := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if name == "warning" {
		name = LevelWarn
	}
	if _, ok := levels[name]; !ok {
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
	return name, nil
}

// Levels lists the accepted level names from most to least verbose.
func Levels() []LogLevel {
	return []LogLevel{LevelDebug, LevelInfo, LevelWarn, LevelError}
}

var (
	mu     sync.Mutex
	closer io.Closer
)

// Setup configures the global zerolog logger. An unknown level falls back to
// info. A previous async writer is flushed and replaced.
func Setup(cfg Config) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if name, err := ParseLevel(string(cfg.Level)); err == nil {
		level = levels[name]
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05.000"}
	}

	if closer != nil {
		closer.Close()
		closer = nil
	}
	if cfg.Async {
		target := output
		w := diode.NewWriter(target, asyncBufferSize, 10*time.Millisecond, func(missed int) {
			fmt.Fprintf(target, "logger dropped %d messages\n", missed)
		})
		closer = w
		output = w
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	return log.Logger
}

// Close flushes and stops the async writer installed by Setup, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

// NewLogger derives a component logger from the global logger. Call it after
// Setup; the derived logger keeps the writer current at creation time.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str(FieldComponent, component).Logger()
}

// RunLogger is NewLogger with the run id of one retrieval attached.
func RunLogger(component, runID string) zerolog.Logger {
	return log.With().Str(FieldComponent, component).Str(FieldRunID, runID).Logger()
}

// Log Level Guidelines:
//
// Debug: one event per request attempt (attempt, url, status, decision,
// backoff), batch start/finish, strategy selection, rate limit state updates.
//
// Info: requests that succeeded after retry, completed runs (records,
// batches, duration).
//
// Warn: exhausted retries, cooldowns and a low request budget, batches
// skipped in best-effort merges.
//
// Error: exhausted request budget.
//
// Context fields: component, run_id, url, status, decision, error_class,
// batch, strategy (single_page, offset_all, cursor_all).
