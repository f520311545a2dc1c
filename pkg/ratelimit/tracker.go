package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limit tracking.
var (
	openalexBudgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "openalex_rate_limit_remaining",
		Help: "Requests remaining in the current OpenAlex rate limit window",
	})

	openalexCooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openalex_rate_limit_cooldowns_total",
		Help: "Total number of server-requested cooldowns recorded from Retry-After",
	})

	openalexRateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "openalex_rate_limit_wait_seconds",
		Help:    "Time requests spent waiting for the rate limiter",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})
)

// ErrBudgetExhausted is returned by Wait when the server-side budget will not
// reset within the configured maximum wait.
var ErrBudgetExhausted = errors.New("rate limit budget exhausted")

// Config holds the tracker configuration.
type Config struct {
	// RequestsPerSecond is the nominal request rate; <= 0 disables local pacing.
	RequestsPerSecond float64

	// Buffer scales RequestsPerSecond to stay below the server limit (0 < Buffer <= 1).
	Buffer float64

	// Burst is the token bucket size.
	Burst int

	// MaxWait bounds how long Wait blocks on a cooldown or exhausted budget.
	MaxWait time.Duration
}

// DefaultConfig returns the polite pool defaults.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Buffer:            0.9,
		Burst:             1,
		MaxWait:           5 * time.Minute,
	}
}

// EffectiveRate is the paced request rate after applying Buffer.
func (c Config) EffectiveRate() rate.Limit {
	if c.RequestsPerSecond <= 0 {
		return rate.Inf
	}
	buffer := c.Buffer
	if buffer <= 0 || buffer > 1 {
		buffer = 1
	}
	return rate.Limit(c.RequestsPerSecond * buffer)
}

// Tracker gates requests on the local token bucket and the last known server state.
type Tracker struct {
	limiter *rate.Limiter
	store   Store
	maxWait time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

// NewTracker creates a tracker. A nil store keeps state in memory.
func NewTracker(cfg Config, store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultConfig().MaxWait
	}
	return &Tracker{
		limiter: rate.NewLimiter(cfg.EffectiveRate(), cfg.Burst),
		store:   store,
		maxWait: cfg.MaxWait,
		logger:  logger,
		now:     time.Now,
	}
}

// GetState returns the current rate limit state.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	return t.store.Load(ctx)
}

// Wait blocks until a request may be sent. It honours shared cooldowns and
// an exhausted budget before taking a token from the local bucket.
func (t *Tracker) Wait(ctx context.Context) error {
	start := t.now()
	defer func() {
		openalexRateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	state, err := t.store.Load(ctx)
	if err != nil {
		// A broken shared store must not stop requests; pacing still applies.
		t.logger.Warn().Err(err).Msg("Rate limit state unavailable")
		state = &RateLimitState{}
	}

	if wait := state.WaitDuration(start); wait > 0 {
		if wait > t.maxWait {
			return fmt.Errorf("%w: resets in %s", ErrBudgetExhausted, wait.Round(time.Second))
		}
		t.logger.Warn().
			Dur("wait_duration", wait).
			Int("remaining", state.Remaining).
			Msg("Rate limit cooldown active - delaying request")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return t.limiter.Wait(ctx)
}

// UpdateFromResponse records the rate limit information carried by a response.
func (t *Tracker) UpdateFromResponse(ctx context.Context, status int, headers http.Header) error {
	now := t.now()
	retryAfter, hasRetryAfter := ParseRetryAfter(headers.Get("Retry-After"), now)
	remaining, hasRemaining, err := headerInt(headers, "X-RateLimit-Remaining")
	if err != nil {
		return err
	}
	if !hasRemaining && !(status == http.StatusTooManyRequests && hasRetryAfter) {
		return nil
	}

	state, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("get rate limit state: %w", err)
	}
	state.LastUpdate = now

	if hasRemaining {
		state.Known = true
		state.Remaining = remaining
		if limit, ok, err := headerInt(headers, "X-RateLimit-Limit"); err != nil {
			return err
		} else if ok {
			state.Limit = limit
		}
		if reset, ok, err := headerInt(headers, "X-RateLimit-Reset"); err != nil {
			return err
		} else if ok {
			state.ResetAt = now.Add(time.Duration(reset) * time.Second)
		}
		openalexBudgetRemaining.Set(float64(remaining))
	}

	if status == http.StatusTooManyRequests && hasRetryAfter {
		until := now.Add(retryAfter)
		if until.After(state.CooldownUntil) {
			state.CooldownUntil = until
		}
		openalexCooldownsTotal.Inc()
	}

	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	switch {
	case state.BudgetExhausted(now):
		t.logger.Error().
			Time("reset_at", state.ResetAt).
			Msg("OpenAlex request budget exhausted - requests will wait for reset")
	case state.InCooldown(now):
		t.logger.Warn().
			Time("cooldown_until", state.CooldownUntil).
			Msg("OpenAlex requested a cooldown")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("OpenAlex request budget running low")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Msg("Rate limit state updated")
	}
	return nil
}

// ParseRetryAfter parses a Retry-After value given in seconds or as an HTTP date.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func headerInt(headers http.Header, name string) (int, bool, error) {
	raw := headers.Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false, fmt.Errorf("parse %s header: %w", name, err)
	}
	return v, true, nil
}
