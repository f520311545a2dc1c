// Package ratelimit paces OpenAlex requests and tracks server-signalled limits.
// It combines a local token bucket with cooldown and daily budget state learned
// from 429 Retry-After values and the X-RateLimit-* response headers.
package ratelimit

import (
	"time"
)

// Redis keys for shared rate limit state storage.
const (
	RedisKeyRemaining     = "openalex:rate_limit:remaining"
	RedisKeyLimit         = "openalex:rate_limit:limit"
	RedisKeyResetAt       = "openalex:rate_limit:reset_at"
	RedisKeyCooldownUntil = "openalex:rate_limit:cooldown_until"
	RedisKeyLastUpdate    = "openalex:rate_limit:last_update"
)

// Thresholds for budget decisions.
const (
	// BudgetThresholdWarning logs a warning when the remaining daily budget falls below this value.
	BudgetThresholdWarning = 1000

	// DefaultDailyBudget is the documented OpenAlex per-day request allowance.
	DefaultDailyBudget = 100000
)

// RateLimitState is the last known server-side rate limit state.
// With a Redis store it is shared by every process using the same key space.
type RateLimitState struct {
	// Remaining is the request budget left in the current window.
	// Only meaningful when Known is true.
	Remaining int `json:"remaining"`

	// Limit is the window's total budget as reported by the server.
	Limit int `json:"limit"`

	// ResetAt is when the budget window resets.
	ResetAt time.Time `json:"reset_at"`

	// CooldownUntil blocks requests after a 429 carrying Retry-After.
	CooldownUntil time.Time `json:"cooldown_until"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`

	// Known is false until the server reported budget headers.
	Known bool `json:"known"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// InCooldown reports whether a server-requested pause is still active.
func (s *RateLimitState) InCooldown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}

// BudgetExhausted reports whether the server said no requests remain.
func (s *RateLimitState) BudgetExhausted(now time.Time) bool {
	return s.Known && s.Remaining <= 0 && now.Before(s.ResetAt)
}

// NeedsThrottling returns true when the remaining budget is low but not exhausted.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Known && s.Remaining > 0 && s.Remaining < BudgetThresholdWarning
}

// TimeUntilReset returns the duration until the budget resets, or 0 if it already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// WaitDuration is how long a caller must wait before sending the next request.
func (s *RateLimitState) WaitDuration(now time.Time) time.Duration {
	var wait time.Duration
	if s.InCooldown(now) {
		wait = s.CooldownUntil.Sub(now)
	}
	if s.BudgetExhausted(now) {
		if d := s.ResetAt.Sub(now); d > wait {
			wait = d
		}
	}
	return wait
}
