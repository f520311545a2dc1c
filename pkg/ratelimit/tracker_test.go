package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{"empty", "", 0, false},
		{"seconds", "3", 3 * time.Second, true},
		{"fractional", "0.5", 500 * time.Millisecond, true},
		{"negative", "-1", 0, false},
		{"garbage", "soon", 0, false},
		{"past date", now.Add(-time.Hour).UTC().Format(http.TimeFormat), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRetryAfter(tt.value, now)
			if ok != tt.wantOK {
				t.Fatalf("ParseRetryAfter(%q) ok = %v, want %v", tt.value, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestUpdateFromResponse(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		headers       map[string]string
		wantKnown     bool
		wantRemaining int
		wantCooldown  bool
		wantErr       bool
	}{
		{
			name:    "no headers",
			status:  http.StatusOK,
			headers: map[string]string{},
		},
		{
			name:          "budget headers",
			status:        http.StatusOK,
			headers:       map[string]string{"X-RateLimit-Remaining": "4200", "X-RateLimit-Limit": "100000", "X-RateLimit-Reset": "3600"},
			wantKnown:     true,
			wantRemaining: 4200,
		},
		{
			name:         "429 with retry after",
			status:       http.StatusTooManyRequests,
			headers:      map[string]string{"Retry-After": "2"},
			wantCooldown: true,
		},
		{
			name:    "retry after on success is ignored",
			status:  http.StatusOK,
			headers: map[string]string{"Retry-After": "2"},
		},
		{
			name:    "malformed remaining",
			status:  http.StatusOK,
			headers: map[string]string{"X-RateLimit-Remaining": "lots"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(DefaultConfig(), NewMemoryStore(), testLogger())
			ctx := context.Background()

			headers := http.Header{}
			for k, v := range tt.headers {
				headers.Set(k, v)
			}

			err := tracker.UpdateFromResponse(ctx, tt.status, headers)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UpdateFromResponse() error = %v, wantErr %v", err, tt.wantErr)
			}

			state, err := tracker.GetState(ctx)
			if err != nil {
				t.Fatalf("GetState() error = %v", err)
			}
			if state.Known != tt.wantKnown {
				t.Errorf("Known = %v, want %v", state.Known, tt.wantKnown)
			}
			if state.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", state.Remaining, tt.wantRemaining)
			}
			if got := state.InCooldown(time.Now()); got != tt.wantCooldown {
				t.Errorf("InCooldown() = %v, want %v", got, tt.wantCooldown)
			}
		})
	}
}

func TestWait_Cooldown(t *testing.T) {
	tracker := NewTracker(Config{RequestsPerSecond: 0}, NewMemoryStore(), testLogger())
	ctx := context.Background()

	headers := http.Header{}
	headers.Set("Retry-After", "0.2")
	if err := tracker.UpdateFromResponse(ctx, http.StatusTooManyRequests, headers); err != nil {
		t.Fatalf("UpdateFromResponse() error = %v", err)
	}

	start := time.Now()
	if err := tracker.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("Wait() returned after %v, want >= 150ms", elapsed)
	}
}

func TestWait_BudgetExhaustedBeyondMaxWait(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save(context.Background(), &RateLimitState{
		Known:     true,
		Remaining: 0,
		ResetAt:   time.Now().Add(time.Hour),
	})
	tracker := NewTracker(Config{RequestsPerSecond: 0, MaxWait: time.Second}, store, testLogger())

	err := tracker.Wait(context.Background())
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Errorf("Wait() error = %v, want ErrBudgetExhausted", err)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save(context.Background(), &RateLimitState{CooldownUntil: time.Now().Add(time.Minute)})
	tracker := NewTracker(Config{RequestsPerSecond: 0, MaxWait: 2 * time.Minute}, store, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := tracker.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestWait_Pacing(t *testing.T) {
	tracker := NewTracker(Config{RequestsPerSecond: 20, Buffer: 1, Burst: 1}, nil, testLogger())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := tracker.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	// First token is immediate, the next four need 50ms each.
	if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
		t.Errorf("5 paced requests took %v, want >= 180ms", elapsed)
	}
}

func TestConfig_EffectiveRate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want float64
	}{
		{"defaults", DefaultConfig(), 9},
		{"no buffer", Config{RequestsPerSecond: 10}, 10},
		{"buffer out of range", Config{RequestsPerSecond: 10, Buffer: 2}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := float64(tt.cfg.EffectiveRate()); got != tt.want {
				t.Errorf("EffectiveRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRedisStore_RoundTrip(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	defer redisClient.Close()

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer redisClient.FlushDB(ctx)

	store := NewRedisStore(redisClient)

	state, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state.Known {
		t.Error("empty store should report unknown state")
	}

	want := &RateLimitState{
		Known:         true,
		Remaining:     77,
		Limit:         100000,
		ResetAt:       time.Now().Add(time.Hour).Truncate(time.Second),
		CooldownUntil: time.Now().Add(time.Second).Truncate(time.Millisecond),
		LastUpdate:    time.Now().Truncate(time.Millisecond),
	}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Remaining != want.Remaining || got.Limit != want.Limit {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
	if !got.ResetAt.Equal(want.ResetAt) {
		t.Errorf("ResetAt = %v, want %v", got.ResetAt, want.ResetAt)
	}
	if !got.CooldownUntil.Equal(want.CooldownUntil) {
		t.Errorf("CooldownUntil = %v, want %v", got.CooldownUntil, want.CooldownUntil)
	}
}
