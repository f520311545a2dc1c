package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists RateLimitState.
type Store interface {
	Load(ctx context.Context) (*RateLimitState, error)
	Save(ctx context.Context, state *RateLimitState) error
}

// MemoryStore keeps state for a single process.
type MemoryStore struct {
	mu    sync.Mutex
	state RateLimitState
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the current state.
func (m *MemoryStore) Load(_ context.Context) (*RateLimitState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.state
	return &state, nil
}

// Save replaces the current state.
func (m *MemoryStore) Save(_ context.Context, state *RateLimitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = *state
	return nil
}

// RedisStore shares state between processes. Keys expire with the budget
// window so nothing outlives the limit it describes.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a store backed by redisClient.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

// Load reads the state. Missing keys yield an unknown, unrestricted state.
func (r *RedisStore) Load(ctx context.Context) (*RateLimitState, error) {
	values, err := r.redis.MGet(ctx,
		RedisKeyRemaining, RedisKeyLimit, RedisKeyResetAt, RedisKeyCooldownUntil, RedisKeyLastUpdate,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("load rate limit state: %w", err)
	}

	state := &RateLimitState{}
	ints := make([]int64, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("load rate limit state: unexpected value type %T", v)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse rate limit state: %w", err)
		}
		ints[i] = n
	}

	if values[0] != nil {
		state.Known = true
		state.Remaining = int(ints[0])
	}
	state.Limit = int(ints[1])
	state.ResetAt = unixOrZero(ints[2])
	state.CooldownUntil = unixMilliOrZero(ints[3])
	state.LastUpdate = unixMilliOrZero(ints[4])
	return state, nil
}

// Save writes the state atomically.
func (r *RedisStore) Save(ctx context.Context, state *RateLimitState) error {
	if state == nil {
		return errors.New("nil rate limit state")
	}
	ttl := time.Until(state.ResetAt)
	if cooldown := time.Until(state.CooldownUntil); cooldown > ttl {
		ttl = cooldown
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	pipe := r.redis.TxPipeline()
	if state.Known {
		pipe.Set(ctx, RedisKeyRemaining, state.Remaining, ttl)
		pipe.Set(ctx, RedisKeyLimit, state.Limit, ttl)
		pipe.Set(ctx, RedisKeyResetAt, state.ResetAt.Unix(), ttl)
	}
	if !state.CooldownUntil.IsZero() {
		pipe.Set(ctx, RedisKeyCooldownUntil, state.CooldownUntil.UnixMilli(), ttl)
	}
	pipe.Set(ctx, RedisKeyLastUpdate, state.LastUpdate.UnixMilli(), ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func unixMilliOrZero(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
