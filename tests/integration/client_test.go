//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/openalex-client/internal/testutil"
	"github.com/Sternrassler/openalex-client/pkg/client"
	"github.com/Sternrassler/openalex-client/pkg/openalex"
	"github.com/Sternrassler/openalex-client/pkg/query"
	"github.com/Sternrassler/openalex-client/pkg/ratelimit"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "start Redis container")

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	redisClient := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, redisClient.Ping(ctx).Err())

	t.Cleanup(func() {
		redisClient.Close()
		container.Terminate(ctx)
	})
	return redisClient
}

func newClient(t *testing.T, mock *testutil.MockOpenAlex, redisClient *redis.Client, retries int) *openalex.Client {
	t.Helper()

	cfg := openalex.DefaultConfig()
	cfg.Client.BaseURL = mock.URL()
	cfg.Client.Redis = redisClient
	cfg.Client.RateLimit = ratelimit.Config{MaxWait: time.Minute}
	cfg.Client.Retry = client.RetryConfig{MaxRetries: retries, BackoffBase: time.Millisecond, MaxBackoff: 10 * time.Millisecond}
	cfg.MaxConcurrent = 4

	c, err := openalex.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// TestGetAll_WithRedisState runs a full offset fan-out with Redis-backed rate limit state.
func TestGetAll_WithRedisState(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetCollection("works", testutil.GenerateWorks(1, 900))

	c := newClient(t, mock, redisClient, 1)

	var calls int
	result, err := c.GetAll(context.Background(), query.New("works"), openalex.WithProgress(func(done, total int) {
		calls++
	}))
	require.NoError(t, err)

	assert.Len(t, result.Records, 900)
	assert.Equal(t, 5, mock.GetRequestCount(), "probe plus four offset pages")
	assert.Equal(t, 4, calls)
	assert.LessOrEqual(t, mock.MaxInFlight(), 4)
}

// TestCooldown_SharedAcrossClients checks that a 429 seen by one client is visible to another.
func TestCooldown_SharedAcrossClients(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetResponse("/works", testutil.NewRateLimitResponse("60"))

	first := newClient(t, mock, redisClient, 0)
	_, err := first.GetAll(context.Background(), query.New("works"))
	require.Error(t, err)

	var rlErr *client.RateLimitError
	assert.True(t, errors.As(err, &rlErr), "got %T: %v", err, err)

	second := newClient(t, mock, redisClient, 0)
	state, err := second.RateLimitState(context.Background())
	require.NoError(t, err)
	assert.True(t, state.InCooldown(time.Now()), "cooldown stored in Redis")
	assert.WithinDuration(t, time.Now().Add(time.Minute), state.CooldownUntil, 5*time.Second)
}

// TestCount_WithRedisState exercises a single-page request path.
func TestCount_WithRedisState(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetCollection("works", testutil.GenerateWorks(1, 30))

	c := newClient(t, mock, redisClient, 1)
	n, err := c.Count(context.Background(), query.New("works").WithFilter("type", "article"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}
