// Package client provides the OpenAlex HTTP client: a pooled transport with
// connect and total timeouts, polite pool identification, request pacing and
// bounded retry with typed errors.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/openalex-client/pkg/logging"
	"github.com/Sternrassler/openalex-client/pkg/ratelimit"
)

// Prometheus metrics for OpenAlex client operations.
var (
	openalexRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openalex_requests_total",
		Help: "Total OpenAlex requests by resource and status",
	}, []string{"resource", "status"})

	openalexRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "openalex_request_duration_seconds",
		Help:    "OpenAlex request duration in seconds by resource",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"resource"})

	openalexErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openalex_errors_total",
		Help: "Total OpenAlex request errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the public OpenAlex API.
const DefaultBaseURL = "https://api.openalex.org"

// maxBodySize bounds a single response body.
const maxBodySize = 64 << 20

// Client is the OpenAlex HTTP client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	tracker    *ratelimit.Tracker
	retry      *RetryPolicy
	config     Config
	logger     zerolog.Logger

	// ownedRedis is the Redis client New created from RedisAddr.
	ownedRedis *redis.Client
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API (default: https://api.openalex.org).
	BaseURL string

	// Email joins the polite pool; sent as From header and mailto parameter.
	Email string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// UserAgent header; derived from Email when empty.
	UserAgent string

	// Retry behaviour for each request.
	Retry RetryConfig

	// RateLimit pacing and budget tracking.
	RateLimit ratelimit.Config

	// Redis shares rate limit state between processes (optional). The caller
	// keeps ownership and closes it.
	Redis *redis.Client

	// RedisAddr is used when Redis is nil. The client it creates is closed by Close.
	RedisAddr string

	// Timeouts
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration

	// Connection pool, sized independently of batch concurrency.
	MaxConnections int // Max connections per host
	MaxKeepalive   int // Max idle connections kept for reuse
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		Retry:          DefaultRetryConfig(),
		RateLimit:      ratelimit.DefaultConfig(),
		ConnectTimeout: 10 * time.Second,
		TotalTimeout:   30 * time.Second,
		MaxConnections: 20,
		MaxKeepalive:   10,
	}
}

// New creates a new OpenAlex client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.TotalTimeout <= 0 {
		return nil, fmt.Errorf("total_timeout must be > 0 (got %s)", cfg.TotalTimeout)
	}
	if cfg.ConnectTimeout <= 0 || cfg.ConnectTimeout > cfg.TotalTimeout {
		return nil, fmt.Errorf("connect_timeout must be in (0, total_timeout] (got %s)", cfg.ConnectTimeout)
	}
	if cfg.MaxConnections <= 0 {
		return nil, fmt.Errorf("max_connections must be > 0 (got %d)", cfg.MaxConnections)
	}
	if cfg.MaxKeepalive < 0 {
		return nil, fmt.Errorf("max_keepalive must be >= 0 (got %d)", cfg.MaxKeepalive)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent(cfg.Email)
	}

	logger := logging.NewLogger("openalex-client")

	var store ratelimit.Store
	var owned *redis.Client
	switch {
	case cfg.Redis != nil:
		store = ratelimit.NewRedisStore(cfg.Redis)
	case cfg.RedisAddr != "":
		owned = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store = ratelimit.NewRedisStore(owned)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: newTransport(cfg),
			Timeout:   cfg.TotalTimeout,
		},
		baseURL:    base,
		tracker:    ratelimit.NewTracker(cfg.RateLimit, store, logger),
		retry:      NewRetryPolicy(cfg.Retry, logger),
		config:     cfg,
		logger:     logger,
		ownedRedis: owned,
	}, nil
}

// newTransport builds the pooled, gzip-aware transport.
func newTransport(cfg Config) http.RoundTripper {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxConnsPerHost:       cfg.MaxConnections,
		MaxIdleConns:          cfg.MaxKeepalive,
		MaxIdleConnsPerHost:   cfg.MaxKeepalive,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return gzhttp.Transport(transport)
}

func defaultUserAgent(email string) string {
	if email == "" {
		return "openalex-client/1.0"
	}
	return "openalex-client/1.0 (mailto:" + email + ")"
}

// URL returns the absolute request URL for a resource path and parameters.
func (c *Client) URL(path string, params url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	if c.config.Email != "" && !q.Has("mailto") {
		q.Set("mailto", c.config.Email)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Get performs a paced and retried GET and returns the successful response.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	target := c.URL(path, params)
	resource := resourceLabel(path)

	startTime := time.Now()
	defer func() {
		openalexRequestDuration.WithLabelValues(resource).Observe(time.Since(startTime).Seconds())
	}()

	resp, err := c.retry.Execute(ctx, target, func(ctx context.Context) (*Response, error) {
		return c.do(ctx, target, resource)
	})
	if err != nil {
		if class := ClassOf(err); class != "" {
			openalexErrorsTotal.WithLabelValues(string(class)).Inc()
		}
		return nil, err
	}
	return resp, nil
}

// do performs a single attempt.
func (c *Client) do(ctx context.Context, target, resource string) (*Response, error) {
	if err := c.tracker.Wait(ctx); err != nil {
		if errors.Is(err, ratelimit.ErrBudgetExhausted) {
			state, _ := c.tracker.GetState(ctx)
			var retryAfter time.Duration
			if state != nil {
				retryAfter = state.WaitDuration(time.Now())
			}
			return nil, &RateLimitError{
				RetryAfter:      retryAfter,
				Message:         err.Error(),
				BudgetExhausted: true,
			}
		}
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.config.Email != "" {
		req.Header.Set("From", c.config.Email)
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		openalexRequestsTotal.WithLabelValues(resource, "network_error").Inc()
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		openalexRequestsTotal.WithLabelValues(resource, "network_error").Inc()
		return nil, fmt.Errorf("read response body: %w", err)
	}
	openalexRequestsTotal.WithLabelValues(resource, strconv.Itoa(httpResp.StatusCode)).Inc()

	if err := c.tracker.UpdateFromResponse(ctx, httpResp.StatusCode, httpResp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

// GetJSON performs Get and returns the response body.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values) ([]byte, error) {
	resp, err := c.Get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// RateLimitState returns the last known server-side rate limit state.
func (c *Client) RateLimitState(ctx context.Context) (*ratelimit.RateLimitState, error) {
	return c.tracker.GetState(ctx)
}

// Close releases idle pooled connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	if c.ownedRedis == nil {
		return nil
	}
	err := c.ownedRedis.Close()
	c.ownedRedis = nil
	return err
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// resourceLabel keeps metric cardinality bounded to the resource collection.
func resourceLabel(path string) string {
	path = strings.Trim(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "root"
	}
	return path
}
