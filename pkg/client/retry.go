package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/openalex-client/pkg/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Prometheus metrics for retry operations.
var (
	openalexRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openalex_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	openalexRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "openalex_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	openalexRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openalex_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// retryableStatus lists the HTTP statuses retried with backoff.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// maxMessageLength truncates raw response bodies quoted in errors.
const maxMessageLength = 200

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BackoffBase is multiplied by 2^attempt to get the wait before the next attempt.
	BackoffBase time.Duration

	// MaxBackoff caps computed backoff. Server-supplied Retry-After is not capped.
	MaxBackoff time.Duration

	// MaxJitter is the upper bound of the random delay added to computed backoff.
	MaxJitter time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		BackoffBase: 500 * time.Millisecond,
		MaxBackoff:  30 * time.Second,
		MaxJitter:   100 * time.Millisecond,
	}
}

// Response is a completed HTTP exchange with its body read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Attempt performs one transport call. A non-nil error means no HTTP response
// was received.
type Attempt func(ctx context.Context) (*Response, error)

// Decision is the outcome of classifying one attempt.
type Decision string

const (
	DecisionSuccess Decision = "success"
	DecisionRetry   Decision = "retry"
	DecisionFail    Decision = "fail"
)

// RetryPolicy wraps a single transport call with bounded retry.
type RetryPolicy struct {
	config RetryConfig
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

// NewRetryPolicy creates a retry policy.
func NewRetryPolicy(cfg RetryConfig, logger zerolog.Logger) *RetryPolicy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &RetryPolicy{
		config: cfg,
		logger: logger,
		sleep:  sleepContext,
		jitter: randomJitter,
	}
}

// Execute runs attempt until it succeeds, fails fatally or the retry budget is
// spent. Exhaustion wraps both ErrRetryExhausted and the last typed error.
func (p *RetryPolicy) Execute(ctx context.Context, url string, attempt Attempt) (*Response, error) {
	maxAttempts := p.config.MaxRetries + 1
	var lastErr error

	for n := 0; n < maxAttempts; n++ {
		resp, err := attempt(ctx)
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, context.Cause(ctx))
		}

		decision, classified := classify(url, resp, err)

		event := p.logger.Debug().
			Int("attempt", n+1).
			Str("url", url).
			Str("decision", string(decision))
		if resp != nil {
			event = event.Int("status", resp.StatusCode)
		}
		if classified != nil {
			event = event.Str("error_class", string(ClassOf(classified)))
		}

		switch decision {
		case DecisionSuccess:
			event.Msg("Request attempt")
			if n > 0 {
				p.logger.Info().
					Str("url", url).
					Int("attempt", n+1).
					Msg("Request succeeded after retry")
			}
			return resp, nil
		case DecisionFail:
			event.Msg("Request attempt")
			setAttempts(classified, n+1)
			return nil, classified
		}

		lastErr = classified
		if n == maxAttempts-1 {
			event.Msg("Request attempt")
			break
		}

		backoff := p.backoff(n, classified)
		class := string(ClassOf(classified))
		openalexRetriesTotal.WithLabelValues(class).Inc()
		openalexRetryBackoffSeconds.WithLabelValues(class).Observe(backoff.Seconds())
		event.Dur("backoff", backoff).Msg("Request attempt")

		if err := p.sleep(ctx, backoff); err != nil {
			p.logger.Warn().
				Str("url", url).
				Int("attempt", n+1).
				Msg("Context cancelled during retry backoff")
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}

	setAttempts(lastErr, maxAttempts)
	openalexRetryExhaustedTotal.WithLabelValues(string(ClassOf(lastErr))).Inc()
	p.logger.Warn().
		Str("url", url).
		Int("max_attempts", maxAttempts).
		Err(lastErr).
		Msg("Retry attempts exhausted")

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}

// backoff returns the wait before the attempt following attempt n (0-based).
func (p *RetryPolicy) backoff(n int, err error) time.Duration {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) && rateLimitErr.RetryAfter > 0 {
		return rateLimitErr.RetryAfter
	}

	d := time.Duration(float64(p.config.BackoffBase) * math.Pow(2, float64(n)))
	if p.config.MaxBackoff > 0 && d > p.config.MaxBackoff {
		d = p.config.MaxBackoff
	}
	return d + p.jitter(p.config.MaxJitter)
}

// classify maps one attempt outcome to a decision and, unless successful, a typed error.
func classify(url string, resp *Response, err error) (Decision, error) {
	if err != nil {
		var rateLimitErr *RateLimitError
		if errors.As(err, &rateLimitErr) {
			rateLimitErr.URL = url
			return decide(rateLimitErr), rateLimitErr
		}
		return DecisionRetry, &NetworkError{URL: url, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return DecisionSuccess, nil
	}

	body := parseErrorBody(resp.Body)

	switch status := resp.StatusCode; {
	case status == http.StatusTooManyRequests:
		retryAfter, _ := ratelimit.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return DecisionRetry, &RateLimitError{
			RetryAfter: retryAfter,
			Message:    body.messageOr("Too many requests"),
			URL:        url,
		}
	case (status == http.StatusForbidden || status == http.StatusBadRequest) && body.isQueryError():
		return DecisionFail, &QueryError{StatusCode: status, Message: body.messageOr(body.Error), URL: url}
	case status == http.StatusNotFound:
		return DecisionFail, &APIError{StatusCode: status, Message: "Resource not found", URL: url}
	case retryableStatus[status]:
		return DecisionRetry, &APIError{StatusCode: status, Message: body.messageOr("Server error"), URL: url}
	default:
		msg := body.messageOr(body.raw)
		if msg == "" {
			msg = http.StatusText(status)
		}
		apiErr := &APIError{StatusCode: status, Message: msg, URL: url}
		return decide(apiErr), apiErr
	}
}

func decide(err error) Decision {
	if shouldRetry(err) {
		return DecisionRetry
	}
	return DecisionFail
}

// errorBody is the JSON error document returned by the API.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	raw     string
}

func parseErrorBody(body []byte) errorBody {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		parsed = errorBody{}
	}
	parsed.raw = strings.TrimSpace(string(body))
	if len(parsed.raw) > maxMessageLength {
		parsed.raw = parsed.raw[:maxMessageLength]
	}
	return parsed
}

// isQueryError matches the API's malformed parameter report, which arrives
// as a 400 or 403 and is distinct from an authentication failure.
func (b errorBody) isQueryError() bool {
	return strings.Contains(strings.ToLower(b.Error), "query parameter")
}

func (b errorBody) messageOr(fallback string) string {
	switch {
	case b.Message != "":
		return b.Message
	case b.Error != "":
		return b.Error
	default:
		return fallback
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
