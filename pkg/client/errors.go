package client

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassQuery represents malformed query parameters.
	ErrorClassQuery ErrorClass = "query"
)

// APIError is a non-2xx response not otherwise classified.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
	Attempts   int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("OpenAlex API error (status %d): %s", e.StatusCode, e.Message)
}

// Class returns the error class of the status code.
func (e *APIError) Class() ErrorClass {
	if e.StatusCode >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}

// RateLimitError is returned for HTTP 429 once retries are exhausted, or when
// the request budget will not reset in time.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
	URL        string
	Attempts   int

	// BudgetExhausted is set when the local tracker refused the request.
	BudgetExhausted bool
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("OpenAlex rate limit exceeded: %s (retry after %s)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("OpenAlex rate limit exceeded: %s", e.Message)
}

// NetworkError is a transport-level failure such as a timeout or reset connection.
type NetworkError struct {
	URL      string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error requesting %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// QueryError reports query parameters the API rejected. It is never retried.
type QueryError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Message)
}

// ClassOf returns the error class of err, or "" if err is not a client error.
func ClassOf(err error) ErrorClass {
	var (
		queryErr     *QueryError
		rateLimitErr *RateLimitError
		networkErr   *NetworkError
		apiErr       *APIError
	)
	switch {
	case errors.As(err, &queryErr):
		return ErrorClassQuery
	case errors.As(err, &rateLimitErr):
		return ErrorClassRateLimit
	case errors.As(err, &networkErr):
		return ErrorClassNetwork
	case errors.As(err, &apiErr):
		return apiErr.Class()
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(err error) bool {
	switch ClassOf(err) {
	case ErrorClassServer:
		var apiErr *APIError
		return errors.As(err, &apiErr) && retryableStatus[apiErr.StatusCode]
	case ErrorClassRateLimit:
		var rateLimitErr *RateLimitError
		return errors.As(err, &rateLimitErr) && !rateLimitErr.BudgetExhausted
	case ErrorClassNetwork:
		return true
	default:
		// 4xx and query errors never succeed on retry
		return false
	}
}

// setAttempts records the attempt count on a typed error.
func setAttempts(err error, attempts int) {
	var (
		rateLimitErr *RateLimitError
		networkErr   *NetworkError
		apiErr       *APIError
	)
	switch {
	case errors.As(err, &rateLimitErr):
		rateLimitErr.Attempts = attempts
	case errors.As(err, &networkErr):
		networkErr.Attempts = attempts
	case errors.As(err, &apiErr):
		apiErr.Attempts = attempts
	}
}
