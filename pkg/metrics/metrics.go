// Package metrics provides centralized Prometheus metrics registry for the OpenAlex client.
// All metrics are defined in their respective packages (client, ratelimit, batch, merge)
// to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the OpenAlex client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer exposes the registered metrics, e.g. for promhttp.HandlerFor.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Server exposes /metrics while a long retrieval runs.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Serve starts a metrics server on addr. Use port 0 to pick a free port.
func Serve(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("component", "metrics").Msg("Metrics server stopped")
		}
	}()
	log.Info().Str("component", "metrics").Str("addr", s.Addr()).Msg("Serving metrics")
	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close shuts the server down, waiting up to five seconds for open scrapes.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - openalex_requests_total{resource, status} (Counter): Requests by resource and HTTP status
//   - openalex_request_duration_seconds{resource} (Histogram): Request duration including retries
//   - openalex_errors_total{class} (Counter): Final errors by class (client, server, rate_limit, network, query)
//
// Retry Metrics (pkg/client):
//   - openalex_retries_total{error_class} (Counter): Retry attempts by error class
//   - openalex_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - openalex_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - openalex_rate_limit_remaining (Gauge): Requests remaining in the server window
//   - openalex_rate_limit_cooldowns_total (Counter): Cooldowns recorded from Retry-After
//   - openalex_rate_limit_wait_seconds (Histogram): Time spent waiting for the limiter
//
// Batch Metrics (pkg/batch):
//   - openalex_batch_tasks_total{outcome} (Counter): Finished batch tasks (success, failure, cancelled)
//   - openalex_batch_in_flight (Gauge): Fetch chains currently holding a limiter permit
//   - openalex_batch_task_duration_seconds (Histogram): Batch task duration
//
// Merge Metrics (pkg/merge):
//   - openalex_merge_duplicates_total (Counter): Records dropped as duplicates
//   - openalex_merge_skipped_batches_total (Counter): Failed batches skipped in best-effort mode
//
// Example Prometheus Queries:
//
//   # Retry rate by class
//   sum by (error_class) (rate(openalex_retries_total[5m]))
//
//   # Budget running low
//   openalex_rate_limit_remaining < 1000
//
//   # Batch failure ratio
//   rate(openalex_batch_tasks_total{outcome="failure"}[5m]) / rate(openalex_batch_tasks_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(openalex_request_duration_seconds_bucket[5m]))
