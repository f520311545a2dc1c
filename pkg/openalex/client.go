package openalex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/openalex-client/pkg/batch"
	"github.com/Sternrassler/openalex-client/pkg/client"
	"github.com/Sternrassler/openalex-client/pkg/logging"
	"github.com/Sternrassler/openalex-client/pkg/merge"
	"github.com/Sternrassler/openalex-client/pkg/pagination"
	"github.com/Sternrassler/openalex-client/pkg/query"
	"github.com/Sternrassler/openalex-client/pkg/ratelimit"
)

// Config holds the facade configuration.
type Config struct {
	// Client configures transport, retries and rate limiting.
	Client client.Config

	// MaxConcurrent bounds concurrent fetch chains across all calls.
	MaxConcurrent int

	// BatchSize is the default number of IDs per chunk (at most 100).
	BatchSize int

	// Policy is the default failure policy for merges.
	Policy merge.Policy
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Client:        client.DefaultConfig(),
		MaxConcurrent: batch.DefaultConcurrency,
		BatchSize:     batch.MaxBatchSize,
		Policy:        merge.Strict,
	}
}

// Client retrieves complete result sets. It is safe for concurrent use.
type Client struct {
	http    *client.Client
	fetcher pagination.PageFetcher
	limiter *batch.Limiter
	cfg     Config
	logger  zerolog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = batch.DefaultConcurrency
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > batch.MaxBatchSize {
		cfg.BatchSize = batch.MaxBatchSize
	}

	httpClient, err := client.New(cfg.Client)
	if err != nil {
		return nil, err
	}
	return &Client{
		http:    httpClient,
		fetcher: pagination.NewFetcher(httpClient),
		limiter: batch.NewLimiter(cfg.MaxConcurrent),
		cfg:     cfg,
		logger:  logging.NewLogger("openalex"),
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// Limiter returns the client-wide concurrency limiter.
func (c *Client) Limiter() *batch.Limiter {
	return c.limiter
}

// RateLimitState returns the last known server rate limit state.
func (c *Client) RateLimitState(ctx context.Context) (*ratelimit.RateLimitState, error) {
	return c.http.RateLimitState(ctx)
}

// URL returns the request URL of page 1 of spec.
func (c *Client) URL(spec query.Spec) string {
	params := spec.Params()
	token := pagination.Offset(1, spec.PerPage())
	if spec.Grouped() {
		token = pagination.Offset(1, query.MaxGroups)
	}
	for k, v := range token.Params() {
		params[k] = v
	}
	return c.http.URL(spec.Resource(), params)
}

// GetAll retrieves every record matching spec, or at most the WithLimit
// count. Grouped specs return their facet counts in Result.Groups.
func (c *Client) GetAll(ctx context.Context, spec query.Spec, opts ...Option) (*merge.Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	o := c.newOptions(opts)
	runID := uuid.NewString()
	logger := c.runLogger(runID, spec)
	start := time.Now()

	if o.limit == 0 {
		return emptyResult(spec), nil
	}

	limiter := c.limiter.Sub(o.concurrency)
	strategy, err := c.plan(ctx, limiter, spec, o.limit)
	if err != nil {
		return nil, err
	}

	var outcomes []batch.Outcome
	scheduler := batch.NewScheduler(limiter, batch.WithRunID(runID), batch.WithProgress(o.progress))

	switch strategy.Kind {
	case pagination.OffsetAll:
		// Page 1 was fetched by the probe; pages 2..N fan out.
		tasks := make([]batch.Task, len(strategy.Tokens))
		for i := range tasks {
			tasks[i] = batch.Task{Index: i + 1, Spec: spec, Limit: pagination.NoLimit}
		}
		outcomes = append(outcomes, batch.Outcome{Index: 0, Records: strategy.First.Records})
		outcomes = append(outcomes, scheduler.Run(ctx, tasks, func(ctx context.Context, bc batch.Context, task batch.Task) ([]pagination.Record, error) {
			page, err := c.fetcher.Fetch(ctx, spec, strategy.Tokens[bc.Index])
			if err != nil {
				return nil, err
			}
			return page.Records, nil
		})...)
	case pagination.CursorAll:
		task := batch.Task{Index: 0, Spec: spec, Limit: strategy.EffectiveTotal}
		outcomes = scheduler.Run(ctx, []batch.Task{task}, func(ctx context.Context, bc batch.Context, task batch.Task) ([]pagination.Record, error) {
			return pagination.WalkCursor(ctx, c.fetcher, spec, strategy.PerPage, task.Limit)
		})
	default:
		records, err := pagination.Execute(ctx, c.fetcher, spec, strategy)
		if err != nil {
			return nil, err
		}
		outcomes = []batch.Outcome{{Index: 0, Records: records}}
		if o.progress != nil {
			o.progress(1, 1)
		}
	}

	result, err := c.merge(outcomes, spec.Grouped(), o)
	if err != nil {
		return nil, err
	}
	truncate(result, strategy.EffectiveTotal)

	logger.Info().
		Str("strategy", strategy.Kind.String()).
		Int("total_count", strategy.First.TotalCount).
		Int("records", result.Len()).
		Int("warnings", len(result.Warnings)).
		Dur("duration", time.Since(start)).
		Msg("Retrieval complete")

	return result, nil
}

// GetAllByIDs retrieves the entities of spec whose filterKey matches any of
// ids. The IDs are split into chunks retrieved concurrently and merged into
// one result without duplicates.
func (c *Client) GetAllByIDs(ctx context.Context, spec query.Spec, filterKey string, ids []string, opts ...Option) (*merge.Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	o := c.newOptions(opts)

	tasks, err := batch.PartitionIDs(spec, filterKey, ids, o.batchSize)
	if err != nil {
		return nil, err
	}
	return c.RunBatches(ctx, tasks, opts...)
}

// RunBatches retrieves every task concurrently and merges the outcomes in
// task order. Each task walks its own pages serially while holding one
// permit of the client-wide limiter.
func (c *Client) RunBatches(ctx context.Context, tasks []batch.Task, opts ...Option) (*merge.Result, error) {
	o := c.newOptions(opts)
	runID := uuid.NewString()
	start := time.Now()

	if len(tasks) == 0 {
		return emptyResult(query.Spec{}), nil
	}
	grouped := tasks[0].Spec.Grouped()
	for _, t := range tasks {
		if t.Spec.Grouped() != grouped {
			return nil, errors.New("batch tasks mix grouped and entity queries")
		}
		if err := t.Spec.Validate(); err != nil {
			return nil, fmt.Errorf("batch %d: %w", t.Index, err)
		}
	}
	if o.limit == 0 {
		return emptyResult(tasks[0].Spec), nil
	}
	if o.limit > 0 && !grouped {
		tasks = capTasks(tasks, o.limit)
	}

	scheduler := batch.NewScheduler(c.limiter.Sub(o.concurrency), batch.WithRunID(runID), batch.WithProgress(o.progress))
	outcomes := scheduler.Run(ctx, tasks, func(ctx context.Context, bc batch.Context, task batch.Task) ([]pagination.Record, error) {
		return c.collect(ctx, bc, task.Spec, task.Limit)
	})

	result, err := c.merge(outcomes, grouped, o)
	if err != nil {
		return nil, err
	}
	if o.limit > 0 {
		truncate(result, o.limit)
	}

	logger := c.runLogger(runID, tasks[0].Spec)
	logger.Info().
		Int("batches", len(tasks)).
		Int("records", result.Len()).
		Int("duplicates", result.Duplicates).
		Int("warnings", len(result.Warnings)).
		Dur("duration", time.Since(start)).
		Msg("Batch retrieval complete")

	return result, nil
}

// Paginate returns a lazy, restartable page sequence for spec. Each fetch
// holds a permit of the client-wide limiter.
func (c *Client) Paginate(spec query.Spec, perPage int) *pagination.Iterator {
	return pagination.NewIterator(permitFetcher{next: c.fetcher, limiter: c.limiter}, spec, perPage)
}

// Count returns the total number of entities matching spec.
func (c *Client) Count(ctx context.Context, spec query.Spec) (int, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	fetcher := permitFetcher{next: c.fetcher, limiter: c.limiter}
	page, err := fetcher.Fetch(ctx, spec.WithGroupBy(""), pagination.Offset(1, 1))
	if err != nil {
		return 0, err
	}
	return page.TotalCount, nil
}

// plan issues the probe while holding one permit.
func (c *Client) plan(ctx context.Context, limiter *batch.Limiter, spec query.Spec, limit int) (pagination.Strategy, error) {
	return pagination.NewPlanner(permitFetcher{next: c.fetcher, limiter: limiter}).Plan(ctx, spec, limit)
}

// collect retrieves one task inside a batch. The caller holds the permit, so
// the plan runs serially on the raw fetcher.
func (c *Client) collect(ctx context.Context, bc batch.Context, spec query.Spec, limit int) ([]pagination.Record, error) {
	strategy, err := pagination.NewPlanner(c.fetcher).Plan(ctx, spec, limit)
	if err != nil {
		return nil, err
	}
	records, err := pagination.Execute(ctx, c.fetcher, spec, strategy)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("run_id", bc.RunID).
		Int("batch_index", bc.Index).
		Int("batches", bc.Total).
		Str("strategy", strategy.Kind.String()).
		Int("records", len(records)).
		Msg("Batch task collected")
	return records, nil
}

func (c *Client) merge(outcomes []batch.Outcome, grouped bool, o options) (*merge.Result, error) {
	result, err := merge.Merge(outcomes, merge.Options{
		Policy:      o.policy,
		Grouped:     grouped,
		SortByCount: o.sortGroups,
	})
	if err != nil {
		return nil, err
	}
	if o.abstracts {
		addAbstracts(result.Records)
	}
	return result, nil
}

func (c *Client) runLogger(runID string, spec query.Spec) zerolog.Logger {
	return c.logger.With().
		Str("run_id", runID).
		Str("resource", spec.Resource()).
		Logger()
}

func emptyResult(spec query.Spec) *merge.Result {
	if spec.Grouped() {
		return &merge.Result{Groups: []merge.Group{}}
	}
	return &merge.Result{Records: []pagination.Record{}}
}

// capTasks bounds every entity task at limit records. The first limit merged
// records never need more than the first limit records of any one task, so
// fetching beyond that is wasted. Grouped tasks are left alone because their
// counts are summed across batches.
func capTasks(tasks []batch.Task, limit int) []batch.Task {
	capped := make([]batch.Task, len(tasks))
	for i, t := range tasks {
		if t.Limit < 0 || t.Limit > limit {
			t.Limit = limit
		}
		capped[i] = t
	}
	return capped
}

func truncate(result *merge.Result, n int) {
	if n < 0 {
		return
	}
	if len(result.Records) > n {
		result.Records = result.Records[:n]
	}
	if len(result.Groups) > n {
		result.Groups = result.Groups[:n]
	}
}

// permitFetcher holds a limiter permit for the duration of each fetch.
type permitFetcher struct {
	next    pagination.PageFetcher
	limiter *batch.Limiter
}

func (f permitFetcher) Fetch(ctx context.Context, spec query.Spec, token pagination.PageToken) (*pagination.PageResult, error) {
	if err := f.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer f.limiter.Release()
	return f.next.Fetch(ctx, spec, token)
}
