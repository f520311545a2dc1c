package openalex

import (
	"github.com/Sternrassler/openalex-client/pkg/batch"
	"github.com/Sternrassler/openalex-client/pkg/merge"
	"github.com/Sternrassler/openalex-client/pkg/pagination"
)

// Option configures a single retrieval.
type Option func(*options)

type options struct {
	limit       int
	concurrency int
	policy      merge.Policy
	progress    batch.ProgressFunc
	sortGroups  bool
	abstracts   bool
	batchSize   int
}

func (c *Client) newOptions(opts []Option) options {
	o := options{
		limit:     pagination.NoLimit,
		policy:    c.cfg.Policy,
		batchSize: c.cfg.BatchSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLimit caps the number of records returned. pagination.NoLimit (the
// default) retrieves everything; 0 returns an empty result without a request.
func WithLimit(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = pagination.NoLimit
		}
		o.limit = n
	}
}

// WithConcurrency lowers the number of concurrent fetch chains for this call.
// It never raises the client-wide limit.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithPolicy selects how failed batches are surfaced.
func WithPolicy(p merge.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithBestEffort skips failed batches and reports them as warnings.
func WithBestEffort() Option {
	return WithPolicy(merge.BestEffort)
}

// WithProgress reports completed/total batches or pages.
func WithProgress(fn func(completed, total int)) Option {
	return func(o *options) { o.progress = fn }
}

// WithSortGroups orders grouped results by descending count.
func WithSortGroups() Option {
	return func(o *options) { o.sortGroups = true }
}

// WithAbstracts adds a plain-text abstract to works carrying an inverted index.
func WithAbstracts() Option {
	return func(o *options) { o.abstracts = true }
}

// WithBatchSize sets the number of IDs per chunk for GetAllByIDs.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}
