package pagination

import (
	"context"
	"iter"

	"github.com/Sternrassler/openalex-client/pkg/query"
)

// Iterator yields the pages of a query one at a time. Entity queries are
// cursor paged, grouped queries yield their single page, and sampled queries
// are offset paged because the API does not cursor samples.
//
//	it := pagination.NewIterator(fetcher, spec, 200)
//	for it.Next(ctx) {
//		handle(it.Page())
//	}
//	if err := it.Err(); err != nil {
//		return err
//	}
type Iterator struct {
	fetcher PageFetcher
	spec    query.Spec
	perPage int

	next    PageToken
	page    *PageResult
	err     error
	done    bool
	fetched int
}

// NewIterator creates an iterator using perPage records per page; perPage <= 0
// uses the Spec's page size.
func NewIterator(fetcher PageFetcher, spec query.Spec, perPage int) *Iterator {
	if perPage <= 0 {
		perPage = spec.PerPage()
	}
	if perPage > query.MaxPerPage {
		perPage = query.MaxPerPage
	}
	it := &Iterator{fetcher: fetcher, spec: spec, perPage: perPage}
	it.Reset()
	return it
}

// Reset restarts the sequence from the first page.
func (it *Iterator) Reset() {
	it.page = nil
	it.err = nil
	it.done = false
	it.fetched = 0
	if it.spec.Grouped() || it.spec.Sampled() {
		it.next = Offset(1, it.perPage)
	} else {
		it.next = Cursor(InitialCursor, it.perPage)
	}
}

// Next fetches the next page. It returns false at the end of the sequence or
// on error; Err distinguishes the two.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.done {
		return false
	}

	page, err := it.fetcher.Fetch(ctx, it.spec, it.next)
	if err != nil {
		it.err = err
		it.done = true
		it.page = nil
		return false
	}
	it.page = page
	it.fetched += len(page.Records)

	switch {
	case it.spec.Grouped(), len(page.Records) == 0:
		it.done = true
	case it.next.Kind == TokenCursor:
		if page.HasNext() {
			it.next = Cursor(page.NextCursor, it.perPage)
		} else {
			it.done = true
		}
	default:
		if it.fetched >= page.TotalCount || it.next.Page*it.perPage >= OffsetLimit {
			it.done = true
		} else {
			it.next = Offset(it.next.Page+1, it.perPage)
		}
	}
	return true
}

// Page returns the page fetched by the last successful Next.
func (it *Iterator) Page() *PageResult {
	return it.page
}

// Err returns the error that ended the sequence, if any.
func (it *Iterator) Err() error {
	return it.err
}

// All returns a range-over-func sequence starting from the first page. A
// failing fetch is yielded once as a nil page with its error.
func (it *Iterator) All(ctx context.Context) iter.Seq2[*PageResult, error] {
	return func(yield func(*PageResult, error) bool) {
		it.Reset()
		for it.Next(ctx) {
			if !yield(it.Page(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(nil, err)
		}
	}
}
