package pagination

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Sternrassler/openalex-client/pkg/query"
)

// fakeFetcher serves total synthetic records with ids W1..Wtotal.
type fakeFetcher struct {
	mu     sync.Mutex
	total  int
	groups []Record
	calls  []PageToken
	failOn func(PageToken) error
}

func (f *fakeFetcher) Fetch(_ context.Context, spec query.Spec, token PageToken) (*PageResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, token)
	f.mu.Unlock()

	if f.failOn != nil {
		if err := f.failOn(token); err != nil {
			return nil, err
		}
	}

	if spec.Grouped() {
		return &PageResult{Records: f.groups, TotalCount: f.total, ReturnedCount: len(f.groups), Grouped: true}, nil
	}

	var start int
	page := &PageResult{TotalCount: f.total, PerPage: token.PerPage}
	if token.Kind == TokenCursor {
		if token.Cursor != InitialCursor {
			n, err := strconv.Atoi(strings.TrimPrefix(token.Cursor, "c"))
			if err != nil {
				return nil, fmt.Errorf("bad cursor %q", token.Cursor)
			}
			start = n
		}
		if start+token.PerPage < f.total {
			page.NextCursor = "c" + strconv.Itoa(start+token.PerPage)
		}
	} else {
		start = (token.Page - 1) * token.PerPage
		page.Page = token.Page
	}

	for i := start; i < start+token.PerPage && i < f.total; i++ {
		page.Records = append(page.Records, Record{"id": fmt.Sprintf("https://openalex.org/W%d", i+1)})
	}
	page.ReturnedCount = len(page.Records)
	return page, nil
}

func (f *fakeFetcher) tokens() []PageToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PageToken(nil), f.calls...)
}
