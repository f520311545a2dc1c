package pagination

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/openalex-client/pkg/query"
)

func planAndExecute(t *testing.T, fetcher *fakeFetcher, spec query.Spec, limit int) (Strategy, []Record) {
	t.Helper()
	strategy, err := NewPlanner(fetcher).Plan(context.Background(), spec, limit)
	require.NoError(t, err)
	records, err := Execute(context.Background(), fetcher, spec, strategy)
	require.NoError(t, err)
	return strategy, records
}

func uniqueIDs(t *testing.T, records []Record) int {
	t.Helper()
	seen := map[string]bool{}
	for _, r := range records {
		id, ok := r.ID()
		require.True(t, ok)
		seen[id] = true
	}
	return len(seen)
}

func TestExecute_OffsetAll(t *testing.T) {
	fetcher := &fakeFetcher{total: 1050}
	strategy, records := planAndExecute(t, fetcher, query.New("works"), NoLimit)

	assert.Equal(t, OffsetAll, strategy.Kind)
	assert.Len(t, records, 1050)
	assert.Equal(t, 1050, uniqueIDs(t, records))

	calls := fetcher.tokens()
	require.Len(t, calls, 6)
	for i, token := range calls {
		assert.Equal(t, i+1, token.Page, "pages are visited 1..N in order")
	}
}

func TestExecute_CursorAllScenario(t *testing.T) {
	fetcher := &fakeFetcher{total: 25000}
	strategy, records := planAndExecute(t, fetcher, query.New("works").WithPerPage(200), NoLimit)

	assert.Equal(t, CursorAll, strategy.Kind)
	assert.Len(t, records, 25000)
	assert.Equal(t, 25000, uniqueIDs(t, records))

	calls := fetcher.tokens()
	require.Len(t, calls, 1+125, "probe plus one request per cursor page")
	assert.Equal(t, Cursor(InitialCursor, 200), calls[1])
	for _, token := range calls[1:] {
		assert.Equal(t, TokenCursor, token.Kind)
	}
}

func TestExecute_CursorStopsAtLimit(t *testing.T) {
	fetcher := &fakeFetcher{total: 50000}
	strategy, records := planAndExecute(t, fetcher, query.New("works"), 10500)

	assert.Equal(t, CursorAll, strategy.Kind)
	assert.Len(t, records, 10500)
	// 53 cursor pages of 200 cover 10500 records.
	assert.Len(t, fetcher.tokens(), 1+53)
}

func TestExecute_SinglePageTruncates(t *testing.T) {
	fetcher := &fakeFetcher{total: 500}
	_, records := planAndExecute(t, fetcher, query.New("works"), 7)
	assert.Len(t, records, 7)
}

func TestExecute_OffsetPageError(t *testing.T) {
	boom := errors.New("boom")
	fetcher := &fakeFetcher{total: 1000, failOn: func(tok PageToken) error {
		if tok.Kind == TokenOffset && tok.Page == 3 {
			return boom
		}
		return nil
	}}

	strategy, err := NewPlanner(fetcher).Plan(context.Background(), query.New("works"), NoLimit)
	require.NoError(t, err)

	_, err = Execute(context.Background(), fetcher, query.New("works"), strategy)
	assert.ErrorIs(t, err, boom)
}

func TestWalkCursor_RepeatedCursor(t *testing.T) {
	loop := &loopFetcher{}
	_, err := WalkCursor(context.Background(), loop, query.New("works"), 10, 0)
	assert.ErrorContains(t, err, "repeated cursor")
}

func TestWalkCursor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WalkCursor(ctx, &fakeFetcher{total: 100}, query.New("works"), 10, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

// loopFetcher always returns the same next cursor.
type loopFetcher struct{}

func (loopFetcher) Fetch(context.Context, query.Spec, PageToken) (*PageResult, error) {
	return &PageResult{Records: []Record{{"id": "W1"}}, NextCursor: "same", TotalCount: 100}, nil
}
