package pagination

import (
	"context"
	"fmt"

	"github.com/Sternrassler/openalex-client/pkg/query"
)

// Execute runs strategy serially and returns at most EffectiveTotal records
// in server order. Offset pages are visited in order without gaps; cursor
// pages follow the server's next_cursor values.
func Execute(ctx context.Context, fetcher PageFetcher, spec query.Spec, strategy Strategy) ([]Record, error) {
	switch strategy.Kind {
	case SinglePage:
		return truncate(strategy.First.Records, strategy.EffectiveTotal), nil
	case OffsetAll:
		records := make([]Record, 0, strategy.EffectiveTotal)
		records = append(records, strategy.First.Records...)
		for _, token := range strategy.Tokens {
			if len(records) >= strategy.EffectiveTotal {
				break
			}
			page, err := fetcher.Fetch(ctx, spec, token)
			if err != nil {
				return nil, fmt.Errorf("fetch %s: %w", token, err)
			}
			if len(page.Records) == 0 {
				// Result set shrank since the probe.
				break
			}
			records = append(records, page.Records...)
		}
		return truncate(records, strategy.EffectiveTotal), nil
	case CursorAll:
		return WalkCursor(ctx, fetcher, spec, strategy.PerPage, strategy.EffectiveTotal)
	default:
		return nil, fmt.Errorf("unknown strategy %s", strategy.Kind)
	}
}

// WalkCursor follows one cursor chain from InitialCursor until the server
// returns no next cursor or limit records were collected. limit <= 0 walks
// the whole chain.
func WalkCursor(ctx context.Context, fetcher PageFetcher, spec query.Spec, perPage, limit int) ([]Record, error) {
	var records []Record
	cursor := InitialCursor
	seen := map[string]bool{}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seen[cursor] = true

		page, err := fetcher.Fetch(ctx, spec, Cursor(cursor, perPage))
		if err != nil {
			return nil, fmt.Errorf("fetch cursor page %d: %w", len(seen), err)
		}
		records = append(records, page.Records...)

		if limit > 0 && len(records) >= limit {
			return truncate(records, limit), nil
		}
		if !page.HasNext() || len(page.Records) == 0 {
			return records, nil
		}
		if seen[page.NextCursor] {
			return nil, fmt.Errorf("cursor chain repeated cursor %q", page.NextCursor)
		}
		cursor = page.NextCursor
	}
}

func truncate(records []Record, n int) []Record {
	if n >= 0 && len(records) > n {
		return records[:n]
	}
	return records
}
