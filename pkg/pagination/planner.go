package pagination

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/openalex-client/pkg/logging"
	"github.com/Sternrassler/openalex-client/pkg/query"
)

// NoLimit requests every matching record.
const NoLimit = -1

// OffsetLimit is the largest result count reachable with offset paging.
const OffsetLimit = 10000

// StrategyKind is the pagination plan chosen for a query.
type StrategyKind int

const (
	// SinglePage means the probe page already holds the complete result.
	SinglePage StrategyKind = iota

	// OffsetAll fetches pages 2..N by page number.
	OffsetAll

	// CursorAll walks a cursor chain from the initial cursor.
	CursorAll
)

// String returns the strategy name used in logs.
func (k StrategyKind) String() string {
	switch k {
	case SinglePage:
		return "single_page"
	case OffsetAll:
		return "offset_all"
	case CursorAll:
		return "cursor_all"
	default:
		return fmt.Sprintf("strategy(%d)", int(k))
	}
}

// Strategy carries everything needed to enumerate the remaining pages.
type Strategy struct {
	Kind StrategyKind

	// First is the probe page. It is an empty page when the limit was 0.
	First *PageResult

	// Tokens lists offset pages 2..N for OffsetAll.
	Tokens []PageToken

	// PerPage is the page size used by the probe and all later pages.
	PerPage int

	// EffectiveTotal is the number of records the plan will return at most.
	EffectiveTotal int
}

// Planner chooses a Strategy from the probe page.
type Planner struct {
	fetcher PageFetcher
	logger  zerolog.Logger
}

// NewPlanner creates a planner issuing its probe through fetcher.
func NewPlanner(fetcher PageFetcher) *Planner {
	return &Planner{
		fetcher: fetcher,
		logger:  logging.NewLogger("planner"),
	}
}

// Plan fetches page 1 and decides how the rest of the result set is walked.
// limit is NoLimit or a maximum record count; a zero limit makes no request.
func (p *Planner) Plan(ctx context.Context, spec query.Spec, limit int) (Strategy, error) {
	if limit == 0 {
		return Strategy{Kind: SinglePage, First: &PageResult{Records: []Record{}}}, nil
	}

	// Grouped queries are served as exactly one page of at most MaxGroups.
	if spec.Grouped() {
		first, err := p.fetcher.Fetch(ctx, spec, Offset(1, query.MaxGroups))
		if err != nil {
			return Strategy{}, fmt.Errorf("probe %s: %w", spec.Resource(), err)
		}
		strategy := Strategy{
			Kind:           SinglePage,
			First:          first,
			PerPage:        query.MaxGroups,
			EffectiveTotal: capped(len(first.Records), limit),
		}
		p.log(spec, strategy, first)
		return strategy, nil
	}

	perPage := spec.PerPage()
	if limit > 0 && limit < perPage {
		perPage = limit
	}

	first, err := p.fetcher.Fetch(ctx, spec, Offset(1, perPage))
	if err != nil {
		return Strategy{}, fmt.Errorf("probe %s: %w", spec.Resource(), err)
	}

	strategy := Strategy{
		Kind:           SinglePage,
		First:          first,
		PerPage:        perPage,
		EffectiveTotal: capped(first.TotalCount, limit),
	}

	switch {
	case first.TotalCount == 0 || len(first.Records) == 0:
		strategy.EffectiveTotal = 0
	case limit > 0 && limit <= len(first.Records):
		strategy.EffectiveTotal = limit
	case strategy.EffectiveTotal <= len(first.Records):
		strategy.EffectiveTotal = len(first.Records)
	case strategy.EffectiveTotal <= OffsetLimit:
		strategy.Kind = OffsetAll
		pages := (strategy.EffectiveTotal + perPage - 1) / perPage
		strategy.Tokens = make([]PageToken, 0, pages-1)
		for page := 2; page <= pages; page++ {
			strategy.Tokens = append(strategy.Tokens, Offset(page, perPage))
		}
	default:
		strategy.Kind = CursorAll
	}

	p.log(spec, strategy, first)
	return strategy, nil
}

func (p *Planner) log(spec query.Spec, strategy Strategy, first *PageResult) {
	p.logger.Debug().
		Str("resource", spec.Resource()).
		Str("strategy", strategy.Kind.String()).
		Int("total_count", first.TotalCount).
		Int("effective_total", strategy.EffectiveTotal).
		Int("per_page", strategy.PerPage).
		Int("pages", len(strategy.Tokens)+1).
		Msg("Pagination strategy selected")
}

// capped returns n limited to limit unless limit is NoLimit.
func capped(n, limit int) int {
	if limit > 0 && limit < n {
		return limit
	}
	return n
}
