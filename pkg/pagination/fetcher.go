package pagination

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/openalex-client/pkg/logging"
	"github.com/Sternrassler/openalex-client/pkg/query"
)

// Getter performs one retried GET and returns the response body.
// *client.Client implements it.
type Getter interface {
	GetJSON(ctx context.Context, path string, params url.Values) ([]byte, error)
}

// PageFetcher fetches a single page.
type PageFetcher interface {
	Fetch(ctx context.Context, spec query.Spec, token PageToken) (*PageResult, error)
}

// Fetcher turns a Spec and PageToken into one request and a PageResult.
type Fetcher struct {
	getter Getter
	logger zerolog.Logger
}

// NewFetcher creates a page fetcher on top of getter.
func NewFetcher(getter Getter) *Fetcher {
	return &Fetcher{
		getter: getter,
		logger: logging.NewLogger("fetcher"),
	}
}

// Fetch retrieves the page identified by token. Errors from the getter,
// including query errors, are returned unchanged.
func (f *Fetcher) Fetch(ctx context.Context, spec query.Spec, token PageToken) (*PageResult, error) {
	if spec.Grouped() && token.Kind == TokenCursor {
		return nil, fmt.Errorf("group-by queries cannot be cursor paged")
	}

	params := spec.Params()
	for k, v := range token.Params() {
		params[k] = v
	}

	body, err := f.getter.GetJSON(ctx, spec.Resource(), params)
	if err != nil {
		return nil, err
	}

	page, err := ParsePage(body, spec.Grouped())
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", spec.Resource(), token, err)
	}

	f.logger.Debug().
		Str("resource", spec.Resource()).
		Str("token", token.String()).
		Int("returned", page.ReturnedCount).
		Int("total", page.TotalCount).
		Bool("has_next", page.HasNext()).
		Msg("Fetched page")

	return page, nil
}
