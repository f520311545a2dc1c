// Package query describes OpenAlex list requests and renders them into URL
// query parameters.
//
// A Spec is an immutable value: every With* method returns a modified copy and
// never touches the receiver, so a Spec can be shared across goroutines and
// reused as the template for many batch variants.
package query

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// OpenAlex paging limits.
const (
	// MaxPerPage is the largest page size the API accepts.
	MaxPerPage = 200

	// MinPerPage is the smallest page size the API accepts.
	MinPerPage = 1

	// DefaultPerPage is used when a Spec does not set a page size.
	DefaultPerPage = MaxPerPage

	// MaxGroups is the number of groups a group-by query returns in its single page.
	MaxGroups = 200
)

// Spec is an immutable description of a list request against one resource.
type Spec struct {
	resource string
	filters  []Filter
	search   string
	sort     []string
	fields   []string
	groupBy  string
	perPage  int
	sample   int
	seed     int
}

// New creates a Spec for a resource path such as "works" or "authors".
func New(resource string) Spec {
	return Spec{resource: strings.Trim(resource, "/")}
}

// Resource returns the base resource path.
func (s Spec) Resource() string { return s.resource }

// Filters returns a copy of the filter list.
func (s Spec) Filters() []Filter { return slices.Clone(s.filters) }

// SearchText returns the free-text search terms.
func (s Spec) SearchText() string { return s.search }

// GroupByKey returns the grouping key, empty for entity queries.
func (s Spec) GroupByKey() string { return s.groupBy }

// Grouped reports whether the Spec is a facet query.
func (s Spec) Grouped() bool { return s.groupBy != "" }

// PerPage returns the configured page size or DefaultPerPage.
func (s Spec) PerPage() int {
	if s.perPage == 0 {
		return DefaultPerPage
	}
	return s.perPage
}

// Sampled reports whether the Spec requests a random sample.
func (s Spec) Sampled() bool { return s.sample > 0 }

func (s Spec) clone() Spec {
	s.filters = slices.Clone(s.filters)
	s.sort = slices.Clone(s.sort)
	s.fields = slices.Clone(s.fields)
	return s
}

// WithFilter adds an equality filter; several values are OR-combined.
func (s Spec) WithFilter(key string, values ...string) Spec {
	return s.with(Filter{Key: key, Op: OpEqual, Values: values})
}

// WithNot adds a negated filter.
func (s Spec) WithNot(key, value string) Spec {
	return s.with(Filter{Key: key, Op: OpNot, Values: []string{value}})
}

// WithGreater adds a strict greater-than filter.
func (s Spec) WithGreater(key string, value int64) Spec {
	return s.with(Filter{Key: key, Op: OpGreater, Values: []string{strconv.FormatInt(value, 10)}})
}

// WithLess adds a strict less-than filter.
func (s Spec) WithLess(key string, value int64) Spec {
	return s.with(Filter{Key: key, Op: OpLess, Values: []string{strconv.FormatInt(value, 10)}})
}

// WithRange adds the filters expressing an inclusive range in the syntax the
// parameter accepts.
func (s Spec) WithRange(key string, r Range) (Spec, error) {
	filters, err := r.Filters(key)
	if err != nil {
		return s, err
	}
	out := s.clone()
	out.filters = append(out.filters, filters...)
	return out, nil
}

// WithoutFilter removes every filter on key.
func (s Spec) WithoutFilter(key string) Spec {
	out := s.clone()
	out.filters = slices.DeleteFunc(out.filters, func(f Filter) bool { return f.Key == key })
	return out
}

func (s Spec) with(f Filter) Spec {
	out := s.clone()
	out.filters = append(out.filters, f)
	return out
}

// WithSearch sets the free-text search terms.
func (s Spec) WithSearch(text string) Spec {
	out := s.clone()
	out.search = text
	return out
}

// WithSort sets the sort keys, e.g. "cited_by_count:desc".
func (s Spec) WithSort(keys ...string) Spec {
	out := s.clone()
	out.sort = slices.Clone(keys)
	return out
}

// WithSelect restricts the returned fields. The id field is always kept
// because the merger deduplicates on it.
func (s Spec) WithSelect(fields ...string) Spec {
	out := s.clone()
	out.fields = slices.Clone(fields)
	if len(out.fields) > 0 && !slices.Contains(out.fields, "id") {
		out.fields = append(out.fields, "id")
	}
	return out
}

// WithGroupBy turns the Spec into a facet query on key.
func (s Spec) WithGroupBy(key string) Spec {
	out := s.clone()
	out.groupBy = key
	return out
}

// WithPerPage sets the page size.
func (s Spec) WithPerPage(n int) Spec {
	out := s.clone()
	out.perPage = n
	return out
}

// WithSample requests a random sample of n records using seed.
func (s Spec) WithSample(n, seed int) Spec {
	out := s.clone()
	out.sample = n
	out.seed = seed
	return out
}

// Validate checks the Spec for values the API would reject.
func (s Spec) Validate() error {
	if s.resource == "" {
		return fmt.Errorf("resource is required")
	}
	if s.perPage != 0 && (s.perPage < MinPerPage || s.perPage > MaxPerPage) {
		return fmt.Errorf("per-page must be between %d and %d (got %d)", MinPerPage, MaxPerPage, s.perPage)
	}
	if s.sample < 0 {
		return fmt.Errorf("sample must be positive (got %d)", s.sample)
	}
	for _, f := range s.filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Params renders the Spec into URL query parameters. Paging parameters are
// never included; the page fetcher adds them per token.
func (s Spec) Params() url.Values {
	params := url.Values{}
	if len(s.filters) > 0 {
		parts := make([]string, 0, len(s.filters))
		for _, f := range s.filters {
			parts = append(parts, f.String())
		}
		params.Set("filter", strings.Join(parts, ","))
	}
	if s.search != "" {
		params.Set("search", s.search)
	}
	if len(s.sort) > 0 {
		params.Set("sort", strings.Join(s.sort, ","))
	}
	if len(s.fields) > 0 {
		params.Set("select", strings.Join(s.fields, ","))
	}
	if s.groupBy != "" {
		params.Set("group-by", s.groupBy)
	}
	if s.sample > 0 {
		params.Set("sample", strconv.Itoa(s.sample))
		params.Set("seed", strconv.Itoa(s.seed))
	}
	return params
}

// String renders the Spec as a relative URL, used for logging and dry runs.
func (s Spec) String() string {
	encoded := s.Params().Encode()
	if encoded == "" {
		return "/" + s.resource
	}
	return "/" + s.resource + "?" + encoded
}
