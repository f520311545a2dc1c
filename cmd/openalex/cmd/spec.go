package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/openalex-client/pkg/query"
)

// specOptions holds the flags describing a query.
type specOptions struct {
	filters []string
	ranges  []string
	search  string
	sort    []string
	fields  []string
	groupBy string
	perPage int
	sample  int
	seed    int
}

func (s *specOptions) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVarP(&s.filters, "filter", "f", nil,
		"Filter as key=value; a|b for OR, !v to negate, >v or <v to compare (repeatable)")
	flags.StringArrayVarP(&s.ranges, "range", "r", nil,
		"Inclusive range as key=low:high, low: or :high (repeatable)")
	flags.StringVarP(&s.search, "search", "s", "", "Full-text search terms")
	flags.StringSliceVar(&s.sort, "sort", nil, "Sort keys, e.g. cited_by_count:desc")
	flags.StringSliceVar(&s.fields, "select", nil, "Fields to return")
	flags.StringVar(&s.groupBy, "group-by", "", "Group results by attribute")
	flags.IntVar(&s.perPage, "per-page", 0, "Page size (1-200)")
	flags.IntVar(&s.sample, "sample", 0, "Random sample size")
	flags.IntVar(&s.seed, "seed", 0, "Seed for --sample")
}

// build turns the flags into a Spec for resource.
func (s *specOptions) build(resource string) (query.Spec, error) {
	spec := query.New(resource)

	for _, raw := range s.filters {
		key, value, ok := strings.Cut(raw, "=")
		if !ok || key == "" || value == "" {
			return spec, fmt.Errorf("invalid --filter %q: want key=value", raw)
		}
		var err error
		if spec, err = withFilter(spec, key, value); err != nil {
			return spec, fmt.Errorf("invalid --filter %q: %w", raw, err)
		}
	}

	for _, raw := range s.ranges {
		key, value, ok := strings.Cut(raw, "=")
		if !ok || key == "" {
			return spec, fmt.Errorf("invalid --range %q: want key=low:high", raw)
		}
		r, err := query.ParseRange(value)
		if err != nil {
			return spec, err
		}
		if spec, err = spec.WithRange(key, r); err != nil {
			return spec, fmt.Errorf("invalid --range %q: %w", raw, err)
		}
	}

	if s.search != "" {
		spec = spec.WithSearch(s.search)
	}
	if len(s.sort) > 0 {
		spec = spec.WithSort(s.sort...)
	}
	if len(s.fields) > 0 {
		spec = spec.WithSelect(s.fields...)
	}
	if s.groupBy != "" {
		spec = spec.WithGroupBy(s.groupBy)
	}
	if s.perPage != 0 {
		spec = spec.WithPerPage(s.perPage)
	}
	if s.sample != 0 {
		spec = spec.WithSample(s.sample, s.seed)
	}
	return spec, spec.Validate()
}

func withFilter(spec query.Spec, key, value string) (query.Spec, error) {
	switch value[0] {
	case '!':
		return spec.WithNot(key, value[1:]), nil
	case '>', '<':
		n, err := strconv.ParseInt(value[1:], 10, 64)
		if err != nil {
			return spec, fmt.Errorf("comparison needs a number: %w", err)
		}
		if value[0] == '>' {
			return spec.WithGreater(key, n), nil
		}
		return spec.WithLess(key, n), nil
	default:
		return spec.WithFilter(key, strings.Split(value, "|")...), nil
	}
}
