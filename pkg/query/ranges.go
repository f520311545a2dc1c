package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrRangeNotSupported is returned when a range is applied to a parameter
// that only accepts exact values.
var ErrRangeNotSupported = errors.New("parameter does not accept ranges")

// RangeStyle is the syntax a parameter accepts for ranges.
type RangeStyle int

const (
	// RangeComparison expresses bounds as separate >low-1 and <high+1 filters.
	RangeComparison RangeStyle = iota

	// RangeHyphen expresses a closed range as low-high.
	RangeHyphen

	// RangeUnsupported marks parameters that only take exact values.
	RangeUnsupported
)

// hyphenRangeKeys accept the low-high form natively.
var hyphenRangeKeys = map[string]bool{
	"publication_year": true,
}

// RangeStyleFor returns the range syntax for a filter key. Identifiers and
// boolean flags never take ranges; other numeric attributes use comparisons.
func RangeStyleFor(key string) RangeStyle {
	attr := key
	if i := strings.LastIndex(key, "."); i >= 0 {
		attr = key[i+1:]
	}
	switch {
	case hyphenRangeKeys[key]:
		return RangeHyphen
	case attr == "id", strings.HasSuffix(attr, "_id"), strings.HasPrefix(key, "ids."),
		strings.HasPrefix(attr, "is_"), strings.HasPrefix(attr, "has_"),
		attr == "doi", attr == "orcid", attr == "ror", attr == "issn", attr == "type",
		attr == "cites", attr == "cited_by", attr == "works", attr == "referenced_works":
		return RangeUnsupported
	default:
		return RangeComparison
	}
}

// Range is an inclusive numeric range with optional bounds.
type Range struct {
	Low     int64
	High    int64
	HasLow  bool
	HasHigh bool
}

// Exact reports whether the range selects a single value.
func (r Range) Exact() bool {
	return r.HasLow && r.HasHigh && r.Low == r.High
}

// ParseRange parses "low:high", "low:", ":high", "low-high" or a bare number.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, fmt.Errorf("empty range")
	}

	sep := strings.IndexByte(s, ':')
	if sep < 0 {
		// A leading '-' is a sign, not a separator.
		if i := strings.IndexByte(s[1:], '-'); i >= 0 {
			sep = i + 1
		}
	}
	if sep < 0 {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
		}
		return Range{Low: v, High: v, HasLow: true, HasHigh: true}, nil
	}

	var r Range
	if low := strings.TrimSpace(s[:sep]); low != "" {
		v, err := strconv.ParseInt(low, 10, 64)
		if err != nil {
			return Range{}, fmt.Errorf("invalid range %q: lower bound: %w", s, err)
		}
		r.Low, r.HasLow = v, true
	}
	if high := strings.TrimSpace(s[sep+1:]); high != "" {
		v, err := strconv.ParseInt(high, 10, 64)
		if err != nil {
			return Range{}, fmt.Errorf("invalid range %q: upper bound: %w", s, err)
		}
		r.High, r.HasHigh = v, true
	}
	if !r.HasLow && !r.HasHigh {
		return Range{}, fmt.Errorf("invalid range %q: no bounds", s)
	}
	if r.HasLow && r.HasHigh && r.Low > r.High {
		return Range{}, fmt.Errorf("invalid range %q: lower bound exceeds upper bound", s)
	}
	return r, nil
}

// Filters renders the range for key using the key's RangeStyle.
func (r Range) Filters(key string) ([]Filter, error) {
	if !r.HasLow && !r.HasHigh {
		return nil, fmt.Errorf("range for %q has no bounds", key)
	}

	style := RangeStyleFor(key)
	if r.Exact() && style != RangeUnsupported {
		return []Filter{{Key: key, Op: OpEqual, Values: []string{strconv.FormatInt(r.Low, 10)}}}, nil
	}

	switch style {
	case RangeUnsupported:
		return nil, fmt.Errorf("%w: %q", ErrRangeNotSupported, key)
	case RangeHyphen:
		if r.HasLow && r.HasHigh {
			value := strconv.FormatInt(r.Low, 10) + "-" + strconv.FormatInt(r.High, 10)
			return []Filter{{Key: key, Op: OpEqual, Values: []string{value}}}, nil
		}
	}

	var filters []Filter
	if r.HasLow {
		filters = append(filters, Filter{Key: key, Op: OpGreater, Values: []string{strconv.FormatInt(r.Low-1, 10)}})
	}
	if r.HasHigh {
		filters = append(filters, Filter{Key: key, Op: OpLess, Values: []string{strconv.FormatInt(r.High+1, 10)}})
	}
	return filters, nil
}
