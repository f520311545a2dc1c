package query

import (
	"fmt"
	"strings"
)

// Operator selects how a filter compares its values.
type Operator int

const (
	// OpEqual matches any of the filter values.
	OpEqual Operator = iota

	// OpNot excludes the value.
	OpNot

	// OpGreater matches values strictly greater than the filter value.
	OpGreater

	// OpLess matches values strictly less than the filter value.
	OpLess
)

// Filter is one key:value term of the filter parameter.
type Filter struct {
	// Key is the dotted attribute path, e.g. "authorships.author.id".
	Key string

	// Op is the comparison applied to Values.
	Op Operator

	// Values are OR-combined for OpEqual; other operators take one value.
	Values []string
}

// Validate reports malformed filters before they reach the API.
func (f Filter) Validate() error {
	if f.Key == "" {
		return fmt.Errorf("filter key is required")
	}
	if len(f.Values) == 0 {
		return fmt.Errorf("filter %q has no value", f.Key)
	}
	if f.Op != OpEqual && len(f.Values) != 1 {
		return fmt.Errorf("filter %q: only equality filters accept several values", f.Key)
	}
	for _, v := range f.Values {
		if v == "" {
			return fmt.Errorf("filter %q has an empty value", f.Key)
		}
		if strings.ContainsAny(v, ",|") {
			return fmt.Errorf("filter %q value %q contains a reserved character", f.Key, v)
		}
	}
	return nil
}

// String renders the filter in API syntax.
func (f Filter) String() string {
	var value string
	switch f.Op {
	case OpNot:
		value = "!" + f.first()
	case OpGreater:
		value = ">" + f.first()
	case OpLess:
		value = "<" + f.first()
	default:
		value = strings.Join(f.Values, "|")
	}
	return f.Key + ":" + value
}

func (f Filter) first() string {
	if len(f.Values) == 0 {
		return ""
	}
	return f.Values[0]
}
