package query

import (
	"fmt"
	"sort"
	"strings"
)

// IDFilter names the filter attribute used to select records related to a list of IDs.
type IDFilter struct {
	// Path is the dotted attribute path, empty for top-level attributes.
	Path string

	// Field is the attribute holding the ID.
	Field string

	// Kind is the entity kind the IDs must have. Empty accepts any value.
	Kind Kind
}

// Key returns the full filter key.
func (f IDFilter) Key() string {
	if f.Path == "" {
		return f.Field
	}
	return f.Path + "." + f.Field
}

var idFilters = map[string]IDFilter{
	"works_funder":           {"grants", "funder", KindFunder},
	"works_award":            {"grants", "award_id", ""},
	"works_author":           {"authorships.author", "id", KindAuthor},
	"works_institution":      {"authorships.institutions", "id", KindInstitution},
	"works_source":           {"primary_location.source", "id", KindSource},
	"works_topic":            {"primary_topic", "id", KindTopic},
	"works_topics":           {"topics", "id", KindTopic},
	"works_subfield":         {"primary_topic.subfield", "id", ""},
	"works_cited_by":         {"", "cited_by", KindWork},
	"works_cites":            {"", "cites", KindWork},
	"works_referenced_works": {"", "referenced_works", KindWork},
	"authors_institution":    {"last_known_institutions", "id", KindInstitution},
	"topics_domain":          {"domain", "id", ""},
	"topics_field":           {"field", "id", ""},
	"topics_subfield":        {"subfield", "id", ""},
}

// CheckIDs reports every blank-free ID whose entity kind differs from the
// filter's. Filters without a kind accept anything.
func (f IDFilter) CheckIDs(ids []string) error {
	if f.Kind == "" {
		return nil
	}
	var bad []string
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		if kind, err := KindOf(id); err != nil || kind != f.Kind {
			bad = append(bad, id)
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("%s expects %s IDs, got %s", f.Key(), f.Kind, strings.Join(bad, ", "))
	}
	return nil
}

// LookupIDFilter returns the registered ID filter for name.
func LookupIDFilter(name string) (IDFilter, error) {
	f, ok := idFilters[name]
	if !ok {
		return IDFilter{}, fmt.Errorf("unknown ID filter %q (known: %v)", name, IDFilterNames())
	}
	return f, nil
}

// IDFilterNames lists the registered ID filter names in sorted order.
func IDFilterNames() []string {
	names := make([]string, 0, len(idFilters))
	for name := range idFilters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
