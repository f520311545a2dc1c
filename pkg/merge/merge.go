package merge

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/openalex-client/pkg/batch"
	"github.com/Sternrassler/openalex-client/pkg/pagination"
)

// Policy decides how failed batches are surfaced.
type Policy int

const (
	// Strict fails the merge when any batch failed.
	Strict Policy = iota

	// BestEffort skips failed batches and records warnings.
	BestEffort
)

// String returns the policy name.
func (p Policy) String() string {
	if p == BestEffort {
		return "best_effort"
	}
	return "strict"
}

// Options configures a merge.
type Options struct {
	Policy Policy

	// Grouped merges facet counts instead of entity records.
	Grouped bool

	// SortByCount orders grouped results by descending count. Ties keep
	// first-seen order.
	SortByCount bool
}

// Group is one facet bucket.
type Group struct {
	Key            string `json:"key"`
	KeyDisplayName string `json:"key_display_name"`
	Count          int64  `json:"count"`
}

// Result is the merged output of one retrieval.
type Result struct {
	// Records holds unique entities in first-seen order. Nil for grouped merges.
	Records []pagination.Record

	// Groups holds facet buckets. Nil for entity merges.
	Groups []Group

	// Warnings lists batches skipped by a best-effort merge.
	Warnings []Warning

	// Duplicates counts records dropped because their id was already seen.
	Duplicates int
}

// Len returns the number of records or groups.
func (r *Result) Len() int {
	if r.Groups != nil {
		return len(r.Groups)
	}
	return len(r.Records)
}

// Merge combines outcomes in the order given.
func Merge(outcomes []batch.Outcome, opts Options) (*Result, error) {
	var failures []BatchFailure
	successful := make([]batch.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Failed() {
			failures = append(failures, BatchFailure{Index: o.Index, Err: o.Err})
			continue
		}
		successful = append(successful, o)
	}

	result := &Result{}
	if len(failures) > 0 {
		if opts.Policy == Strict {
			return nil, &AggregateBatchError{Failures: failures, Total: len(outcomes)}
		}
		for _, f := range failures {
			result.Warnings = append(result.Warnings, Warning(f))
			log.Warn().
				Err(f.Err).
				Int("batch_index", f.Index).
				Int("batches", len(outcomes)).
				Msg("Skipping failed batch")
		}
		openalexMergeSkippedBatchesTotal.Add(float64(len(failures)))
	}

	if opts.Grouped {
		groups, err := mergeGroups(successful)
		if err != nil {
			return nil, err
		}
		if opts.SortByCount {
			slices.SortStableFunc(groups, func(a, b Group) int { return cmp.Compare(b.Count, a.Count) })
		}
		result.Groups = groups
		return result, nil
	}

	result.Records, result.Duplicates = mergeEntities(successful)
	if result.Duplicates > 0 {
		openalexMergeDuplicatesTotal.Add(float64(result.Duplicates))
	}
	return result, nil
}

// entityKey identifies a record in the merge. Records without an id cannot
// be de-duplicated and get a unique anon sequence number instead.
type entityKey struct {
	id   string
	anon int
}

func mergeEntities(outcomes []batch.Outcome) ([]pagination.Record, int) {
	seen := orderedmap.NewOrderedMap[entityKey, pagination.Record]()
	var duplicates, anon int

	for _, o := range outcomes {
		for _, record := range o.Records {
			key := entityKey{}
			if id, ok := record.ID(); ok {
				key.id = id
			} else {
				anon++
				key.anon = anon
			}
			if _, exists := seen.Get(key); exists {
				duplicates++
				continue
			}
			seen.Set(key, record)
		}
	}

	records := make([]pagination.Record, 0, seen.Len())
	for el := seen.Front(); el != nil; el = el.Next() {
		records = append(records, el.Value)
	}
	return records, duplicates
}

func mergeGroups(outcomes []batch.Outcome) ([]Group, error) {
	groups := orderedmap.NewOrderedMap[string, *Group]()

	for _, o := range outcomes {
		for _, record := range o.Records {
			key := stringValue(record["key"])
			count, err := countValue(record["count"])
			if err != nil {
				return nil, fmt.Errorf("batch %d group %q: %w", o.Index, key, err)
			}
			if g, ok := groups.Get(key); ok {
				g.Count += count
				continue
			}
			groups.Set(key, &Group{
				Key:            key,
				KeyDisplayName: stringValue(record["key_display_name"]),
				Count:          count,
			})
		}
	}

	out := make([]Group, 0, groups.Len())
	for el := groups.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value)
	}
	return out, nil
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func countValue(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("count has type %T", v)
	}
}

// GroupRecords renders groups as records for uniform output.
func GroupRecords(groups []Group) []pagination.Record {
	out := make([]pagination.Record, len(groups))
	for i, g := range groups {
		out[i] = pagination.Record{"key": g.Key, "key_display_name": g.KeyDisplayName, "count": g.Count}
	}
	return out
}
