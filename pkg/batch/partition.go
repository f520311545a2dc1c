package batch

import (
	"fmt"

	"github.com/Sternrassler/openalex-client/pkg/pagination"
	"github.com/Sternrassler/openalex-client/pkg/query"
)

// MaxBatchSize is the largest number of IDs the API accepts in one OR filter.
const MaxBatchSize = 100

// PartitionIDs splits ids into tasks of at most size IDs each. Every task
// carries spec with an OR filter on filterKey for its chunk. IDs are cleaned
// and de-duplicated preserving first-seen order. size <= 0 or above
// MaxBatchSize uses MaxBatchSize.
func PartitionIDs(spec query.Spec, filterKey string, ids []string, size int) ([]Task, error) {
	if filterKey == "" {
		return nil, fmt.Errorf("partition ids: empty filter key")
	}
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}

	seen := make(map[string]bool, len(ids))
	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		id = query.CleanID(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		cleaned = append(cleaned, id)
	}

	tasks := make([]Task, 0, (len(cleaned)+size-1)/size)
	for start := 0; start < len(cleaned); start += size {
		chunk := cleaned[start:min(start+size, len(cleaned))]
		tasks = append(tasks, Task{
			Index: len(tasks),
			Spec:  spec.WithFilter(filterKey, chunk...),
			Limit: pagination.NoLimit,
		})
	}
	return tasks, nil
}
