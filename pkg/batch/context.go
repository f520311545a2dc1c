package batch

// Context describes the batch a piece of work belongs to. The zero value
// means top level, outside any batch.
type Context struct {
	// RunID tags every log line of one logical retrieval.
	RunID string

	// Index is the task index within the batch group.
	Index int

	// Total is the number of tasks in the batch group. Zero outside a batch.
	Total int
}

// InBatch reports whether the work runs as part of a batch group.
func (c Context) InBatch() bool {
	return c.Total > 0
}

// TopLevel returns a Context for work outside any batch.
func TopLevel(runID string) Context {
	return Context{RunID: runID}
}
