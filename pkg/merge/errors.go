package merge

import (
	"fmt"
	"strings"
)

// BatchFailure is one failed batch.
type BatchFailure struct {
	Index int
	Err   error
}

// AggregateBatchError reports every failed batch of a strict merge.
type AggregateBatchError struct {
	Failures []BatchFailure
	Total    int
}

func (e *AggregateBatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d batches failed", len(e.Failures), e.Total)
	for i, f := range e.Failures {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "batch %d: %v", f.Index, f.Err)
	}
	return b.String()
}

// Unwrap returns the per-batch errors so errors.Is and errors.As see them.
func (e *AggregateBatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Indexes returns the indexes of the failed batches.
func (e *AggregateBatchError) Indexes() []int {
	out := make([]int, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Index
	}
	return out
}

// Warning records a batch skipped by a best-effort merge.
type Warning struct {
	Index int
	Err   error
}

func (w Warning) String() string {
	return fmt.Sprintf("batch %d skipped: %v", w.Index, w.Err)
}
