// Package pagination fetches pages of OpenAlex list results and decides how a
// complete result set is walked.
//
// OpenAlex offers two paging modes. Offset paging (page, per-page) can be
// fetched in any order but stops at 10,000 results. Cursor paging has no upper
// bound but each cursor comes from the previous response, so a cursor chain is
// always walked strictly in order.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(client)
//	planner := pagination.NewPlanner(fetcher)
//
//	strategy, err := planner.Plan(ctx, spec, pagination.NoLimit)
//	if err != nil {
//		return err
//	}
//	records, err := pagination.Execute(ctx, fetcher, spec, strategy)
//
// The planner:
//   - Fetches page 1 to learn the total count (reused, never refetched)
//   - Returns SinglePage for grouped queries, empty results and satisfied limits
//   - Returns OffsetAll with tokens for pages 2..N up to 10,000 results
//   - Returns CursorAll beyond that
//
// Iterator gives callers manual, restartable control over the page sequence.
package pagination
