// Package openalex retrieves complete OpenAlex result sets.
//
// A Client ties the HTTP client, the pagination planner, the batch scheduler
// and the merger together behind a small API:
//
//	c, err := openalex.New(openalex.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	spec := query.New("works").WithFilter("publication_year", "2023")
//	result, err := c.GetAll(ctx, spec, openalex.WithLimit(5000))
//
// GetAll probes page 1 to learn the total count and then walks the rest of
// the result set with offset paging (pages fetched concurrently) or a single
// cursor chain. GetAllByIDs splits an ID list into chunks of at most 100 IDs
// and retrieves the chunks concurrently, merging them into one
// de-duplicated result. Every transport call of a Client shares one limiter,
// so the configured concurrency is never exceeded across concurrent calls.
package openalex
