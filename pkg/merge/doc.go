// Package merge combines batch outcomes into one logical result.
//
// Entity results are concatenated in task order and de-duplicated by id,
// keeping the first occurrence. Grouped results sum counts per key across
// batches and keep the display name of the first batch producing a key; keys
// appear in first-seen order unless sorting by count is requested.
//
// Failed batches are handled by Policy: Strict fails the merge with an
// *AggregateBatchError listing every failed batch, BestEffort skips them and
// records a Warning for each. Merge performs no I/O.
package merge
