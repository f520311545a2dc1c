package pagination

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is one result object, a mapping from field name to decoded JSON value.
type Record map[string]any

// ID returns the record's id field.
func (r Record) ID() (string, bool) {
	id, ok := r["id"].(string)
	return id, ok && id != ""
}

// PageResult is one fetched page. It is not modified after Fetch returns.
type PageResult struct {
	// Records in server order. For grouped queries each record has key,
	// key_display_name and count.
	Records []Record

	// TotalCount is the server's count of matching entities.
	TotalCount int

	// ReturnedCount is len(Records).
	ReturnedCount int

	// NextCursor is empty at the end of a cursor chain and for offset pages.
	NextCursor string

	// Page and PerPage echo the server's paging metadata.
	Page    int
	PerPage int

	// Grouped is set for group-by results.
	Grouped bool

	// ResponseTime is the server-side query time.
	ResponseTime time.Duration
}

// HasNext reports whether a cursor chain continues after this page.
func (p *PageResult) HasNext() bool {
	return p.NextCursor != ""
}

type pageBody struct {
	Meta struct {
		Count            int     `json:"count"`
		DBResponseTimeMS int     `json:"db_response_time_ms"`
		Page             *int    `json:"page"`
		PerPage          int     `json:"per_page"`
		NextCursor       *string `json:"next_cursor"`
	} `json:"meta"`
	Results []Record `json:"results"`
	GroupBy []Record `json:"group_by"`
}

// ParsePage decodes a list response body.
func ParsePage(body []byte, grouped bool) (*PageResult, error) {
	var parsed pageBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}

	records := parsed.Results
	if grouped {
		records = parsed.GroupBy
	}
	if records == nil {
		records = []Record{}
	}

	result := &PageResult{
		Records:       records,
		TotalCount:    parsed.Meta.Count,
		ReturnedCount: len(records),
		PerPage:       parsed.Meta.PerPage,
		Grouped:       grouped,
		ResponseTime:  time.Duration(parsed.Meta.DBResponseTimeMS) * time.Millisecond,
	}
	if parsed.Meta.Page != nil {
		result.Page = *parsed.Meta.Page
	}
	if parsed.Meta.NextCursor != nil {
		result.NextCursor = *parsed.Meta.NextCursor
	}
	return result, nil
}
