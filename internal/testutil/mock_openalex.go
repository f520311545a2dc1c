// Package testutil provides testing utilities for the OpenAlex client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockOpenAlex is a configurable mock OpenAlex server for testing. Resources
// registered with SetCollection are served with filtering, offset and cursor
// paging and group-by, so paging logic can be exercised end to end.
type MockOpenAlex struct {
	server      *httptest.Server
	mu          sync.RWMutex
	handlers    map[string]func(w http.ResponseWriter, r *http.Request)
	collections map[string][]map[string]any
	delay       func(r *http.Request) time.Duration
	failNext    int
	failResp    MockResponse

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	queries           []url.Values
	inFlight          int
	maxInFlight       int
}

// NewMockOpenAlex creates a new mock OpenAlex server.
func NewMockOpenAlex() *MockOpenAlex {
	mock := &MockOpenAlex{
		handlers:    make(map[string]func(w http.ResponseWriter, r *http.Request)),
		collections: make(map[string][]map[string]any),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.queries = append(mock.queries, r.URL.Query())
		mock.inFlight++
		if mock.inFlight > mock.maxInFlight {
			mock.maxInFlight = mock.inFlight
		}
		delay := mock.delay
		handler, exists := mock.handlers[r.URL.Path]
		fail, failResp := mock.failNext > 0, mock.failResp
		if fail {
			mock.failNext--
		}
		mock.mu.Unlock()

		defer func() {
			mock.mu.Lock()
			mock.inFlight--
			mock.mu.Unlock()
		}()

		if delay != nil {
			if d := delay(r); d > 0 {
				select {
				case <-time.After(d):
				case <-r.Context().Done():
					return
				}
			}
		}

		if fail {
			writeMock(w, failResp)
			return
		}
		if exists {
			handler(w, r)
			return
		}

		mock.collectionHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockOpenAlex) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockOpenAlex) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockOpenAlex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.queries = nil
	m.maxInFlight = 0
}

// SetHandler sets a custom handler for a specific path.
func (m *MockOpenAlex) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockOpenAlex) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeMock(w, resp)
	})
}

// FailNext answers the next n requests, on any path, with resp before normal
// routing resumes.
func (m *MockOpenAlex) FailNext(n int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
	m.failResp = resp
}

func writeMock(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// SetCollection serves records under /resource.
func (m *MockOpenAlex) SetCollection(resource string, records []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections["/"+strings.Trim(resource, "/")] = records
}

// SetDelay installs a per-request delay, e.g. to reorder completions.
func (m *MockOpenAlex) SetDelay(delay func(r *http.Request) time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = delay
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockOpenAlex) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// MaxInFlight returns the highest number of concurrently served requests.
func (m *MockOpenAlex) MaxInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxInFlight
}

// Queries returns the query parameters of every request in arrival order.
func (m *MockOpenAlex) Queries() []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]url.Values, len(m.queries))
	copy(out, m.queries)
	return out
}

// collectionHandler serves a registered collection.
func (m *MockOpenAlex) collectionHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	records, ok := m.collections[r.URL.Path]
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Not found","message":"unknown resource"}`))
		return
	}

	q := r.URL.Query()
	filtered, err := applyFilter(records, q.Get("filter"))
	if err != nil {
		writeQueryError(w, err.Error())
		return
	}

	if groupBy := q.Get("group-by"); groupBy != "" {
		writeJSON(w, map[string]any{
			"meta":     map[string]any{"count": len(filtered), "db_response_time_ms": 1, "page": 1, "per_page": 200, "groups_count": nil},
			"results":  []any{},
			"group_by": groupRecords(filtered, groupBy),
		})
		return
	}

	perPage := 25
	if v := q.Get("per-page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeQueryError(w, "per-page must be between 1 and 200")
			return
		}
		perPage = n
	}

	meta := map[string]any{"count": len(filtered), "db_response_time_ms": 1, "per_page": perPage}
	var start int
	if cursor := q.Get("cursor"); cursor != "" {
		if cursor != "*" {
			n, err := strconv.Atoi(strings.TrimPrefix(cursor, "c"))
			if err != nil {
				writeQueryError(w, "invalid cursor")
				return
			}
			start = n
		}
		meta["page"] = nil
		if start+perPage < len(filtered) {
			meta["next_cursor"] = "c" + strconv.Itoa(start+perPage)
		} else {
			meta["next_cursor"] = nil
		}
	} else {
		page := 1
		if v := q.Get("page"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeQueryError(w, "page must be a positive number")
				return
			}
			page = n
		}
		if page*perPage > 10000 {
			writeQueryError(w, "Maximum results size of 10,000 records is exceeded. Cursor pagination is required.")
			return
		}
		start = (page - 1) * perPage
		meta["page"] = page
		meta["next_cursor"] = nil
	}

	end := min(start+perPage, len(filtered))
	start = min(start, end)
	writeJSON(w, map[string]any{"meta": meta, "results": filtered[start:end]})
}

func writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeQueryError(w http.ResponseWriter, message string) {
	w.WriteHeader(http.StatusForbidden)
	body, _ := json.Marshal(map[string]string{"error": "Invalid query parameters error.", "message": message})
	w.Write(body)
}

// applyFilter keeps records matching every key:v1|v2 term.
func applyFilter(records []map[string]any, filter string) ([]map[string]any, error) {
	if filter == "" {
		return records, nil
	}
	type term struct {
		path   []string
		values map[string]bool
	}
	var terms []term
	for _, part := range strings.Split(filter, ",") {
		key, value, ok := strings.Cut(part, ":")
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("invalid filter term %q", part)
		}
		if strings.ContainsAny(value[:1], "!<>") {
			return nil, fmt.Errorf("mock does not support operator in %q", part)
		}
		values := map[string]bool{}
		for _, v := range strings.Split(value, "|") {
			values[shortID(v)] = true
		}
		terms = append(terms, term{path: strings.Split(key, "."), values: values})
	}

	var out []map[string]any
	for _, rec := range records {
		match := true
		for _, t := range terms {
			found := false
			for _, leaf := range leaves(rec, t.path) {
				if t.values[shortID(leaf)] {
					found = true
					break
				}
			}
			if !found {
				match = false
				break
			}
		}
		if match {
			out = append(out, rec)
		}
	}
	return out, nil
}

// leaves resolves a dotted path through maps and slices to string values.
func leaves(v any, path []string) []string {
	switch node := v.(type) {
	case map[string]any:
		if len(path) == 0 {
			return nil
		}
		return leaves(node[path[0]], path[1:])
	case []any:
		var out []string
		for _, item := range node {
			out = append(out, leaves(item, path)...)
		}
		return out
	case []string:
		if len(path) != 0 {
			return nil
		}
		return node
	case string:
		if len(path) != 0 {
			return nil
		}
		return []string{node}
	case int:
		if len(path) != 0 {
			return nil
		}
		return []string{strconv.Itoa(node)}
	default:
		return nil
	}
}

func shortID(v string) string {
	return strings.ToUpper(strings.TrimPrefix(v, "https://openalex.org/"))
}

// groupRecords counts records per value of key in first-seen order.
func groupRecords(records []map[string]any, key string) []map[string]any {
	var order []string
	counts := map[string]int{}
	for _, rec := range records {
		for _, leaf := range leaves(rec, strings.Split(key, ".")) {
			if _, ok := counts[leaf]; !ok {
				order = append(order, leaf)
			}
			counts[leaf]++
		}
	}
	groups := make([]map[string]any, 0, len(order))
	for _, k := range order {
		groups = append(groups, map[string]any{"key": k, "key_display_name": k, "count": counts[k]})
	}
	return groups
}

// GenerateWorks builds n work records with ids W<start>..W<start+n-1>.
// Each work cites the work before it and has a type cycling through three values.
func GenerateWorks(start, n int) []map[string]any {
	types := []string{"article", "book", "dataset"}
	works := make([]map[string]any, 0, n)
	for i := start; i < start+n; i++ {
		work := map[string]any{
			"id":           fmt.Sprintf("https://openalex.org/W%d", i),
			"ids":          map[string]any{"openalex": fmt.Sprintf("https://openalex.org/W%d", i)},
			"display_name": fmt.Sprintf("Work %d", i),
			"type":         types[i%len(types)],
			"cites":        []string{fmt.Sprintf("https://openalex.org/W%d", i-1)},
			"authorships": []any{
				map[string]any{"author": map[string]any{"id": fmt.Sprintf("https://openalex.org/A%d", i%10)}},
			},
		}
		works = append(works, work)
	}
	return works
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	headers := map[string]string{"Content-Type": "application/json"}
	if retryAfter != "" {
		headers["Retry-After"] = retryAfter
	}
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":"Rate limit exceeded","message":"Too many requests"}`,
		Headers:    headers,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error":"Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewQueryErrorResponse creates the 403 the API returns for malformed parameters.
func NewQueryErrorResponse(message string) MockResponse {
	body, _ := json.Marshal(map[string]string{"error": "Invalid query parameters error.", "message": message})
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
