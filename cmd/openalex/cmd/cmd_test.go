package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/openalex-client/internal/config"
	"github.com/Sternrassler/openalex-client/internal/testutil"
	"github.com/Sternrassler/openalex-client/pkg/batch"
	"github.com/Sternrassler/openalex-client/pkg/client"
	"github.com/Sternrassler/openalex-client/pkg/merge"
	"github.com/Sternrassler/openalex-client/pkg/query"
)

// execute runs the CLI against mock and returns stdout and stderr.
func execute(t *testing.T, mock *testutil.MockOpenAlex, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENALEX_URL", mock.URL())
	t.Setenv("OPENALEX_RATE_LIMIT", "0")
	t.Setenv("OPENALEX_LOG_LEVEL", "error")

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func decodeArray(t *testing.T, s string) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &out), s)
	return out
}

func TestBuildSpec(t *testing.T) {
	tests := []struct {
		name       string
		opts       specOptions
		wantFilter string
		wantErr    bool
	}{
		{name: "or values", opts: specOptions{filters: []string{"type=article|book"}}, wantFilter: "type:article|book"},
		{name: "negation", opts: specOptions{filters: []string{"is_oa=!true"}}, wantFilter: "is_oa:!true"},
		{name: "comparison", opts: specOptions{filters: []string{"cited_by_count=>10"}}, wantFilter: "cited_by_count:>10"},
		{name: "bad comparison", opts: specOptions{filters: []string{"cited_by_count=>ten"}}, wantErr: true},
		{name: "missing value", opts: specOptions{filters: []string{"type"}}, wantErr: true},
		{name: "comparison range", opts: specOptions{ranges: []string{"cited_by_count=100:500"}}, wantFilter: "cited_by_count:>99,cited_by_count:<501"},
		{name: "hyphen range", opts: specOptions{ranges: []string{"publication_year=2020:2022"}}, wantFilter: "publication_year:2020-2022"},
		{name: "identifier range", opts: specOptions{ranges: []string{"doi=1:2"}}, wantErr: true},
		{name: "bad per page", opts: specOptions{perPage: 500}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := tt.opts.build("works")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFilter, spec.Params().Get("filter"))
		})
	}
}

func TestBuildSpec_IdentifierRangeError(t *testing.T) {
	opts := specOptions{ranges: []string{"doi=1:2"}}
	_, err := opts.build("works")
	assert.ErrorIs(t, err, query.ErrRangeNotSupported)
}

func TestGet_All(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetCollection("works", testutil.GenerateWorks(1, 600))

	stdout, _, err := execute(t, mock, "get", "works", "-f", "type=article", "--all", "--per-page", "50")
	require.NoError(t, err)

	records := decodeArray(t, stdout)
	assert.Len(t, records, 200, "--all walks every page")
	assert.Equal(t, 4, mock.GetRequestCount())
}

func TestGet_DefaultLimit(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetCollection("works", testutil.GenerateWorks(1, 600))

	stdout, _, err := execute(t, mock, "get", "works")
	require.NoError(t, err)
	assert.Len(t, decodeArray(t, stdout), DefaultLimit)
}

func TestGet_GroupBy(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetCollection("works", testutil.GenerateWorks(1, 30))

	stdout, _, err := execute(t, mock, "get", "works", "--group-by", "type", "--all")
	require.NoError(t, err)

	groups := decodeArray(t, stdout)
	require.Len(t, groups, 3)
	assert.Equal(t, "book", groups[0]["key"])
	assert.Equal(t, float64(10), groups[0]["count"])
}

func TestGet_DryRun(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()

	stdout, _, err := execute(t, mock, "get", "works", "-f", "type=article", "--dry-run", "--email", "me@example.org")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stdout, mock.URL()+"/works?"), stdout)
	assert.Contains(t, stdout, "filter=type%3Aarticle")
	assert.Contains(t, stdout, "mailto=me%40example.org")
	assert.Equal(t, 0, mock.GetRequestCount())
}

func TestGet_LimitAndAllExclusive(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()

	_, _, err := execute(t, mock, "get", "works", "--limit", "5", "--all")
	assert.Error(t, err)
}

func TestIDs(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetCollection("works", testutil.GenerateWorks(1, 100))
	t.Setenv("OPENALEX_CLI_BATCH_SIZE", "1")

	idsFile := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(idsFile, []byte("# authors\nA2\n\nhttps://openalex.org/A1\n"), 0o600))

	stdout, _, err := execute(t, mock, "ids", "works", "--by", "works_author", "--ids", "A1", "--ids-file", idsFile, "--all")
	require.NoError(t, err)

	records := decodeArray(t, stdout)
	assert.Len(t, records, 20)
	assert.Equal(t, 2, mock.GetRequestCount(), "A1 is requested once")
}

func TestIDs_DryRunPrintsEveryChunk(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	t.Setenv("OPENALEX_CLI_BATCH_SIZE", "2")

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = fmt.Sprintf("W%d", i+1)
	}
	stdout, _, err := execute(t, mock, "ids", "works", "--by", "works_cites", "--ids", strings.Join(ids, ","), "--dry-run")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "filter=cites%3AW1%7CW2")
}

func TestIDs_Errors(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()

	_, _, err := execute(t, mock, "ids", "works", "--by", "authors_institution", "--ids", "I1")
	assert.ErrorContains(t, err, "does not apply")

	_, _, err = execute(t, mock, "ids", "works", "--by", "works_author")
	assert.ErrorContains(t, err, "no IDs")

	_, _, err = execute(t, mock, "ids", "works", "--by", "nope", "--ids", "A1")
	assert.ErrorContains(t, err, "unknown ID filter")

	_, _, err = execute(t, mock, "ids", "works", "--by", "works_author", "--ids", "A1,W2")
	assert.ErrorContains(t, err, "expects authors IDs, got W2")
	assert.Zero(t, mock.GetRequestCount())
}

func TestCount(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetCollection("works", testutil.GenerateWorks(1, 90))

	stdout, _, err := execute(t, mock, "count", "works", "-f", "type=book")
	require.NoError(t, err)
	assert.Equal(t, "30\n", stdout)
}

func TestMetricsAddr(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetCollection("works", testutil.GenerateWorks(1, 30))

	stdout, _, err := execute(t, mock, "count", "works", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Equal(t, "30\n", stdout)

	_, _, err = execute(t, mock, "count", "works", "--metrics-addr", "bad")
	assert.ErrorContains(t, err, "metrics server")
}

func TestInvalidConfig(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	t.Setenv("OPENALEX_MAX_CONCURRENT", "0")

	_, _, err := execute(t, mock, "count", "works")
	var verrs config.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestHintFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"query", &client.QueryError{StatusCode: 403, Message: "bad"}, "filter names"},
		{"rate limit", &client.RateLimitError{Message: "slow down"}, "OPENALEX_RATE_LIMIT"},
		{"budget", &client.RateLimitError{BudgetExhausted: true}, "budget"},
		{"network", &client.NetworkError{URL: "u", Err: errors.New("reset")}, "connection"},
		{"auth", &client.APIError{StatusCode: 401}, "OPENALEX_API_KEY"},
		{"not found", &client.APIError{StatusCode: 404}, "resource name"},
		{"aggregate", &merge.AggregateBatchError{Failures: []merge.BatchFailure{{Index: 1, Err: errors.New("x")}}, Total: 2}, "--best-effort"},
		{"aggregate query", &merge.AggregateBatchError{Failures: []merge.BatchFailure{{Index: 1, Err: &client.QueryError{}}}, Total: 2}, "filter names"},
		{"cancelled", fmt.Errorf("%w: %w", batch.ErrCancelled, context.Canceled), "interrupted"},
		{"config", config.ValidationErrors{{Field: "url", Message: "bad"}}, "configuration"},
		{"other", errors.New("other"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hint := hintFor(tt.err)
			if tt.want == "" {
				assert.Empty(t, hint)
				return
			}
			assert.Contains(t, hint, tt.want)
		})
	}
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, &client.QueryError{StatusCode: 403, Message: "cited_by_count is not a number"})

	out := buf.String()
	assert.Contains(t, out, "cited_by_count is not a number")
	assert.Contains(t, out, "hint:")
}

func TestReadIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("W1\n  W2  \n# skip\n\nW3"), 0o600))

	ids, err := readIDs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"W1", "W2", "W3"}, ids)

	_, err = readIDs(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
