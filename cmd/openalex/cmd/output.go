package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/gookit/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/openalex-client/internal/config"
	"github.com/Sternrassler/openalex-client/pkg/batch"
	"github.com/Sternrassler/openalex-client/pkg/client"
	"github.com/Sternrassler/openalex-client/pkg/merge"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// writeResult prints records or groups as indented JSON on stdout and
// warnings on stderr.
func writeResult(cmd *cobra.Command, res *merge.Result) error {
	var payload any = res.Records
	if res.Groups != nil {
		payload = res.Groups
	}
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(body)); err != nil {
		return err
	}

	for _, w := range res.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), color.Yellow.Sprint("warning: ")+w.String())
	}
	return nil
}

func progressLogger(command string) func(completed, total int) {
	return func(completed, total int) {
		log.Debug().
			Str("command", command).
			Int("completed", completed).
			Int("total", total).
			Msg("Progress")
	}
}

// printError prints err in colour with a hint for the error kind.
func printError(w io.Writer, err error) {
	fmt.Fprintln(w, color.Red.Sprint("error: ")+err.Error())
	if hint := hintFor(err); hint != "" {
		fmt.Fprintln(w, color.Cyan.Sprint("hint: ")+hint)
	}
}

// hintFor returns an actionable suggestion for err, or "".
func hintFor(err error) string {
	var (
		rateErr  *client.RateLimitError
		queryErr *client.QueryError
		netErr   *client.NetworkError
		apiErr   *client.APIError
		aggErr   *merge.AggregateBatchError
		cfgErr   config.ValidationErrors
	)

	switch {
	case errors.Is(err, batch.ErrCancelled), errors.Is(err, client.ErrContextCancelled):
		return "interrupted; results of unfinished batches were discarded"
	case errors.As(err, &queryErr):
		return "check filter names and value types; numeric filters take a number, use --range for ranges"
	case errors.As(err, &rateErr) && rateErr.BudgetExhausted:
		return "the daily request budget is exhausted; retry after the reset or use an API key"
	case errors.As(err, &rateErr):
		return "lower OPENALEX_RATE_LIMIT or --concurrency, and set --email to use the polite pool"
	case errors.As(err, &netErr):
		return "check your connection or raise OPENALEX_TOTAL_TIMEOUT"
	case errors.As(err, &apiErr) && (apiErr.StatusCode == 401 || apiErr.StatusCode == 403):
		return "check OPENALEX_API_KEY"
	case errors.As(err, &apiErr) && apiErr.StatusCode == 404:
		return "check the resource name and IDs"
	case errors.As(err, &aggErr):
		return "rerun with --best-effort to keep the results of successful batches"
	case errors.As(err, &cfgErr):
		return "fix the configuration file or the OPENALEX_* environment variables"
	default:
		return ""
	}
}
