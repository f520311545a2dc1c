package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/openalex-client/pkg/merge"
	"github.com/Sternrassler/openalex-client/pkg/openalex"
	"github.com/Sternrassler/openalex-client/pkg/pagination"
)

// DefaultLimit is the number of records returned without --limit or --all.
const DefaultLimit = 25

// resultOptions holds the flags controlling retrieval and merging.
type resultOptions struct {
	limit      int
	all        bool
	bestEffort bool
	sortGroups bool
	abstracts  bool
}

func (r *resultOptions) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVarP(&r.limit, "limit", "n", DefaultLimit, "Maximum number of records")
	flags.BoolVar(&r.all, "all", false, "Retrieve every matching record")
	flags.BoolVar(&r.bestEffort, "best-effort", false, "Skip failed batches instead of failing")
	flags.BoolVar(&r.sortGroups, "sort-groups", false, "Sort grouped results by count")
	flags.BoolVar(&r.abstracts, "abstracts", false, "Add plain-text abstracts to works")
	cmd.MarkFlagsMutuallyExclusive("limit", "all")
}

func (r *resultOptions) policy() merge.Policy {
	if r.bestEffort {
		return merge.BestEffort
	}
	return merge.Strict
}

func (r *resultOptions) options() []openalex.Option {
	limit := r.limit
	if r.all {
		limit = pagination.NoLimit
	}
	opts := []openalex.Option{openalex.WithLimit(limit)}
	if r.sortGroups {
		opts = append(opts, openalex.WithSortGroups())
	}
	if r.abstracts {
		opts = append(opts, openalex.WithAbstracts())
	}
	return opts
}

func newGetCmd(global *globalOptions) *cobra.Command {
	var (
		spec   specOptions
		result resultOptions
	)

	cmd := &cobra.Command{
		Use:   "get <resource>",
		Short: "Retrieve entities or grouped counts",
		Long: `Retrieve entities of a resource (works, authors, sources, institutions,
topics, publishers, funders, keywords, ...) or, with --group-by, their counts
per attribute value.

Examples:
  openalex get works -f publication_year=2023 -f type=article --limit 500
  openalex get works -r cited_by_count=100:500 --sort cited_by_count:desc --all
  openalex get works -f authorships.institutions.id=I27837315 --group-by type`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := spec.build(args[0])
			if err != nil {
				return err
			}

			client, _, err := global.setup(result.policy())
			if err != nil {
				return err
			}
			defer global.close()

			if global.dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), client.URL(s))
				return nil
			}

			opts := append(result.options(), openalex.WithProgress(progressLogger("get")))
			res, err := client.GetAll(cmd.Context(), s, opts...)
			if err != nil {
				return err
			}
			return writeResult(cmd, res)
		},
	}

	spec.register(cmd)
	result.register(cmd)
	return cmd
}
