package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/openalex-client/pkg/batch"
	"github.com/Sternrassler/openalex-client/pkg/openalex"
	"github.com/Sternrassler/openalex-client/pkg/query"
)

func newIDsCmd(global *globalOptions) *cobra.Command {
	var (
		spec    specOptions
		result  resultOptions
		by      string
		ids     []string
		idsFile string
	)

	cmd := &cobra.Command{
		Use:   "ids <resource>",
		Short: "Retrieve entities related to a list of IDs",
		Long: `Retrieve entities related to a list of IDs. The IDs are split into
chunks of at most 100 (OPENALEX_CLI_BATCH_SIZE) which are fetched
concurrently and merged without duplicates.

Relation keys: ` + strings.Join(query.IDFilterNames(), ", ") + `

Examples:
  openalex ids works --by works_author --ids A5023888391,A5014077037 --all
  openalex ids works --by works_cites --ids-file cited.txt --group-by publication_year`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resource := args[0]
			filter, err := query.LookupIDFilter(by)
			if err != nil {
				return err
			}
			if !strings.HasPrefix(by, resource+"_") {
				return fmt.Errorf("relation %q does not apply to %s", by, resource)
			}

			all := ids
			if idsFile != "" {
				fromFile, err := readIDs(idsFile)
				if err != nil {
					return err
				}
				all = append(all, fromFile...)
			}
			if len(all) == 0 {
				return fmt.Errorf("no IDs given: use --ids or --ids-file")
			}
			if err := filter.CheckIDs(all); err != nil {
				return err
			}

			s, err := spec.build(resource)
			if err != nil {
				return err
			}

			client, cfg, err := global.setup(result.policy())
			if err != nil {
				return err
			}
			defer global.close()

			tasks, err := batch.PartitionIDs(s, filter.Key(), all, cfg.CLIBatchSize)
			if err != nil {
				return err
			}

			if global.dryRun {
				for _, t := range tasks {
					fmt.Fprintln(cmd.OutOrStdout(), client.URL(t.Spec))
				}
				return nil
			}

			opts := append(result.options(), openalex.WithProgress(progressLogger("ids")))
			res, err := client.RunBatches(cmd.Context(), tasks, opts...)
			if err != nil {
				return err
			}
			return writeResult(cmd, res)
		},
	}

	spec.register(cmd)
	result.register(cmd)
	cmd.Flags().StringVar(&by, "by", "", "Relation key, e.g. works_author")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Comma-separated IDs")
	cmd.Flags().StringVar(&idsFile, "ids-file", "", "File with one ID per line")
	cmd.MarkFlagRequired("by")
	return cmd
}

// readIDs reads one ID per line, skipping blank lines and # comments.
func readIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ids file: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ids file: %w", err)
	}
	return ids, nil
}
