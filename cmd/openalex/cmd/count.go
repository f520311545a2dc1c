package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/openalex-client/pkg/merge"
)

func newCountCmd(global *globalOptions) *cobra.Command {
	var spec specOptions

	cmd := &cobra.Command{
		Use:   "count <resource>",
		Short: "Print the number of matching entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := spec.build(args[0])
			if err != nil {
				return err
			}

			client, _, err := global.setup(merge.Strict)
			if err != nil {
				return err
			}
			defer global.close()

			if global.dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), client.URL(s.WithPerPage(1)))
				return nil
			}

			n, err := client.Count(cmd.Context(), s)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	spec.register(cmd)
	return cmd
}
