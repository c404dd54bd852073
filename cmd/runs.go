// -- cmd/runs.go --
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/naytrik/naytrik/internal/config"
	"github.com/naytrik/naytrik/internal/observability"
)

// newRunsCmd creates the `runs` command: recent replay history of a workflow,
// read from the optional Postgres history store.
func newRunsCmd(cfg *config.Config) *cobra.Command {
	var limit int

	runsCmd := &cobra.Command{
		Use:   "runs <workflow>",
		Short: "Show recent replay runs of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.HistoryCfg.DatabaseURL == "" {
				return fmt.Errorf("run history is not configured (set NAYTRIK_HISTORY_DATABASE_URL)")
			}
			store, closeStore, err := openHistory(cmd, cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer closeStore()

			runs, err := store.RecentRuns(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No recorded runs for %q\n", args[0])
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tRESULT\tSUCCEEDED\tFALLBACK\tFAILED\tSKIPPED")
			for _, r := range runs {
				result := "PASSED"
				if !r.Passed {
					result = "FAILED"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n",
					r.RunID, result, r.Succeeded, r.Fallback, r.Failed, r.Skipped)
			}
			return tw.Flush()
		},
	}

	runsCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	return runsCmd
}
