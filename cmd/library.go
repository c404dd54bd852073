// -- cmd/library.go --
// Library management commands: list, show, delete.
package cmd

import (
	"fmt"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/naytrik/naytrik/internal/config"
	"github.com/naytrik/naytrik/internal/library"
	"github.com/naytrik/naytrik/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newListCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := library.Open(cfg.LibraryCfg, observability.GetLogger())
			if err != nil {
				return err
			}
			entries, err := lib.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No workflows in %s. Record one with: naytrik record\n", lib.Dir())
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTEPS\tVARIABLES\tFORMAT\tSAVED\tID")
			for _, e := range entries {
				vars := "-"
				if len(e.Variables) > 0 {
					vars = fmt.Sprintf("%d", len(e.Variables))
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
					e.Name, e.Steps, vars, e.Format, e.SavedAt.Format("2006-01-02 15:04"), e.ID)
			}
			return tw.Flush()
		},
	}
}

func newShowCmd(cfg *config.Config) *cobra.Command {
	var asYAML bool

	showCmd := &cobra.Command{
		Use:   "show <workflow>",
		Short: "Print a stored workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := library.Open(cfg.LibraryCfg, observability.GetLogger())
			if err != nil {
				return err
			}
			wf, err := lib.Load(args[0])
			if err != nil {
				return err
			}

			var raw []byte
			if asYAML {
				raw, err = yaml.Marshal(wf)
			} else {
				raw, err = json.MarshalIndent(wf, "", "  ")
			}
			if err != nil {
				return fmt.Errorf("failed to render workflow: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", raw)
			return nil
		},
	}

	showCmd.Flags().BoolVar(&asYAML, "yaml", false, "Render as YAML instead of JSON")
	return showCmd
}

func newDeleteCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <workflow>",
		Short: "Delete a stored workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := library.Open(cfg.LibraryCfg, observability.GetLogger())
			if err != nil {
				return err
			}
			if err := lib.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q\n", args[0])
			return nil
		},
	}
}
