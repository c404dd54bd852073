// -- cmd/record.go --
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/naytrik/naytrik/internal/agent"
	"github.com/naytrik/naytrik/internal/browser"
	"github.com/naytrik/naytrik/internal/config"
	"github.com/naytrik/naytrik/internal/library"
	"github.com/naytrik/naytrik/internal/observability"
)

// newRecordCmd creates the `record` command: an AI planner drives a live
// browser toward the stated goal while every executed step is captured into
// a replayable workflow.
func newRecordCmd(cfg *config.Config) *cobra.Command {
	var (
		name        string
		description string
		startURL    string
		maxSteps    int
		headful     bool
	)

	recordCmd := &cobra.Command{
		Use:   "record <goal>",
		Short: "Record a new workflow by letting the AI planner pursue a goal",
		Long: `Record opens a browser at --start-url and asks the planning model for one
step at a time until it declares the goal complete. Each executed step is
captured with a full selector candidate chain so the workflow can later be
replayed without any AI involvement.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			goal := args[0]

			if name == "" {
				name = goal
			}
			if !strings.HasPrefix(startURL, "http://") && !strings.HasPrefix(startURL, "https://") {
				startURL = "https://" + startURL
			}
			if maxSteps > 0 {
				cfg.RecorderCfg.MaxSteps = maxSteps
			}
			if headful {
				cfg.BrowserCfg.Headless = false
			}

			lib, err := library.Open(cfg.LibraryCfg, logger)
			if err != nil {
				return err
			}

			planner, err := agent.NewGeminiPlanner(cfg.PlannerCfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize planner: %w", err)
			}

			session, err := browser.NewSession(ctx, cfg.BrowserCfg, logger)
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			defer session.Close()

			driver := agent.NewDriver(session, planner, cfg.RecorderCfg, logger)
			wf, err := driver.Record(ctx, name, description, goal, startURL)
			if err != nil {
				return fmt.Errorf("recording failed: %w", err)
			}

			entry, err := lib.Save(wf)
			if err != nil {
				return fmt.Errorf("failed to save workflow: %w", err)
			}

			logger.Info("Workflow recorded.",
				zap.String("name", entry.Name),
				zap.String("id", entry.ID),
				zap.Int("steps", entry.Steps),
				zap.Strings("variables", entry.Variables))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recorded %q (%d steps) -> %s\n", entry.Name, entry.Steps, entry.File)
			if len(entry.Variables) > 0 {
				fmt.Fprintf(out, "Variables to bind on replay: %s\n", strings.Join(entry.Variables, ", "))
				fmt.Fprintf(out, "Replay with: naytrik play %s --var %s=...\n", entry.Name, entry.Variables[0])
			} else {
				fmt.Fprintf(out, "Replay with: naytrik play %s\n", entry.Name)
			}
			return nil
		},
	}

	recordCmd.Flags().StringVarP(&name, "name", "n", "", "Name for the recorded workflow (defaults to the goal)")
	recordCmd.Flags().StringVarP(&description, "description", "d", "", "Human description stored with the workflow")
	recordCmd.Flags().StringVarP(&startURL, "initial-url", "u", "", "URL the recording starts from (required)")
	recordCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Ceiling on recorded steps (overrides config)")
	recordCmd.Flags().BoolVar(&headful, "headful", false, "Run the browser with a visible window")
	_ = recordCmd.MarkFlagRequired("initial-url")

	return recordCmd
}
