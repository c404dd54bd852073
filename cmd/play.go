// -- cmd/play.go --
package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/naytrik/naytrik/api/schemas"
	"github.com/naytrik/naytrik/internal/browser"
	"github.com/naytrik/naytrik/internal/config"
	"github.com/naytrik/naytrik/internal/history"
	"github.com/naytrik/naytrik/internal/library"
	"github.com/naytrik/naytrik/internal/observability"
	"github.com/naytrik/naytrik/internal/player"
	"github.com/naytrik/naytrik/internal/reporting"
	"github.com/naytrik/naytrik/internal/resolver"
)

// newPlayCmd creates the `play` command: deterministic replay of one or more
// stored workflows. Replay never consults the AI planner.
func newPlayCmd(cfg *config.Config) *cobra.Command {
	var (
		varFlags     []string
		bindingsFile string
		policyFlag   string
		jsonOutput   bool
		parallel     int
		headful      bool
	)

	playCmd := &cobra.Command{
		Use:   "play <workflow> [workflow...]",
		Short: "Replay stored workflows deterministically",
		Long: `Play loads workflows from the library by name or id and replays them against
a fresh browser session each. Variables recorded as {{placeholders}} must be
bound with --var or --bindings-file. The command exits non-zero when any
replayed workflow fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			policy, err := player.ParsePolicy(policyFlag)
			if err != nil {
				return err
			}
			bindings, err := collectBindings(bindingsFile, varFlags)
			if err != nil {
				return err
			}
			if headful {
				cfg.BrowserCfg.Headless = false
			}
			if parallel < 1 {
				parallel = 1
			}

			lib, err := library.Open(cfg.LibraryCfg, logger)
			if err != nil {
				return err
			}

			// Load everything up front so a typo in one name fails fast
			// instead of after the first workflow already ran.
			workflows := make([]*schemas.Workflow, len(args))
			for i, ref := range args {
				wf, err := lib.Load(ref)
				if err != nil {
					return fmt.Errorf("failed to load workflow %q: %w", ref, err)
				}
				workflows[i] = wf
			}

			store, closeStore, err := openHistory(cmd, cfg, logger)
			if err != nil {
				return err
			}
			if closeStore != nil {
				defer closeStore()
			}

			var (
				mu     sync.Mutex
				failed int
			)
			out := cmd.OutOrStdout()

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(parallel)
			for _, wf := range workflows {
				wf := wf
				g.Go(func() error {
					session, err := browser.NewSession(gctx, cfg.BrowserCfg, logger)
					if err != nil {
						return fmt.Errorf("failed to start browser for %q: %w", wf.Name, err)
					}
					defer session.Close()

					pl := player.New(session, resolver.New(session, logger), cfg.PlayerCfg, logger)
					report, err := pl.ExecuteWorkflow(gctx, wf, bindings, policy)
					if err != nil {
						return fmt.Errorf("replay of %q could not start: %w", wf.Name, err)
					}

					var buf bytes.Buffer
					if jsonOutput {
						err = reporting.WriteJSON(&buf, report)
					} else {
						err = reporting.WriteConsole(&buf, report)
					}
					if err != nil {
						return err
					}

					mu.Lock()
					buf.WriteTo(out)
					if !report.Passed() {
						failed++
					}
					mu.Unlock()

					if store != nil {
						if err := store.SaveReport(gctx, report); err != nil {
							logger.Warn("Failed to persist run history.",
								zap.String("workflow", wf.Name), zap.Error(err))
						}
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d workflows failed", failed, len(workflows))
			}
			return nil
		},
	}

	playCmd.Flags().StringArrayVar(&varFlags, "var", nil, "Variable binding KEY=VALUE (repeatable)")
	playCmd.Flags().StringVar(&bindingsFile, "bindings-file", "", "JSON or YAML file of variable bindings (--var overrides)")
	playCmd.Flags().StringVar(&policyFlag, "failure-policy", string(player.StopOnFirstFailure), "What happens after a failed step: stop_on_first_failure or best_effort")
	playCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the execution report as JSON instead of a table")
	playCmd.Flags().IntVarP(&parallel, "parallel", "j", 1, "Number of workflows to replay concurrently")
	playCmd.Flags().BoolVar(&headful, "headful", false, "Run the browser with a visible window")

	return playCmd
}

// collectBindings merges the bindings file (if any) with --var flags, flags
// winning on conflict.
func collectBindings(file string, pairs []string) (map[string]string, error) {
	bindings := make(map[string]string)
	if file != "" {
		loaded, err := loadBindingsFile(file)
		if err != nil {
			return nil, err
		}
		for k, v := range loaded {
			bindings[k] = v
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q, expected KEY=VALUE", pair)
		}
		bindings[key] = value
	}
	return bindings, nil
}

func loadBindingsFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bindings file: %w", err)
	}
	bindings := make(map[string]string)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &bindings)
	default:
		err = json.Unmarshal(raw, &bindings)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse bindings file %s: %w", path, err)
	}
	return bindings, nil
}

// openHistory connects the optional run-history store. It returns a nil store
// when no database is configured.
func openHistory(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (*history.Store, func(), error) {
	if cfg.HistoryCfg.DatabaseURL == "" {
		return nil, nil, nil
	}
	pool, err := pgxpool.New(cmd.Context(), cfg.HistoryCfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to history database: %w", err)
	}
	store, err := history.New(cmd.Context(), pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := store.EnsureSchema(cmd.Context()); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}
