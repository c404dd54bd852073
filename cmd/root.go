// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/naytrik/naytrik/internal/config"
	"github.com/naytrik/naytrik/internal/observability"
)

// NewRootCmd builds the root command and returns it together with the config
// it will populate in PersistentPreRunE. Returning the config pointer lets
// tests assert against the fully resolved configuration.
func NewRootCmd() (*cobra.Command, *config.Config) {
	var cfgFile string
	cfg := config.NewDefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "naytrik",
		Short: "Naytrik records AI-driven browser workflows and replays them deterministically.",
		// Version is dynamically set at build time. See cmd/version.go.
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(cfgFile, cfg); err != nil {
				// Initialize a fallback logger so errors still get formatted.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "naytrik"})
				return err
			}

			observability.InitializeLogger(cfg.LoggerCfg)
			observability.GetLogger().Debug("Starting naytrik", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./naytrik.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newRecordCmd(cfg),
		newPlayCmd(cfg),
		newListCmd(cfg),
		newShowCmd(cfg),
		newDeleteCmd(cfg),
		newRunsCmd(cfg),
	)
	return rootCmd, cfg
}

// Execute runs the CLI with a signal-aware context so Ctrl-C aborts a
// recording or replay gracefully.
func Execute() {
	rootCmd, _ := NewRootCmd()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Use the logger if available, otherwise fallback to stderr
		if logger := observability.GetLogger(); logger != nil && logger != zap.NewNop() {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// initializeConfig reads the config file and NAYTRIK_* environment variables
// into cfg, with flag/env/file/default precedence handled by viper.
func initializeConfig(cfgFile string, cfg *config.Config) error {
	v := viper.New()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("naytrik")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("NAYTRIK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Secrets have no defaults registered, so bind them explicitly for env
	// pickup (NAYTRIK_PLANNER_API_KEY, NAYTRIK_HISTORY_DATABASE_URL).
	_ = v.BindEnv("planner.api_key")
	_ = v.BindEnv("history.database_url")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg.Validate()
}
