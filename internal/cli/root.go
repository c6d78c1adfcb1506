// Package cli defines the hub-sales-bot commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BatmanBruc/hub-sales-bot/internal/config"
	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile  string
	LogLevel string
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "hub-sales-bot",
		Short: "AI Business HUB sales funnel bot",
		Long:  "Telegram sales assistant that qualifies leads, sells club subscriptions and keeps channel access in step with payments.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.LogLevel != "" && !isValidLogLevel(opts.LogLevel) {
				return fmt.Errorf("invalid log level %q: must be one of %v", opts.LogLevel, validLogLevels)
			}
			return config.LoadEnvFile(opts.EnvFile)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "config.env", "dotenv file to load (existing environment wins)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, *logging.Logger) {
	cfg := config.Load()
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	return cfg, logging.New(cfg.LogLevel)
}

func isValidLogLevel(level string) bool {
	for _, l := range validLogLevels {
		if l == level {
			return true
		}
	}
	return false
}
