package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BatmanBruc/hub-sales-bot/store"
)

var errMemoryStore = errors.New("migrate: USE_MEMORY_STORE is set, nothing to migrate")

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := loadConfig(rootOpts)
			if cfg.UseMemoryStore {
				return errMemoryStore
			}

			pg, err := store.NewPostgresStore(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			pg.Close()

			logger.Info("migrations applied")
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
