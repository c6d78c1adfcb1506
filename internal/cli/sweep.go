package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BatmanBruc/hub-sales-bot/internal/app"
)

func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate subscriptions that expired past the grace period, once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := loadConfig(rootOpts)
			if err := cfg.Validate(); err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated: %d\nfailed: %d\n", report.Deactivated, report.Failed)
			if report.Failed > 0 {
				return fmt.Errorf("sweep: %d leads failed", report.Failed)
			}
			return nil
		},
	}
}
