package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tikpoptv/terrahost/internal/config"
	"github.com/tikpoptv/terrahost/internal/tools"
)

func newWorkerCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Check that the extraction worker can run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			status := tools.DetectWorker(cmd.Context(), cfg.Worker.Binary, cfg.Worker.Args)
			if err := printJSON(cmd.OutOrStdout(), status); err != nil {
				return err
			}
			if !status.Ready() {
				if !status.Installed {
					return fmt.Errorf("worker binary %q not found", status.Binary)
				}
				return fmt.Errorf("worker arguments missing: %s", strings.Join(status.Missing, ", "))
			}
			return nil
		},
	}

	return cmd
}
