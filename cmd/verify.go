package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tikpoptv/terrahost/internal/quality"
)

func newVerifyCmd(configPath *string) *cobra.Command {
	var failIncomplete bool

	cmd := &cobra.Command{
		Use:   "verify <asset-id>",
		Short: "Audit the persisted extraction of an asset",
		Long: `Scores the latest completed session of an asset from its stored rows:
30% spatial, 30% band, 30% geometry and 10% indices. An asset scoring 90 or
more is complete.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			v := quality.NewAuditor(a.db, nil).Verify(cmd.Context(), args[0])
			if err := printJSON(cmd.OutOrStdout(), v); err != nil {
				return err
			}
			if failIncomplete && !v.Complete {
				return fmt.Errorf("asset %s is %s (score %.2f)", args[0], v.Status, v.WeightedScore)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failIncomplete, "strict", false, "exit non-zero unless the asset is complete")

	return cmd
}
