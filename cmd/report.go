package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tikpoptv/terrahost/internal/quality"
	"github.com/tikpoptv/terrahost/internal/report"
)

func newReportCmd(configPath *string) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "report <asset-id>",
		Short: "Write an extraction audit report",
		Example: `  terrahost report 5f1c... --format markdown
  terrahost report 5f1c... --format pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			auditor := quality.NewAuditor(a.db, nil)
			gen := report.NewGenerator(a.db, auditor, a.cfg.Reports.Directory, a.cfg.Reports.FontPath)
			rpt, err := gen.Save(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rpt.FilePath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", report.FormatMarkdown, "report format: markdown or pdf")

	return cmd
}
