package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "terrahost",
		Short: "Geospatial raster upload and metadata extraction service",
		Long: `TerraHost stores GeoTIFF uploads, runs the extraction worker over them
and keeps the resulting spatial metadata, band data, analysis results and
lineage in a local database.

Settings come from a YAML or TOML file, overridden by TERRAHOST_*
environment variables. A .env file in the working directory is loaded first.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file (.yaml or .toml)")

	cmd.AddCommand(
		newServeCmd(&configPath),
		newUploadCmd(&configPath),
		newProcessCmd(&configPath),
		newVerifyCmd(&configPath),
		newReportCmd(&configPath),
		newWorkerCmd(&configPath),
	)

	return cmd
}

func setupLogging(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
