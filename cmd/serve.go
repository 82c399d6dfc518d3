package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tikpoptv/terrahost/internal/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Starts the upload, processing and audit API together with the
WebSocket progress feed on /ws.`,
		Example: `  # Start with config.yaml on the configured port
  terrahost serve

  # Override the port
  terrahost serve --port 9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			srv, err := server.New(a.cfg, a.db, a.store)
			if err != nil {
				return err
			}
			defer srv.Close()

			return srv.Serve(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on")

	return cmd
}
