package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/tikpoptv/terrahost/internal/server"
	"github.com/tikpoptv/terrahost/internal/session"
)

// progressPrinter writes session events to the terminal.
type progressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *progressPrinter) Broadcast(_ string, ev session.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case session.EventLog:
		if ev.Line != nil {
			fmt.Fprintf(p.w, "  | %s\n", ev.Line.Line)
		}
	default:
		pct := 0
		if ev.Progress != nil {
			pct = *ev.Progress
		}
		if ev.Error != "" {
			fmt.Fprintf(p.w, "[%3d%%] %s: %s\n", pct, ev.Status, ev.Error)
			return
		}
		fmt.Fprintf(p.w, "[%3d%%] %s\n", pct, ev.Step)
	}
}

func newProcessCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <asset-id>",
		Short: "Run the extraction pipeline on an uploaded asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			processor, err := server.NewProcessor(a.cfg, a.db, a.store, &progressPrinter{w: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer processor.Release()

			outcome, err := processor.Start(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if outcome.AlreadyProcessed {
				fmt.Fprintf(cmd.ErrOrStderr(), "asset already processed by session %s\n", outcome.SessionID)
			}
			return printJSON(cmd.OutOrStdout(), outcome)
		},
	}

	return cmd
}
