package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/onemin-relay/relayctl/internal/repl"
	"github.com/onemin-relay/relayctl/internal/ui"
	"github.com/spf13/cobra"
)

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Open the interactive control panel",
	Long: `Open an interactive control panel for the relay.

Edit settings with 'set', start and stop the relay, push live configuration
with 'apply' and list models. Status changes detected by the background
health poll are printed as they happen. Leaving the panel stops the relay.

Examples:
  relayctl panel`,
	Args: cobra.NoArgs,
	RunE: runPanel,
}

func runPanel(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := repl.New(s.controller, cfg.Supervisor.PollInterval, cmd.InOrStdin(), ui.NewPrinter(cmd.OutOrStdout()))
	return r.Run(ctx)
}
