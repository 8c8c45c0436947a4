package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/onemin-relay/relayctl/internal/ui"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the relay and supervise it in the foreground",
	Long: `Start the relay with the current settings file,
print health changes as they are detected and stop the relay on Ctrl-C.

Examples:
  relayctl run
  relayctl run -s /etc/relay/relay_config.ini`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := ui.NewPrinter(cmd.OutOrStdout())

	h, err := s.controller.Start(ctx)
	if err != nil {
		return err
	}
	out.Printf("Relay started (pid %d) at %s. Press Ctrl-C to stop.\n", h.PID, h.Endpoint())

	updates := s.controller.Watch(ctx, cfg.Supervisor.PollInterval)
	for {
		select {
		case status, ok := <-updates:
			if !ok {
				slog.Info("Received signal, stopping relay")
				out.Printf("Stopping relay...\n")
				return nil
			}
			out.Printf("[status] %s\n", out.Status(status))
		case <-h.Done():
			msg := strings.TrimSpace(h.Stderr())
			if msg == "" {
				return fmt.Errorf("relay exited unexpectedly")
			}
			return fmt.Errorf("relay exited unexpectedly: %s", msg)
		}
	}
}
