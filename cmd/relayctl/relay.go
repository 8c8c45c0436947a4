package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/onemin-relay/relayctl/internal/journal"
	"github.com/onemin-relay/relayctl/internal/panel"
	"github.com/onemin-relay/relayctl/internal/relay"
	"github.com/onemin-relay/relayctl/internal/supervisor"
	"github.com/onemin-relay/relayctl/internal/ui"
	"github.com/spf13/cobra"
)

// These commands act on the relay recorded in the state file, which may be
// held by a panel or 'relayctl run' in another terminal.

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the relay is running and healthy",
	Long: `Show the status of the relay started by relayctl: Running, Error (the
relay answers its health check with a failure), Not Responding or Stopped.

Examples:
  relayctl status`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Push memcached and rate limit settings to the running relay",
	Long: `Send the memcached and rate limit settings from the settings file to the
running relay without restarting it. The API key and model filter only take
effect on the next start.

Examples:
  relayctl settings set ratelimit.value 100
  relayctl apply`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the running relay serves",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running relay",
	Long: `Stop the relay recorded in the state file, even if it was started from
another terminal. The relay is asked to exit and killed if it has not done
so within supervisor.stop_timeout.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

// recordedRelay returns the relay in the state file, or nil when none is
// recorded. A record whose process is gone is removed.
func recordedRelay() (*supervisor.State, error) {
	st, err := supervisor.ReadState(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, nil
	}
	if !st.IsRunning() {
		slog.Debug("Removing state of exited relay", "pid", st.PID)
		if err := supervisor.RemoveState(cfg.DataDir); err != nil {
			slog.Warn("Failed to remove stale relay state", "error", err)
		}
		return nil, nil
	}
	return st, nil
}

func stateRunID(st *supervisor.State) uuid.UUID {
	id, err := uuid.Parse(st.RunID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := ui.NewPrinter(cmd.OutOrStdout())
	st, err := recordedRelay()
	if err != nil {
		return err
	}
	if st == nil {
		out.Printf("Status:   %s\n", out.Status(panel.StatusStopped))
		return nil
	}

	health := relay.NewSynchronizer(st).CheckHealth(context.Background(), st.Endpoint())
	out.Printf("Status:   %s\n", out.Status(panel.StatusFor(true, health)))
	out.Printf("Endpoint: %s\n", st.Endpoint())
	out.Printf("PID:      %d\n", st.PID)
	out.Printf("Started:  %s (%s)\n", st.StartedAt.Format(time.RFC3339), formatTimeAgo(st.StartedAt))
	out.Printf("Run:      %s\n", st.RunID)
	return nil
}

func runApply(cmd *cobra.Command, args []string) error {
	st, err := recordedRelay()
	if err != nil {
		return err
	}
	doc := loadSettings()
	endpoint := doc.Endpoint()
	if st != nil {
		endpoint = st.Endpoint()
	}

	live := relay.LiveConfigFrom(doc)
	err = relay.NewSynchronizer(st).ApplyConfig(context.Background(), endpoint, live)
	if errors.Is(err, relay.ErrNotRunning) {
		return fmt.Errorf("%w; start it with 'relayctl run' or 'relayctl panel'", err)
	}

	ev := journal.Event{RunID: stateRunID(st), Kind: journal.KindApply, PID: st.PID, Endpoint: endpoint}
	if err != nil {
		ev.Kind = journal.KindApplyFailed
		ev.Error = err.Error()
		recordEvent(ev, live)
		return err
	}
	recordEvent(ev, live)
	fmt.Fprintf(cmd.ErrOrStderr(), "Applied configuration to %s\n", endpoint)
	return nil
}

func runModels(cmd *cobra.Command, args []string) error {
	st, err := recordedRelay()
	if err != nil {
		return err
	}
	endpoint := ""
	if st != nil {
		endpoint = st.Endpoint()
	}

	ids, err := relay.NewSynchronizer(st).ListModels(context.Background(), endpoint)
	if errors.Is(err, relay.ErrNotRunning) {
		return fmt.Errorf("%w; start it with 'relayctl run' or 'relayctl panel'", err)
	}
	if err != nil {
		return err
	}
	ui.NewPrinter(cmd.OutOrStdout()).Models(ids)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	st, err := recordedRelay()
	if err != nil {
		return err
	}
	if st == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Relay is not running.")
		return nil
	}

	forced, err := supervisor.StopPID(st.PID, cfg.Supervisor.StopTimeout)
	ev := journal.Event{RunID: stateRunID(st), Kind: journal.KindStop, PID: st.PID, Endpoint: st.Endpoint()}
	if err != nil {
		ev.Kind = journal.KindStopFailed
		ev.Error = err.Error()
		recordEvent(ev, nil)
		return err
	}
	recordEvent(ev, map[string]bool{"forced": forced})

	if err := supervisor.RemoveState(cfg.DataDir); err != nil {
		slog.Warn("Failed to remove relay state", "error", err)
	}
	if forced {
		fmt.Fprintf(cmd.ErrOrStderr(), "Relay (pid %d) ignored the stop request and was killed.\n", st.PID)
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "Relay (pid %d) stopped.\n", st.PID)
	}
	return nil
}
