package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/onemin-relay/relayctl/internal/journal"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyPrune time.Duration
	historyRun   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent relay lifecycle events",
	Long: `Show relay starts, stops, configuration pushes, settings saves and status
changes recorded by relayctl, newest first. With --run, show every event of
one relay run in the order it happened.

Examples:
  relayctl history
  relayctl history -n 50
  relayctl history --run 0b6f3c1e-5d7a-4c8e-9f41-2a6d8e0b7c35
  relayctl history --prune 720h`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of events to show (0 for all)")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "Delete events older than this duration instead of listing")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show all events of one relay run, oldest first")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !cfg.Journal.Enabled {
		return fmt.Errorf("the journal is disabled (journal.enabled: false)")
	}
	j, err := journal.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer j.Close()

	if historyPrune > 0 {
		n, err := j.Prune(time.Now().Add(-historyPrune))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Deleted %d events older than %s\n", n, historyPrune)
		return nil
	}

	var events []journal.Event
	if historyRun != "" {
		runID, err := uuid.Parse(historyRun)
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", historyRun, err)
		}
		if events, err = j.ForRun(runID); err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No events recorded for run %s.\n", runID)
			return nil
		}
	} else {
		if events, err = j.Recent(historyLimit); err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events recorded.")
			return nil
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tEVENT\tPID\tENDPOINT\tDETAIL")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			formatTimeAgo(ev.Timestamp), ev.Kind, pidColumn(ev.PID), ev.Endpoint, eventDetail(ev))
	}
	return w.Flush()
}

func pidColumn(pid int) string {
	if pid == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", pid)
}

func eventDetail(ev journal.Event) string {
	if ev.Error != "" {
		return truncate(ev.Error, 60)
	}
	if ev.DetailsJSON == "" || ev.DetailsJSON == "null" {
		return ""
	}
	return truncate(ev.DetailsJSON, 60)
}
