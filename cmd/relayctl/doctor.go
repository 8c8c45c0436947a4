package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/onemin-relay/relayctl/internal/preflight"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the relay can be started with the current settings",
	Long: `Validate the settings file, resolve the relay entry point, check that the
relay port is free and ping memcached when it is enabled.

Examples:
  relayctl doctor`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	opts := preflight.Options{Doc: loadSettings()}

	command, err := relayCommand()
	if err == nil {
		opts.Command = command
	}
	if st, _ := recordedRelay(); st != nil {
		opts.RelayPID = st.PID
	}

	report, err := preflight.Run(context.Background(), opts)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tRESULT\tDETAIL")
	for _, c := range report.Checks {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, strings.ToUpper(string(c.Status)), c.Detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !report.OK() {
		return fmt.Errorf("preflight checks failed")
	}
	return nil
}
