package main

import (
	"os"

	"github.com/onemin-relay/relayctl/internal/config"
	"github.com/onemin-relay/relayctl/internal/logger"
	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time
var Version = "dev"

var (
	configFile   string
	settingsPath string
	logLevel     string

	// cfg is loaded before any command runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "relayctl - control panel for the local 1min relay server",
	Long: `relayctl edits the relay's settings file, starts and stops the relay
server process, pushes live configuration to it and watches its health.`,
	Example: `  # Interactive control panel
  relayctl panel

  # Change the rate limit, start the relay and check on it
  relayctl settings set ratelimit.value 200
  relayctl run

  # From another terminal
  relayctl status
  relayctl apply
  relayctl stop`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "relayctl config file (default ./relayctl.yaml)")
	rootCmd.PersistentFlags().StringVarP(&settingsPath, "settings", "s", "", "relay settings file (default relay_config.ini)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddGroup(
		&cobra.Group{ID: "relay", Title: "Relay Commands:"},
		&cobra.Group{ID: "settings", Title: "Settings Commands:"},
		&cobra.Group{ID: "diagnostics", Title: "Diagnostics Commands:"},
	)

	panelCmd.GroupID = "relay"
	runCmd.GroupID = "relay"
	statusCmd.GroupID = "relay"
	applyCmd.GroupID = "relay"
	modelsCmd.GroupID = "relay"
	stopCmd.GroupID = "relay"

	settingsCmd.GroupID = "settings"
	envCmd.GroupID = "settings"

	doctorCmd.GroupID = "diagnostics"
	historyCmd.GroupID = "diagnostics"

	rootCmd.AddCommand(panelCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(config.Options{ConfigFile: configFile})
	if err != nil {
		return err
	}
	if settingsPath != "" {
		c.Settings.Path = settingsPath
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	logger.Init(c.Log.Format, c.Log.Level)
	cfg = c
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
