package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/onemin-relay/relayctl/internal/supervisor"
	"github.com/onemin-relay/relayctl/internal/ui"
	"github.com/spf13/cobra"
)

var (
	envReveal     bool
	envOutputFile string
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Print the environment the relay is started with",
	Long: `Print the environment variables relayctl passes to the relay, in dotenv
format. Useful for running the relay by hand or in a container.

Examples:
  relayctl env
  relayctl env --reveal -o relay.env
  docker run --env-file relay.env ...`,
	Args: cobra.NoArgs,
	RunE: runEnv,
}

func init() {
	envCmd.Flags().BoolVar(&envReveal, "reveal", false, "Include the API key in clear text")
	envCmd.Flags().StringVarP(&envOutputFile, "output", "o", "", "Write to a file instead of stdout")
}

func runEnv(cmd *cobra.Command, args []string) error {
	env := supervisor.Overlay(loadSettings())
	if !envReveal && env[supervisor.EnvAPIKey] != "" {
		env[supervisor.EnvAPIKey] = ui.MaskSecret(env[supervisor.EnvAPIKey])
	}

	if envOutputFile != "" {
		if err := godotenv.Write(env, envOutputFile); err != nil {
			return fmt.Errorf("writing %s: %w", envOutputFile, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d variables to %s\n", len(env), envOutputFile)
		return nil
	}

	content, err := godotenv.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding environment: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), content)
	return nil
}
