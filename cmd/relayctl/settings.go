package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/onemin-relay/relayctl/internal/journal"
	"github.com/onemin-relay/relayctl/internal/settings"
	"github.com/onemin-relay/relayctl/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

var (
	settingsOutput string
	settingsReveal bool
	settingsForce  bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View and edit the relay settings file",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the relay settings",
	Long: `Show the relay settings as a key list, or in ini, yaml or json form.
The API key is masked unless --reveal is given.

Examples:
  relayctl settings show
  relayctl settings show -o yaml
  relayctl settings show -o ini --reveal > backup.ini`,
	Args: cobra.NoArgs,
	RunE: runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting and save",
	Long: `Change one setting and save the settings file.

Keys:
  ` + strings.Join(settings.Keys, "\n  ") + `

Examples:
  relayctl settings set server.port 5002
  relayctl settings set ratelimit.period "per hour"
  relayctl settings set models.permitted_models gpt-4o-mini,deepseek-chat`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSettingsSet,
}

var settingsSetAPIKeyCmd = &cobra.Command{
	Use:   "set-api-key",
	Short: "Prompt for the API key and save it",
	Long: `Prompt for the API key without echoing it and save the settings file.
When stdin is not a terminal the key is read from its first line.`,
	Args: cobra.NoArgs,
	RunE: runSettingsSetAPIKey,
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Overwrite the settings file with defaults",
	Args:  cobra.NoArgs,
	RunE:  runSettingsReset,
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file path",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), settingsStore().Path())
	},
}

func init() {
	settingsShowCmd.Flags().StringVarP(&settingsOutput, "output", "o", "table", "Output format: table, ini, yaml, json")
	settingsShowCmd.Flags().BoolVar(&settingsReveal, "reveal", false, "Show the API key in clear text")
	settingsResetCmd.Flags().BoolVarP(&settingsForce, "force", "f", false, "Overwrite an existing settings file")
	settingsShowCmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(
		[]string{"table", "ini", "yaml", "json"}, cobra.ShellCompDirectiveNoFileComp))

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsSetAPIKeyCmd)
	settingsCmd.AddCommand(settingsResetCmd)
	settingsCmd.AddCommand(settingsPathCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	doc := loadSettings()
	if !settingsReveal && doc.Server.APIKey != "" {
		doc.Server.APIKey = ui.MaskSecret(doc.Server.APIKey)
	}
	return writeSettings(cmd.OutOrStdout(), doc, settingsOutput)
}

func writeSettings(w io.Writer, doc *settings.Document, format string) error {
	switch strings.ToLower(format) {
	case "table", "":
		// Masking, if any, was applied by the caller.
		ui.NewPrinter(w).Settings(doc, true)
		return nil
	case "ini":
		return doc.WriteINI(w)
	case "yaml":
		data, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		_, err = w.Write(data)
		return err
	case "json":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	default:
		return fmt.Errorf("unknown output format %q (use table, ini, yaml or json)", format)
	}
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], strings.Join(args[1:], " ")
	return updateSettings(cmd.ErrOrStderr(), func(doc *settings.Document) error {
		return doc.Set(key, value)
	}, fmt.Sprintf("%s updated", key))
}

func runSettingsSetAPIKey(cmd *cobra.Command, args []string) error {
	key, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "API key: ")
	if err != nil {
		return err
	}
	return updateSettings(cmd.ErrOrStderr(), func(doc *settings.Document) error {
		return doc.Set("server.api_key", key)
	}, "API key saved")
}

func runSettingsReset(cmd *cobra.Command, args []string) error {
	store := settingsStore()
	if store.Exists() && !settingsForce {
		return fmt.Errorf("%s already exists; use --force to overwrite it", store.Path())
	}
	if err := store.Save(settings.Defaults()); err != nil {
		return err
	}
	recordEvent(journal.Event{Kind: journal.KindSave}, map[string]string{"path": store.Path(), "reset": "true"})
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote default settings to %s\n", store.Path())
	return nil
}

// updateSettings loads, edits and saves the settings file. A running relay
// picks the change up on its next start, or via 'relayctl apply'.
func updateSettings(w io.Writer, edit func(*settings.Document) error, done string) error {
	store := settingsStore()
	doc := loadSettings()
	if err := edit(doc); err != nil {
		return err
	}
	if err := store.Save(doc); err != nil {
		recordEvent(journal.Event{Kind: journal.KindSaveFailed, Error: err.Error()}, nil)
		return err
	}
	recordEvent(journal.Event{Kind: journal.KindSave}, map[string]string{"path": store.Path()})
	fmt.Fprintf(w, "%s in %s\n", done, store.Path())
	return nil
}

// readSecret reads a line without echo from a terminal, or plainly from
// any other reader.
func readSecret(in io.Reader, prompt io.Writer, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, label)
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
