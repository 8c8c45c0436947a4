package main

import (
	"strings"

	"github.com/onemin-relay/relayctl/internal/settings"
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for relayctl.

To load completions:

Bash:
  $ source <(relayctl completion bash)
  # To load completions for each session, execute once:
  # Linux:
  $ relayctl completion bash > /etc/bash_completion.d/relayctl
  # macOS:
  $ relayctl completion bash > $(brew --prefix)/etc/bash_completion.d/relayctl

Zsh:
  $ relayctl completion zsh > "${fpath[1]}/_relayctl"

Fish:
  $ relayctl completion fish > ~/.config/fish/completions/relayctl.fish

PowerShell:
  PS> relayctl completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(out)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	settingsSetCmd.ValidArgsFunction = completeSettingsSet
}

// completeSettingsSet completes the key, then the value for keys with a
// fixed set of values.
func completeSettingsSet(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return filterPrefix(settings.Keys, toComplete), cobra.ShellCompDirectiveNoFileComp
	case 1:
		return filterPrefix(settingValues(args[0]), toComplete), cobra.ShellCompDirectiveNoFileComp
	default:
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}

func settingValues(key string) []string {
	switch strings.ToLower(key) {
	case "ratelimit.period", "rate_limit.period":
		values := make([]string, len(settings.Periods))
		for i, p := range settings.Periods {
			values[i] = string(p)
		}
		return values
	case "server.memcached_enabled", "ratelimit.enabled", "rate_limit.enabled", "models.permit_subset_only":
		return []string{"true", "false"}
	}
	return nil
}

func filterPrefix(values []string, prefix string) []string {
	var out []string
	for _, v := range values {
		if strings.HasPrefix(v, prefix) {
			out = append(out, v)
		}
	}
	return out
}
