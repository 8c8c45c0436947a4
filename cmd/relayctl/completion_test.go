package main

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestCompleteSettingsSet_Keys(t *testing.T) {
	got, directive := completeSettingsSet(settingsSetCmd, nil, "ratelimit.")
	want := []string{"ratelimit.enabled", "ratelimit.value", "ratelimit.period"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("directive = %v", directive)
	}
}

func TestCompleteSettingsSet_Values(t *testing.T) {
	tests := []struct {
		key    string
		prefix string
		want   []string
	}{
		{"ratelimit.period", "per ", []string{"per second", "per minute", "per hour"}},
		{"ratelimit.period", "per h", []string{"per hour"}},
		{"server.memcached_enabled", "", []string{"true", "false"}},
		{"server.port", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.key+"/"+tt.prefix, func(t *testing.T) {
			got, _ := completeSettingsSet(settingsSetCmd, []string{tt.key}, tt.prefix)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("values = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompletionCmd_Bash(t *testing.T) {
	var out bytes.Buffer
	completionCmd.SetOut(&out)
	t.Cleanup(func() { completionCmd.SetOut(nil) })

	if err := completionCmd.RunE(completionCmd, []string{"bash"}); err != nil {
		t.Fatalf("completion bash: %v", err)
	}
	if !strings.Contains(out.String(), "relayctl") {
		t.Error("bash completion should mention relayctl")
	}
}
