package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/joho/godotenv"
	"github.com/onemin-relay/relayctl/internal/supervisor"
)

func TestEnvCmd_WritesDotenvFile(t *testing.T) {
	useTestConfig(t)
	if err := settingsStore().Save(mustSettings(t,
		"server.port", "5200",
		"server.api_key", "sk-abcdefghijkl",
		"server.memcached_enabled", "true",
		"server.memcached_url", "memcached:11211",
	)); err != nil {
		t.Fatal(err)
	}

	envOutputFile = filepath.Join(t.TempDir(), "relay.env")
	t.Cleanup(func() { envOutputFile = "" })

	cmd, _, errOut := testCommand()
	if err := runEnv(cmd, nil); err != nil {
		t.Fatalf("runEnv: %v", err)
	}
	if !strings.Contains(errOut.String(), "relay.env") {
		t.Errorf("confirmation = %q", errOut.String())
	}

	env, err := godotenv.Read(envOutputFile)
	if err != nil {
		t.Fatalf("godotenv.Read: %v", err)
	}
	if env[supervisor.EnvPort] != "5200" {
		t.Errorf("%s = %q", supervisor.EnvPort, env[supervisor.EnvPort])
	}
	if env[supervisor.EnvMemcachedURL] != "memcached:11211" {
		t.Errorf("%s = %q", supervisor.EnvMemcachedURL, env[supervisor.EnvMemcachedURL])
	}
	if env[supervisor.EnvAPIKey] == "sk-abcdefghijkl" {
		t.Error("API key should be masked without --reveal")
	}
}

func TestEnvCmd_RevealToStdout(t *testing.T) {
	useTestConfig(t)
	if err := settingsStore().Save(mustSettings(t, "server.api_key", "sk-abcdefghijkl")); err != nil {
		t.Fatal(err)
	}
	envReveal = true
	t.Cleanup(func() { envReveal = false })

	cmd, out, _ := testCommand()
	if err := runEnv(cmd, nil); err != nil {
		t.Fatalf("runEnv: %v", err)
	}
	if !strings.Contains(out.String(), `RELAY_API_KEY="sk-abcdefghijkl"`) {
		t.Errorf("output missing revealed key:\n%s", out.String())
	}
	if strings.Contains(out.String(), supervisor.EnvMemcachedURL) {
		t.Errorf("memcached URL should be absent while memcached is disabled:\n%s", out.String())
	}
}
