package main

import (
	"strings"
	"testing"
)

func TestDoctorCmd_ReportsMissingEntryPoint(t *testing.T) {
	useTestConfig(t).Server.Command = "/nonexistent/relay-server main.py"
	cmd, out, _ := testCommand()

	err := runDoctor(cmd, nil)
	if err == nil {
		t.Fatal("expected failure for a missing entry point")
	}

	var line string
	for _, l := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(l, "entry point") {
			line = l
		}
	}
	if !strings.Contains(line, "FAIL") {
		t.Errorf("entry point row = %q in:\n%s", line, out.String())
	}
	if !strings.Contains(out.String(), "settings") {
		t.Errorf("settings row missing:\n%s", out.String())
	}
}
