package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/onemin-relay/relayctl/internal/journal"
	"github.com/onemin-relay/relayctl/internal/panel"
	"github.com/onemin-relay/relayctl/internal/settings"
	"github.com/onemin-relay/relayctl/internal/supervisor"
)

func settingsStore() *settings.Store {
	return settings.NewStore(cfg.Settings.Path)
}

// loadSettings reads the settings file. Recovered problems are reported on
// stderr; the document is always usable.
func loadSettings() *settings.Document {
	doc, err := settingsStore().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	return doc
}

func relayCommand() (supervisor.Command, error) {
	cmd, err := supervisor.ParseCommand(cfg.Server.Command)
	if err != nil {
		return supervisor.Command{}, fmt.Errorf("server.command: %w", err)
	}
	cmd.Dir = cfg.Server.Workdir
	return cmd, nil
}

// openJournal opens the event journal, or returns nil when it is disabled
// or unavailable. The journal never blocks relay control.
func openJournal() *journal.Journal {
	if !cfg.Journal.Enabled {
		return nil
	}
	j, err := journal.Open(cfg.DataDir)
	if err != nil {
		slog.Warn("Journal unavailable", "error", err)
		return nil
	}
	return j
}

// recordEvent writes one event for a one-shot command.
func recordEvent(ev journal.Event, details interface{}) {
	j := openJournal()
	if j == nil {
		return
	}
	defer j.Close()
	if err := j.Record(ev, details); err != nil {
		slog.Warn("Failed to record journal event", "kind", ev.Kind, "error", err)
	}
}

// session is a controller wired to this invocation's config, for commands
// that hold the relay process themselves.
type session struct {
	controller *panel.Controller
	closers    []func()
}

func newSession() (*session, error) {
	command, err := relayCommand()
	if err != nil {
		return nil, err
	}

	s := &session{}

	var output io.Writer
	if cfg.Server.LogFile != "" {
		f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening relay log file: %w", err)
		}
		output = f
		s.closers = append(s.closers, func() { f.Close() })
	}

	sup := supervisor.New(supervisor.Options{
		Command:     command,
		DataDir:     cfg.DataDir,
		GracePeriod: cfg.Supervisor.GracePeriod,
		StopTimeout: cfg.Supervisor.StopTimeout,
		Output:      output,
	})

	opts := panel.Options{Store: settingsStore(), Supervisor: sup}
	if j := openJournal(); j != nil {
		opts.Journal = j
		s.closers = append(s.closers, func() { j.Close() })
	}

	s.controller = panel.New(opts)
	if err := s.controller.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	return s, nil
}

// Close stops a held relay and releases the session's files.
func (s *session) Close() {
	if err := s.controller.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping relay: %v\n", err)
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
