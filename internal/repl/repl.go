// Package repl is the interactive control panel: a line-oriented loop over
// a panel.Controller that also prints background status changes.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/onemin-relay/relayctl/internal/panel"
	"github.com/onemin-relay/relayctl/internal/relay"
	"github.com/onemin-relay/relayctl/internal/settings"
	"github.com/onemin-relay/relayctl/internal/supervisor"
	"github.com/onemin-relay/relayctl/internal/ui"
)

// errQuit ends the loop.
var errQuit = errors.New("quit")

type REPL struct {
	c            *panel.Controller
	pollInterval time.Duration
	reader       io.Reader
	out          *ui.Printer
	mu           sync.Mutex // serialises output from the loop and the watcher
}

// New creates a REPL reading commands from reader and writing to out.
func New(c *panel.Controller, pollInterval time.Duration, reader io.Reader, out *ui.Printer) *REPL {
	return &REPL{
		c:            c,
		pollInterval: pollInterval,
		reader:       reader,
		out:          out,
	}
}

// Run processes commands until quit, end of input or ctx is done. The held
// relay is stopped on the way out.
func (r *REPL) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.print(func(p *ui.Printer) {
		p.Printf("relayctl control panel (relay at %s)\n", r.c.Document().Endpoint())
		p.Printf("Type 'help' for commands, 'quit' to exit\n\n")
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.watch(ctx)
	}()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r.reader)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err = <-readErr:
			break loop
		case line := <-lines:
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if cmdErr := r.handleCommand(ctx, line); cmdErr != nil {
				if errors.Is(cmdErr, errQuit) {
					break loop
				}
				r.print(func(p *ui.Printer) { p.Errorf("%v", cmdErr) })
			}
		}
	}

	cancel()
	wg.Wait()

	if stopErr := r.c.Shutdown(); stopErr != nil {
		r.print(func(p *ui.Printer) { p.Errorf("stopping relay: %v", stopErr) })
	}
	return err
}

// watch prints status changes reported by the controller's poller.
func (r *REPL) watch(ctx context.Context) {
	for status := range r.c.Watch(ctx, r.pollInterval) {
		r.print(func(p *ui.Printer) { p.Printf("[status] %s\n", p.Status(status)) })
	}
}

func (r *REPL) print(fn func(p *ui.Printer)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.out)
}

func (r *REPL) handleCommand(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		r.print(showHelp)
		return nil
	case "quit", "exit":
		return errQuit
	case "status":
		status := r.c.Poll(ctx)
		r.print(func(p *ui.Printer) { p.Printf("Status: %s\n", p.Status(status)) })
		return nil
	case "show":
		doc := r.c.Document()
		reveal := len(args) > 0 && args[0] == "--reveal"
		r.print(func(p *ui.Printer) { p.Settings(doc, reveal) })
		return nil
	case "set":
		return r.handleSet(args)
	case "save":
		if err := r.c.Save(); err != nil {
			return err
		}
		r.print(func(p *ui.Printer) { p.Printf("Settings saved.\n") })
		return nil
	case "start":
		return r.handleStart(ctx)
	case "stop":
		return r.handleStop()
	case "toggle":
		return r.handleToggle(ctx)
	case "apply":
		return r.handleApply(ctx)
	case "models":
		return r.handleModels(ctx)
	default:
		return fmt.Errorf("unknown command %q (type 'help')", cmd)
	}
}

func (r *REPL) handleSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set <key> <value>  (keys: %s)", strings.Join(settings.Keys, ", "))
	}
	key, value := args[0], strings.Join(args[1:], " ")
	if err := r.c.Edit(key, value); err != nil {
		return err
	}
	r.print(func(p *ui.Printer) { p.Printf("%s updated (not saved yet).\n", key) })
	return nil
}

func (r *REPL) handleStart(ctx context.Context) error {
	h, err := r.c.Start(ctx)
	if err != nil {
		return startError(err)
	}
	status := r.c.Status()
	r.print(func(p *ui.Printer) {
		p.Printf("Relay started (pid %d) at %s: %s\n", h.PID, h.Endpoint(), p.Status(status))
	})
	return nil
}

func (r *REPL) handleToggle(ctx context.Context) error {
	started, err := r.c.Toggle(ctx)
	if err != nil {
		return startError(err)
	}
	status := r.c.Status()
	r.print(func(p *ui.Printer) {
		if started {
			p.Printf("Relay started at %s: %s\n", r.c.Document().Endpoint(), p.Status(status))
			return
		}
		p.Printf("Relay stopped.\n")
	})
	return nil
}

func startError(err error) error {
	var sfe *supervisor.StartupFailedError
	if errors.As(err, &sfe) {
		return fmt.Errorf("failed to start relay: %s", sfe.Message)
	}
	return err
}

func (r *REPL) handleStop() error {
	info, err := r.c.Stop()
	if err != nil {
		return err
	}
	r.print(func(p *ui.Printer) {
		switch {
		case info == nil:
			p.Printf("Relay is not running.\n")
		case info.Forced:
			p.Warnf("relay ignored the stop request and was killed (pid %d)", info.PID)
		default:
			p.Printf("Relay stopped.\n")
		}
	})
	return nil
}

func (r *REPL) handleApply(ctx context.Context) error {
	err := r.c.Apply(ctx)
	if errors.Is(err, relay.ErrNotRunning) {
		r.print(func(p *ui.Printer) { p.Warnf("relay is not running. Start it first.") })
		return nil
	}
	if err != nil {
		return err
	}
	r.print(func(p *ui.Printer) { p.Printf("Configuration applied.\n") })
	return nil
}

func (r *REPL) handleModels(ctx context.Context) error {
	ids, err := r.c.RefreshModels(ctx)
	if errors.Is(err, relay.ErrNotRunning) {
		r.print(func(p *ui.Printer) { p.Warnf("relay is not running. Start it first.") })
		return nil
	}
	if err != nil {
		return err
	}
	r.print(func(p *ui.Printer) { p.Models(ids) })
	return nil
}

func showHelp(p *ui.Printer) {
	p.Printf("Available commands:\n")
	p.Printf("  status              - Check the relay and show its status\n")
	p.Printf("  show [--reveal]     - Show the working settings\n")
	p.Printf("  set <key> <value>   - Change a setting (see 'show' for keys)\n")
	p.Printf("  save                - Write the settings file\n")
	p.Printf("  start               - Save settings and start the relay\n")
	p.Printf("  stop                - Stop the relay\n")
	p.Printf("  toggle              - Start or stop the relay\n")
	p.Printf("  apply               - Push memcached and rate limit settings to the running relay\n")
	p.Printf("  models              - List the relay's models\n")
	p.Printf("  quit, exit          - Stop the relay and leave\n")
}
