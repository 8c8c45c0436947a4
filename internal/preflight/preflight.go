// Package preflight checks that the relay can be started with the current
// settings before the supervisor tries.
package preflight

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/onemin-relay/relayctl/internal/settings"
	"github.com/onemin-relay/relayctl/internal/supervisor"
	"golang.org/x/sync/errgroup"
)

// MemcachedTimeout bounds the memcached ping.
const MemcachedTimeout = 2 * time.Second

// Status is the outcome of one check.
type Status string

const (
	Pass Status = "pass"
	Fail Status = "fail"
	Skip Status = "skip"
)

// Check is one preflight result.
type Check struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report collects check results in a fixed order.
type Report struct {
	Checks []Check `json:"checks"`
}

// OK reports whether no check failed.
func (r *Report) OK() bool {
	for _, c := range r.Checks {
		if c.Status == Fail {
			return false
		}
	}
	return true
}

// Options describes what to check.
type Options struct {
	Doc     *settings.Document
	Command supervisor.Command

	// RelayPID is the PID of an already running relay, if any. Its port is
	// expected to be taken.
	RelayPID int
}

// Check names, in report order.
const (
	CheckSettings   = "settings"
	CheckEntryPoint = "entry point"
	CheckPort       = "port"
	CheckMemcached  = "memcached"
)

// Run performs all checks concurrently. Individual failures are reported
// in the Report; the error is only set when ctx ends first.
func Run(ctx context.Context, opts Options) (*Report, error) {
	checks := []struct {
		name string
		fn   func(Options) Check
	}{
		{CheckSettings, checkSettings},
		{CheckEntryPoint, checkEntryPoint},
		{CheckPort, checkPort},
		{CheckMemcached, checkMemcached},
	}

	report := &Report{Checks: make([]Check, len(checks))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		g.Go(func() error {
			res := c.fn(opts)
			res.Name = c.name
			mu.Lock()
			report.Checks[i] = res
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

func checkSettings(opts Options) Check {
	if err := opts.Doc.Validate(); err != nil {
		return Check{Status: Fail, Detail: err.Error()}
	}
	return Check{Status: Pass}
}

// checkEntryPoint resolves the relay executable the way exec.Command will,
// relative to the configured working directory.
func checkEntryPoint(opts Options) Check {
	path := opts.Command.Path
	if path == "" {
		return Check{Status: Fail, Detail: "no relay command configured"}
	}
	if opts.Command.Dir != "" && !filepath.IsAbs(path) && filepath.Base(path) != path {
		path = filepath.Join(opts.Command.Dir, path)
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Check{Status: Fail, Detail: err.Error()}
	}
	return Check{Status: Pass, Detail: resolved}
}

func checkPort(opts Options) Check {
	host, port := opts.Doc.Server.Host, opts.Doc.Server.Port
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if isPortAvailable(host, port) {
		return Check{Status: Pass, Detail: addr + " is free"}
	}
	if opts.RelayPID > 0 {
		return Check{Status: Pass, Detail: fmt.Sprintf("%s is held by the running relay (pid %d)", addr, opts.RelayPID)}
	}
	return Check{Status: Fail, Detail: addr + " is already in use"}
}

// isPortAvailable checks if a TCP port is available for binding on host.
func isPortAvailable(host string, port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

func checkMemcached(opts Options) Check {
	if !opts.Doc.Server.MemcachedEnabled {
		return Check{Status: Skip, Detail: "memcached disabled"}
	}
	mc := memcache.New(opts.Doc.Server.MemcachedURL)
	mc.Timeout = MemcachedTimeout
	if err := mc.Ping(); err != nil {
		return Check{Status: Fail, Detail: fmt.Sprintf("%s: %v", opts.Doc.Server.MemcachedURL, err)}
	}
	return Check{Status: Pass, Detail: opts.Doc.Server.MemcachedURL + " answered"}
}
