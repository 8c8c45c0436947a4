// Package panel is the control panel's controller. It owns the working copy
// of the settings, drives the supervisor and the live config synchronizer
// on user actions and reconciles the displayed relay status.
//
// Front ends call the controller from one goroutine; Watch is the only
// background activity and it only reads liveness.
package panel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/onemin-relay/relayctl/internal/journal"
	"github.com/onemin-relay/relayctl/internal/relay"
	"github.com/onemin-relay/relayctl/internal/settings"
	"github.com/onemin-relay/relayctl/internal/supervisor"
)

// DefaultPollInterval is how often Watch checks the relay.
const DefaultPollInterval = 5 * time.Second

// Recorder receives lifecycle events. *journal.Journal implements it.
type Recorder interface {
	Record(ev journal.Event, details interface{}) error
}

// Options configures a Controller.
type Options struct {
	Store      *settings.Store
	Supervisor *supervisor.Supervisor
	Journal    Recorder // optional
}

// Controller orchestrates user actions against the relay.
type Controller struct {
	store   *settings.Store
	sup     *supervisor.Supervisor
	sync    *relay.Synchronizer
	journal Recorder

	mu     sync.Mutex
	doc    *settings.Document
	status Status
	// gen advances on every confirmed start or stop. A poll that began
	// under an older generation describes a relay that is no longer there.
	gen uint64
}

// New creates a Controller holding default settings; call Load to read the
// settings file.
func New(opts Options) *Controller {
	return &Controller{
		store:   opts.Store,
		sup:     opts.Supervisor,
		sync:    relay.NewSynchronizer(opts.Supervisor),
		journal: opts.Journal,
		doc:     settings.Defaults(),
		status:  StatusStopped,
	}
}

// Load replaces the working copy with the settings file. The working copy
// is always usable afterwards; a non-nil error describes what was recovered.
func (c *Controller) Load() error {
	doc, err := c.store.Load()
	c.mu.Lock()
	c.doc = doc
	c.mu.Unlock()
	return err
}

// Document returns a copy of the working settings.
func (c *Controller) Document() *settings.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Clone()
}

// Edit sets one dotted key on the working copy. Nothing is written until
// Save or Start.
func (c *Controller) Edit(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Set(key, value)
}

// Reset restores the working copy to the defaults.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.doc = settings.Defaults()
	c.mu.Unlock()
}

// Save persists the working copy.
func (c *Controller) Save() error {
	doc := c.Document()
	if err := c.store.Save(doc); err != nil {
		c.record(journal.Event{Kind: journal.KindSaveFailed, Error: err.Error()}, nil)
		return err
	}
	c.record(journal.Event{Kind: journal.KindSave}, map[string]string{"path": c.store.Path()})
	return nil
}

// Start saves the working copy and launches the relay with it, then polls
// once so Status reflects whether the relay answers yet. A failed save
// aborts the start.
func (c *Controller) Start(ctx context.Context) (*supervisor.Handle, error) {
	if err := c.Save(); err != nil {
		return nil, err
	}

	doc := c.Document()
	h, err := c.sup.Start(ctx, doc)
	if err != nil {
		if !errors.Is(err, supervisor.ErrAlreadyRunning) {
			c.record(journal.Event{Kind: journal.KindStartFailed, Endpoint: doc.Endpoint(), Error: err.Error()}, nil)
		}
		return nil, err
	}

	c.record(journal.Event{RunID: h.RunID, Kind: journal.KindStart, PID: h.PID, Endpoint: h.Endpoint()}, nil)
	c.mu.Lock()
	c.gen++
	c.mu.Unlock()
	c.Poll(ctx)
	return h, nil
}

// Stop stops the held relay. Without one it is a no-op.
func (c *Controller) Stop() (*supervisor.ExitInfo, error) {
	info, err := c.sup.Stop()
	c.mu.Lock()
	c.gen++
	c.mu.Unlock()
	c.setStatus(StatusStopped)
	if info == nil && err == nil {
		return nil, nil
	}

	ev := journal.Event{Kind: journal.KindStop}
	if info != nil {
		ev.RunID = info.RunID
		ev.PID = info.PID
	}
	if err != nil {
		ev.Kind = journal.KindStopFailed
		ev.Error = err.Error()
	}
	var details interface{}
	if info != nil {
		details = map[string]interface{}{
			"forced": info.Forced,
			"exited": info.Exited,
			"uptime": info.Uptime.Round(time.Second).String(),
		}
	}
	c.record(ev, details)
	return info, err
}

// Toggle stops a running relay or starts a stopped one. started reports
// which happened.
func (c *Controller) Toggle(ctx context.Context) (started bool, err error) {
	if c.sup.IsRunning() {
		_, err := c.Stop()
		return false, err
	}
	if _, err := c.Start(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// endpoint is where the relay listens: the address it was started with,
// or the working copy's when none is held.
func (c *Controller) endpoint() (string, uuid.UUID) {
	if h := c.sup.Handle(); h != nil {
		return h.Endpoint(), h.RunID
	}
	return c.Document().Endpoint(), uuid.Nil
}

// Apply pushes the live-applicable part of the working copy to the running
// relay. It returns relay.ErrNotRunning without any request when no relay
// is running.
func (c *Controller) Apply(ctx context.Context) error {
	endpoint, runID := c.endpoint()
	cfg := relay.LiveConfigFrom(c.Document())

	err := c.sync.ApplyConfig(ctx, endpoint, cfg)
	switch {
	case errors.Is(err, relay.ErrNotRunning):
		return err
	case err != nil:
		c.record(journal.Event{RunID: runID, Kind: journal.KindApplyFailed, Endpoint: endpoint, Error: err.Error()}, cfg)
		return err
	}
	c.record(journal.Event{RunID: runID, Kind: journal.KindApply, Endpoint: endpoint}, cfg)
	return nil
}

// RefreshModels lists the models the running relay serves.
func (c *Controller) RefreshModels(ctx context.Context) ([]string, error) {
	endpoint, _ := c.endpoint()
	return c.sync.ListModels(ctx, endpoint)
}

// CheckStatus reports liveness only: Running or Stopped.
func (c *Controller) CheckStatus() Status {
	if c.sup.IsRunning() {
		return StatusRunning
	}
	return StatusStopped
}

// Status returns the status from the most recent poll or lifecycle action.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Poll derives the status from liveness and a health check and stores it.
// Failures only degrade the status; Poll never returns an error. A result
// overtaken by a start or stop, or by the end of ctx, is dropped and the
// current status is returned instead.
func (c *Controller) Poll(ctx context.Context) Status {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	running := c.sup.IsRunning()
	health := relay.Unreachable
	if running {
		endpoint, _ := c.endpoint()
		health = c.sync.CheckHealth(ctx, endpoint)
	}
	status := StatusFor(running, health)

	if ctx.Err() != nil {
		slog.Debug("Discarding poll result after cancellation", "status", status)
		return c.Status()
	}

	c.mu.Lock()
	if c.gen != gen {
		current := c.status
		c.mu.Unlock()
		slog.Debug("Discarding stale poll result", "status", status, "current", current)
		return current
	}
	prev := c.status
	c.status = status
	c.mu.Unlock()

	c.statusChanged(prev, status)
	return status
}

// Watch polls every interval (DefaultPollInterval when zero) until ctx is
// done. It sends the first status right away and then only changes. The
// channel is closed when ctx ends.
func (c *Controller) Watch(ctx context.Context, interval time.Duration) <-chan Status {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ch := make(chan Status, 1)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last Status
		for {
			status := c.Poll(ctx)
			if status != last {
				select {
				case ch <- status:
					last = status
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Shutdown stops the relay if one is held, as closing the panel does.
func (c *Controller) Shutdown() error {
	if c.sup.Handle() == nil {
		return nil
	}
	slog.Debug("Stopping relay on panel shutdown")
	_, err := c.Stop()
	return err
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	prev := c.status
	c.status = s
	c.mu.Unlock()
	c.statusChanged(prev, s)
}

func (c *Controller) statusChanged(prev, s Status) {
	if prev == s {
		return
	}
	slog.Debug("Relay status changed", "from", prev, "to", s)
	ev := journal.Event{Kind: journal.KindStatusChanged}
	if h := c.sup.Handle(); h != nil {
		ev.RunID = h.RunID
		ev.PID = h.PID
	}
	c.record(ev, map[string]Status{"from": prev, "to": s})
}

// record writes to the journal when one is configured. Journal faults are
// logged and never fail the user action.
func (c *Controller) record(ev journal.Event, details interface{}) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Record(ev, details); err != nil {
		slog.Warn("Failed to record journal event", "kind", ev.Kind, "error", err)
	}
}
