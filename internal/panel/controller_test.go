package panel

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onemin-relay/relayctl/internal/journal"
	"github.com/onemin-relay/relayctl/internal/relay"
	"github.com/onemin-relay/relayctl/internal/settings"
	"github.com/onemin-relay/relayctl/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memJournal struct {
	mu     sync.Mutex
	events []journal.Event
}

func (m *memJournal) Record(ev journal.Event, details interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memJournal) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kinds []string
	for _, ev := range m.events {
		if ev.Kind != journal.KindStatusChanged {
			kinds = append(kinds, ev.Kind)
		}
	}
	return kinds
}

// fakeRelay serves the control surface the real relay exposes.
type fakeRelay struct {
	srv     *httptest.Server
	health  atomic.Int32
	delay   atomic.Int64 // health response delay, nanoseconds
	applied atomic.Int32
	hits    atomic.Int32
	lastCfg atomic.Value
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	r := &fakeRelay{}
	r.health.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, req *http.Request) {
		time.Sleep(time.Duration(r.delay.Load()))
		w.WriteHeader(int(r.health.Load()))
	})
	mux.HandleFunc("/v1/config", func(w http.ResponseWriter, req *http.Request) {
		var cfg relay.LiveConfig
		json.NewDecoder(req.Body).Decode(&cfg)
		r.lastCfg.Store(cfg)
		r.applied.Add(1)
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"data":[{"id":"mistral-nemo"},{"id":"gpt-4o-mini"}]}`))
	})

	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.hits.Add(1)
		mux.ServeHTTP(w, req)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRelay) hostPort() (string, string) {
	addr := r.srv.Listener.Addr().(*net.TCPAddr)
	return addr.IP.String(), strconv.Itoa(addr.Port)
}

type fixture struct {
	c       *Controller
	journal *memJournal
	store   *settings.Store
	relay   *fakeRelay
}

// newFixture builds a controller whose relay is a shell script and whose
// settings point at a fake control surface.
func newFixture(t *testing.T, script string) *fixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("relay scenarios use /bin/sh")
	}
	dir := t.TempDir()
	store := settings.NewStore(filepath.Join(dir, "relay_config.ini"))
	sup := supervisor.New(supervisor.Options{
		Command:     supervisor.Command{Path: "/bin/sh", Args: []string{"-c", script}},
		DataDir:     filepath.Join(dir, "data"),
		GracePeriod: 100 * time.Millisecond,
		StopTimeout: 2 * time.Second,
	})
	j := &memJournal{}
	c := New(Options{Store: store, Supervisor: sup, Journal: j})

	r := newFakeRelay(t)
	host, port := r.hostPort()
	require.NoError(t, c.Edit("server.host", host))
	require.NoError(t, c.Edit("server.port", port))

	t.Cleanup(func() { c.Shutdown() })
	return &fixture{c: c, journal: j, store: store, relay: r}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	c := New(Options{Store: settings.NewStore(filepath.Join(t.TempDir(), "relay_config.ini")), Supervisor: supervisor.New(supervisor.Options{})})

	require.NoError(t, c.Load())
	doc := c.Document()
	assert.Equal(t, "localhost", doc.Server.Host)
	assert.Equal(t, 5001, doc.Server.Port)
	assert.False(t, doc.Server.MemcachedEnabled)
	assert.True(t, doc.RateLimit.Enabled)
	assert.Equal(t, 500, doc.RateLimit.Value)
	assert.Equal(t, settings.PerMinute, doc.RateLimit.Period)
	assert.False(t, doc.Models.PermitSubsetOnly)
	assert.Equal(t, StatusStopped, c.Status())
}

func TestDocument_ReturnsCopy(t *testing.T) {
	f := newFixture(t, `sleep 30`)

	doc := f.c.Document()
	doc.Server.Host = "example.invalid"
	assert.NotEqual(t, "example.invalid", f.c.Document().Server.Host)
}

func TestEdit_RejectsInvalidValue(t *testing.T) {
	f := newFixture(t, `sleep 30`)

	var verr *settings.ValidationError
	assert.ErrorAs(t, f.c.Edit("ratelimit.value", "1001"), &verr)
	assert.Equal(t, 500, f.c.Document().RateLimit.Value)
}

func TestSave_PersistsWorkingCopy(t *testing.T) {
	f := newFixture(t, `sleep 30`)
	require.NoError(t, f.c.Edit("ratelimit.period", "per hour"))

	require.NoError(t, f.c.Save())

	doc, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, settings.PerHour, doc.RateLimit.Period)
	assert.Equal(t, []string{journal.KindSave}, f.journal.kinds())
}

func TestSave_SurfacesSaveError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	j := &memJournal{}
	c := New(Options{
		Store:      settings.NewStore(filepath.Join(blocker, "relay_config.ini")),
		Supervisor: supervisor.New(supervisor.Options{}),
		Journal:    j,
	})

	var saveErr *settings.SaveError
	assert.ErrorAs(t, c.Save(), &saveErr)
	assert.Equal(t, []string{journal.KindSaveFailed}, j.kinds())

	// Start refuses to launch with settings it could not save.
	_, err := c.Start(context.Background())
	assert.ErrorAs(t, err, &saveErr)
}

func TestStart_SavesThenRuns(t *testing.T) {
	f := newFixture(t, `sleep 30`)
	require.False(t, f.store.Exists())

	h, err := f.c.Start(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.True(t, f.store.Exists(), "start saves the settings first")
	assert.Equal(t, StatusRunning, f.c.Status())
	assert.Equal(t, StatusRunning, f.c.CheckStatus())
	assert.Equal(t, f.relay.srv.URL, h.Endpoint())
	assert.Equal(t, []string{journal.KindSave, journal.KindStart}, f.journal.kinds())
}

func TestStart_AlreadyRunning(t *testing.T) {
	f := newFixture(t, `sleep 30`)

	h, err := f.c.Start(context.Background())
	require.NoError(t, err)

	_, err = f.c.Start(context.Background())
	assert.ErrorIs(t, err, supervisor.ErrAlreadyRunning)
	assert.Equal(t, h.PID, f.c.sup.Handle().PID)
}

func TestStart_FailureIsRecorded(t *testing.T) {
	f := newFixture(t, `echo "bind: address already in use" >&2; exit 1`)

	_, err := f.c.Start(context.Background())
	var sfe *supervisor.StartupFailedError
	require.ErrorAs(t, err, &sfe)
	assert.Equal(t, "bind: address already in use", sfe.Message)

	assert.Equal(t, StatusStopped, f.c.CheckStatus())
	assert.Equal(t, []string{journal.KindSave, journal.KindStartFailed}, f.journal.kinds())
}

func TestStop(t *testing.T) {
	f := newFixture(t, `sleep 30`)
	_, err := f.c.Start(context.Background())
	require.NoError(t, err)

	info, err := f.c.Stop()
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.False(t, info.Forced)
	assert.Equal(t, StatusStopped, f.c.Status())

	// A second stop is a no-op.
	info, err = f.c.Stop()
	assert.NoError(t, err)
	assert.Nil(t, info)
	assert.Equal(t, []string{journal.KindSave, journal.KindStart, journal.KindStop}, f.journal.kinds())
}

func TestToggle(t *testing.T) {
	f := newFixture(t, `sleep 30`)

	started, err := f.c.Toggle(context.Background())
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, f.c.sup.IsRunning())

	started, err = f.c.Toggle(context.Background())
	require.NoError(t, err)
	assert.False(t, started)
	assert.False(t, f.c.sup.IsRunning())
}

func TestPoll(t *testing.T) {
	f := newFixture(t, `sleep 30`)

	assert.Equal(t, StatusStopped, f.c.Poll(context.Background()))
	assert.Zero(t, f.relay.hits.Load(), "a stopped relay is not health checked")

	_, err := f.c.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, f.c.Poll(context.Background()))

	f.relay.health.Store(http.StatusInternalServerError)
	assert.Equal(t, StatusError, f.c.Poll(context.Background()))

	f.relay.srv.Close()
	assert.Equal(t, StatusNotResponding, f.c.Poll(context.Background()))
	assert.Equal(t, StatusNotResponding, f.c.Status())
}

func TestPoll_OvertakenByStop(t *testing.T) {
	f := newFixture(t, `sleep 30`)

	_, err := f.c.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusRunning, f.c.Status())

	f.relay.delay.Store(int64(600 * time.Millisecond))
	polled := make(chan Status, 1)
	go func() { polled <- f.c.Poll(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	_, err = f.c.Stop()
	require.NoError(t, err)

	assert.Equal(t, StatusStopped, <-polled)
	assert.Equal(t, StatusStopped, f.c.Status(), "a poll begun before the stop must not overwrite it")
	assert.Equal(t, StatusStopped, f.c.CheckStatus())
}

func TestPoll_CancelledContextKeepsStatus(t *testing.T) {
	f := newFixture(t, `sleep 30`)

	_, err := f.c.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusRunning, f.c.Status())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, StatusRunning, f.c.Poll(ctx))
	assert.Equal(t, StatusRunning, f.c.Status())
}

func TestPoll_RelayExitedOnItsOwn(t *testing.T) {
	f := newFixture(t, `sleep 0.3`)

	h, err := f.c.Start(context.Background())
	require.NoError(t, err)
	<-h.Done()

	assert.Equal(t, StatusStopped, f.c.Poll(context.Background()))
}

func TestApply(t *testing.T) {
	f := newFixture(t, `sleep 30`)

	err := f.c.Apply(context.Background())
	assert.ErrorIs(t, err, relay.ErrNotRunning)
	assert.Zero(t, f.relay.hits.Load())

	_, err = f.c.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.c.Edit("ratelimit.value", "120"))
	require.NoError(t, f.c.Edit("server.memcached_enabled", "true"))
	require.NoError(t, f.c.Apply(context.Background()))

	assert.Equal(t, int32(1), f.relay.applied.Load())
	cfg := f.relay.lastCfg.Load().(relay.LiveConfig)
	assert.Equal(t, 120, cfg.RateLimit.Value)
	assert.True(t, cfg.MemcachedEnabled)
	assert.Contains(t, f.journal.kinds(), journal.KindApply)
}

func TestApply_UsesStartedEndpoint(t *testing.T) {
	f := newFixture(t, `sleep 30`)
	_, err := f.c.Start(context.Background())
	require.NoError(t, err)

	// Editing the port after start does not redirect live updates.
	require.NoError(t, f.c.Edit("server.port", "1"))
	require.NoError(t, f.c.Apply(context.Background()))
	assert.Equal(t, int32(1), f.relay.applied.Load())
}

func TestApply_FailureIsRecorded(t *testing.T) {
	f := newFixture(t, `sleep 30`)
	_, err := f.c.Start(context.Background())
	require.NoError(t, err)
	f.relay.srv.Close()

	var applyErr *relay.ApplyError
	assert.ErrorAs(t, f.c.Apply(context.Background()), &applyErr)
	assert.Contains(t, f.journal.kinds(), journal.KindApplyFailed)
}

func TestRefreshModels(t *testing.T) {
	f := newFixture(t, `sleep 30`)

	_, err := f.c.RefreshModels(context.Background())
	assert.ErrorIs(t, err, relay.ErrNotRunning)
	assert.Zero(t, f.relay.hits.Load())

	_, err = f.c.Start(context.Background())
	require.NoError(t, err)

	models, err := f.c.RefreshModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"mistral-nemo", "gpt-4o-mini"}, models)
}

func TestWatch_EmitsChanges(t *testing.T) {
	f := newFixture(t, `sleep 30`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := f.c.Watch(ctx, 50*time.Millisecond)
	next := func() Status {
		select {
		case s := <-updates:
			return s
		case <-time.After(5 * time.Second):
			t.Fatal("no status update")
			return ""
		}
	}

	assert.Equal(t, StatusStopped, next())

	_, err := f.c.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, next())

	f.relay.health.Store(http.StatusServiceUnavailable)
	assert.Equal(t, StatusError, next())

	cancel()
	for range updates {
	}
}

func TestShutdown(t *testing.T) {
	f := newFixture(t, `sleep 30`)
	require.NoError(t, f.c.Shutdown(), "nothing to stop")

	_, err := f.c.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.c.Shutdown())
	assert.False(t, f.c.sup.IsRunning())
	assert.Nil(t, f.c.sup.Handle())
}

func TestReset(t *testing.T) {
	f := newFixture(t, `sleep 30`)
	f.c.Reset()
	assert.Equal(t, settings.Defaults(), f.c.Document())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusStopped, StatusFor(false, relay.Healthy))
	assert.Equal(t, StatusRunning, StatusFor(true, relay.Healthy))
	assert.Equal(t, StatusError, StatusFor(true, relay.Unhealthy))
	assert.Equal(t, StatusNotResponding, StatusFor(true, relay.Unreachable))
}

func TestController_WithSQLiteJournal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relay scenarios use /bin/sh")
	}
	dir := t.TempDir()
	j, err := journal.Open(dir)
	require.NoError(t, err)
	defer j.Close()

	r := newFakeRelay(t)
	host, port := r.hostPort()
	c := New(Options{
		Store: settings.NewStore(filepath.Join(dir, "relay_config.ini")),
		Supervisor: supervisor.New(supervisor.Options{
			Command:     supervisor.Command{Path: "/bin/sh", Args: []string{"-c", "sleep 30"}},
			GracePeriod: 100 * time.Millisecond,
		}),
		Journal: j,
	})
	require.NoError(t, c.Edit("server.host", host))
	require.NoError(t, c.Edit("server.port", port))

	h, err := c.Start(context.Background())
	require.NoError(t, err)
	_, err = c.Stop()
	require.NoError(t, err)

	events, err := j.ForRun(h.RunID)
	require.NoError(t, err)
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, journal.KindStart)
	assert.Contains(t, kinds, journal.KindStop)
}
