package preflight

import (
	"bufio"
	"context"
	"net"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/onemin-relay/relayctl/internal/settings"
	"github.com/onemin-relay/relayctl/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMemcached answers the text protocol "version" command.
func fakeMemcached(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if strings.TrimSpace(line) == "version" {
						c.Write([]byte("VERSION 1.6.21\r\n"))
					} else {
						c.Write([]byte("ERROR\r\n"))
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func lookupCheck(t *testing.T, r *Report, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q missing from report", name)
	return Check{}
}

func shellCommand() supervisor.Command {
	if runtime.GOOS == "windows" {
		return supervisor.Command{Path: "cmd"}
	}
	return supervisor.Command{Path: "sh"}
}

func TestRun_AllPass(t *testing.T) {
	doc := settings.Defaults()
	doc.Server.Host = "127.0.0.1"
	doc.Server.Port = freePort(t)
	doc.Server.MemcachedEnabled = true
	doc.Server.MemcachedURL = fakeMemcached(t)

	report, err := Run(context.Background(), Options{Doc: doc, Command: shellCommand()})
	require.NoError(t, err)
	require.Len(t, report.Checks, 4)
	assert.True(t, report.OK(), "%+v", report.Checks)

	names := []string{report.Checks[0].Name, report.Checks[1].Name, report.Checks[2].Name, report.Checks[3].Name}
	assert.Equal(t, []string{CheckSettings, CheckEntryPoint, CheckPort, CheckMemcached}, names)
	assert.Equal(t, Pass, lookupCheck(t, report, CheckMemcached).Status)
}

func TestRun_MemcachedDisabledIsSkipped(t *testing.T) {
	doc := settings.Defaults()
	doc.Server.Host = "127.0.0.1"
	doc.Server.Port = freePort(t)

	report, err := Run(context.Background(), Options{Doc: doc, Command: shellCommand()})
	require.NoError(t, err)
	assert.Equal(t, Skip, lookupCheck(t, report, CheckMemcached).Status)
	assert.True(t, report.OK())
}

func TestRun_MemcachedUnreachable(t *testing.T) {
	doc := settings.Defaults()
	doc.Server.Host = "127.0.0.1"
	doc.Server.Port = freePort(t)
	doc.Server.MemcachedEnabled = true
	doc.Server.MemcachedURL = net.JoinHostPort("127.0.0.1", strconv.Itoa(freePort(t)))

	report, err := Run(context.Background(), Options{Doc: doc, Command: shellCommand()})
	require.NoError(t, err)
	assert.Equal(t, Fail, lookupCheck(t, report, CheckMemcached).Status)
	assert.False(t, report.OK())
}

func TestRun_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	doc := settings.Defaults()
	doc.Server.Host = "127.0.0.1"
	doc.Server.Port = ln.Addr().(*net.TCPAddr).Port

	report, err := Run(context.Background(), Options{Doc: doc, Command: shellCommand()})
	require.NoError(t, err)
	port := lookupCheck(t, report, CheckPort)
	assert.Equal(t, Fail, port.Status)
	assert.Contains(t, port.Detail, "already in use")

	// The same port held by our own relay is expected.
	report, err = Run(context.Background(), Options{Doc: doc, Command: shellCommand(), RelayPID: 4242})
	require.NoError(t, err)
	port = lookupCheck(t, report, CheckPort)
	assert.Equal(t, Pass, port.Status)
	assert.Contains(t, port.Detail, "pid 4242")
}

func TestRun_EntryPointMissing(t *testing.T) {
	doc := settings.Defaults()
	doc.Server.Host = "127.0.0.1"
	doc.Server.Port = freePort(t)

	report, err := Run(context.Background(), Options{Doc: doc, Command: supervisor.Command{Path: "relay-server-that-does-not-exist"}})
	require.NoError(t, err)
	assert.Equal(t, Fail, lookupCheck(t, report, CheckEntryPoint).Status)

	report, err = Run(context.Background(), Options{Doc: doc})
	require.NoError(t, err)
	assert.Equal(t, "no relay command configured", lookupCheck(t, report, CheckEntryPoint).Detail)
}

func TestRun_InvalidSettings(t *testing.T) {
	doc := settings.Defaults()
	doc.Server.Host = "127.0.0.1"
	doc.Server.Port = freePort(t)
	doc.RateLimit.Value = 5000

	report, err := Run(context.Background(), Options{Doc: doc, Command: shellCommand()})
	require.NoError(t, err)
	assert.Equal(t, Fail, lookupCheck(t, report, CheckSettings).Status)
}

func TestRun_CancelledContext(t *testing.T) {
	doc := settings.Defaults()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Options{Doc: doc, Command: shellCommand()})
	assert.ErrorIs(t, err, context.Canceled)
}
