// Package supervisor owns the lifecycle of the relay server child process.
// It launches the relay with its configuration in the environment, decides
// whether it survived startup, answers liveness queries without blocking and
// stops it with a graceful signal that escalates to a kill.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/onemin-relay/relayctl/internal/settings"
)

// DefaultGracePeriod is how long Start waits before deciding the relay
// survived launch.
const DefaultGracePeriod = 2 * time.Second

// DefaultStopTimeout is how long Stop waits after the graceful signal
// before killing the relay.
const DefaultStopTimeout = 5 * time.Second

// outputWaitDelay bounds how long reaping waits for output pipes to drain.
const outputWaitDelay = 2 * time.Second

// Command is the relay entry point.
type Command struct {
	Path string
	Args []string
	Dir  string
}

// ParseCommand splits a command line such as "python3 main.py" on spaces.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("relay command is empty")
	}
	return Command{Path: fields[0], Args: fields[1:]}, nil
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Options configures a Supervisor.
type Options struct {
	Command Command

	// DataDir holds the state file and spawn lock. Empty disables both.
	DataDir string

	GracePeriod time.Duration
	StopTimeout time.Duration

	// Output receives the relay's stdout and stderr. Nil discards them.
	Output io.Writer
}

// Handle is the supervisor's reference to one running relay process.
type Handle struct {
	RunID     uuid.UUID
	PID       int
	Host      string
	Port      int
	StartedAt time.Time

	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
	stderr  *tailBuffer
}

// Endpoint returns the base URL the relay was configured to listen on.
func (h *Handle) Endpoint() string {
	return settings.Endpoint(h.Host, h.Port)
}

// Exited reports, without blocking, whether the process has exited.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Done is closed once the process has exited and been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Stderr returns the retained tail of the relay's stderr.
func (h *Handle) Stderr() string {
	return h.stderr.String()
}

// ExitInfo describes how a stopped relay ended.
type ExitInfo struct {
	RunID   uuid.UUID
	PID     int
	Uptime  time.Duration
	Forced  bool  // killed after ignoring the graceful signal
	Exited  bool  // had already exited before Stop was called
	ExitErr error // result of waiting on the process
}

// Supervisor holds at most one relay process. Lifecycle operations are
// serialised by mu; liveness reads go through an atomic pointer so they
// never wait on a Start in its grace period.
type Supervisor struct {
	opts   Options
	mu     sync.Mutex
	handle atomic.Pointer[Handle]
}

// New creates a Supervisor, filling in default timeouts.
func New(opts Options) *Supervisor {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	return &Supervisor{opts: opts}
}

// Handle returns the held relay, or nil.
func (s *Supervisor) Handle() *Handle {
	return s.handle.Load()
}

// IsRunning reports whether a relay is held and has not exited.
func (s *Supervisor) IsRunning() bool {
	h := s.handle.Load()
	return h != nil && !h.Exited()
}

// Start launches the relay configured by doc. It fails with
// ErrAlreadyRunning while a live relay is held (the held relay is not
// touched) or while another relayctl instance's recorded relay is alive.
// After launch it waits the grace period; a relay that exits in that window
// yields a *StartupFailedError carrying its stderr and no handle is kept.
// Surviving the grace period only means the process did not crash, not
// that it accepts connections.
func (s *Supervisor) Start(ctx context.Context, doc *settings.Document) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h := s.handle.Load(); h != nil {
		if !h.Exited() {
			return nil, ErrAlreadyRunning
		}
		slog.Debug("Reaping relay that exited on its own", "pid", h.PID, "error", h.waitErr)
		s.clearLocked(h)
	}

	if s.opts.Command.Path == "" {
		return nil, fmt.Errorf("no relay command configured")
	}

	if s.opts.DataDir != "" {
		lock, err := AcquireLock(s.opts.DataDir)
		if err != nil {
			if errors.Is(err, ErrSpawnInProgress) {
				return nil, fmt.Errorf("%w: %v", ErrAlreadyRunning, err)
			}
			return nil, err
		}
		defer lock.Release()

		state, err := ReadState(s.opts.DataDir)
		if err != nil {
			slog.Debug("Ignoring unreadable relay state", "error", err)
		}
		if state.IsRunning() {
			return nil, fmt.Errorf("%w (pid %d, started by relayctl pid %d)", ErrAlreadyRunning, state.PID, state.OwnerPID)
		}
	}

	h, err := s.launch(doc)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(s.opts.GracePeriod)
	defer timer.Stop()

	select {
	case <-h.done:
		return nil, startupFailure(h)
	case <-ctx.Done():
		_ = kill(h.cmd.Process)
		<-h.done
		return nil, ctx.Err()
	case <-timer.C:
	}

	if s.opts.DataDir != "" {
		state := &State{
			PID:        h.PID,
			RunID:      h.RunID.String(),
			Host:       h.Host,
			Port:       h.Port,
			OwnerPID:   os.Getpid(),
			StartTicks: processStartTicks(h.PID),
			StartedAt:  h.StartedAt,
		}
		if err := WriteState(s.opts.DataDir, state); err != nil {
			// Without a state file other invocations could spawn a second relay.
			_ = kill(h.cmd.Process)
			<-h.done
			return nil, err
		}
	}

	s.handle.Store(h)
	slog.Info("Relay started", "pid", h.PID, "run_id", h.RunID, "endpoint", h.Endpoint())
	return h, nil
}

func (s *Supervisor) launch(doc *settings.Document) (*Handle, error) {
	cmd := exec.Command(s.opts.Command.Path, s.opts.Command.Args...)
	cmd.Dir = s.opts.Command.Dir
	cmd.Env = MergeEnv(os.Environ(), Overlay(doc))
	cmd.SysProcAttr = getSysProcAttr()
	// Forked workers can hold the output pipes open after the relay exits.
	cmd.WaitDelay = outputWaitDelay

	out := &lockedWriter{w: s.opts.Output}
	stderr := newTailBuffer(stderrTailSize)
	cmd.Stdout = out
	cmd.Stderr = io.MultiWriter(stderr, out)

	if err := cmd.Start(); err != nil {
		return nil, &StartupFailedError{Message: err.Error(), ExitCode: -1, Err: err}
	}

	h := &Handle{
		RunID:     uuid.New(),
		PID:       cmd.Process.Pid,
		Host:      doc.Server.Host,
		Port:      doc.Server.Port,
		StartedAt: time.Now(),
		cmd:       cmd,
		done:      make(chan struct{}),
		stderr:    stderr,
	}
	go func() {
		h.waitErr = cmd.Wait()
		close(h.done)
	}()

	slog.Debug("Relay process launched", "pid", h.PID, "command", s.opts.Command.String(), "grace", s.opts.GracePeriod)
	return h, nil
}

func startupFailure(h *Handle) error {
	code := -1
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
	}

	msg := strings.TrimSpace(h.stderr.String())
	if msg == "" {
		if h.waitErr != nil {
			msg = fmt.Sprintf("process exited during startup: %v", h.waitErr)
		} else {
			msg = "process exited during startup with status 0"
		}
	}

	slog.Debug("Relay exited during grace period", "pid", h.PID, "exit_code", code)
	return &StartupFailedError{Message: msg, ExitCode: code, Err: h.waitErr}
}

// Stop ends the held relay: graceful signal, up to StopTimeout for it to
// exit, then a kill and an unbounded wait. The handle is cleared whatever
// the outcome. Without a handle Stop does nothing and returns nil, nil.
func (s *Supervisor) Stop() (*ExitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.handle.Load()
	if h == nil {
		return nil, nil
	}
	defer s.clearLocked(h)

	info := &ExitInfo{
		RunID:  h.RunID,
		PID:    h.PID,
		Uptime: time.Since(h.StartedAt),
	}

	if h.Exited() {
		info.Exited = true
		info.ExitErr = h.waitErr
		return info, nil
	}

	if err := terminate(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Debug("Graceful termination failed, escalating", "pid", h.PID, "error", err)
	} else {
		timer := time.NewTimer(s.opts.StopTimeout)
		defer timer.Stop()
		select {
		case <-h.done:
			info.ExitErr = h.waitErr
			slog.Info("Relay stopped", "pid", h.PID, "uptime", info.Uptime.Round(time.Second))
			return info, nil
		case <-timer.C:
		}
	}

	info.Forced = true
	slog.Warn("Relay did not exit in time, killing", "pid", h.PID, "timeout", s.opts.StopTimeout)
	if err := kill(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return info, &StopError{PID: h.PID, Err: err}
	}
	<-h.done
	info.ExitErr = h.waitErr
	slog.Info("Relay killed", "pid", h.PID)
	return info, nil
}

// clearLocked drops h and its state file. Callers hold s.mu.
func (s *Supervisor) clearLocked(h *Handle) {
	s.handle.CompareAndSwap(h, nil)
	if s.opts.DataDir != "" {
		if err := RemoveState(s.opts.DataDir); err != nil {
			slog.Warn("Failed to remove relay state", "error", err)
		}
	}
}
