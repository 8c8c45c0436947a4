package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"
)

// IsProcessAlive checks if a process with the given PID is still running.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if the process exists without killing it.
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// StopPID terminates a process this relayctl instance did not spawn, such
// as the relay recorded in the state file by another panel. It sends the
// graceful signal, polls for exit up to timeout, then kills and polls again.
// forced reports whether the kill was needed.
func StopPID(pid int, timeout time.Duration) (forced bool, err error) {
	if pid <= 0 {
		return false, fmt.Errorf("invalid PID: %d", pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := terminate(proc); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return false, &StopError{PID: pid, Err: fmt.Errorf("sending termination signal: %w", err)}
	}
	if waitForExit(pid, timeout) {
		return false, nil
	}

	slog.Warn("Process ignored termination signal, killing", "pid", pid, "timeout", timeout)
	if err := kill(proc); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return true, &StopError{PID: pid, Err: fmt.Errorf("killing: %w", err)}
	}
	if !waitForExit(pid, timeout) {
		return true, &StopError{PID: pid, Err: fmt.Errorf("process still alive after kill")}
	}
	return true, nil
}

// waitForExit polls until pid is gone or timeout elapses.
func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !IsProcessAlive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
}
