package supervisor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrSpawnInProgress is returned by AcquireLock while another live relayctl
// process holds the spawn lock.
var ErrSpawnInProgress = errors.New("another relayctl process is starting the relay")

// Lock is a file-based lock held for the duration of a relay start.
type Lock struct {
	path string
	file *os.File
}

// LockPath returns the path to the spawn lock file inside dataDir.
func LockPath(dataDir string) string {
	return filepath.Join(dataDir, "spawn.lock")
}

// AcquireLock takes the spawn lock in dataDir. The lock is advisory and
// relies on O_CREATE|O_EXCL; a lock left behind by a dead process is
// reclaimed once.
func AcquireLock(dataDir string) (*Lock, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lockPath := LockPath(dataDir)
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to acquire spawn lock: %w", err)
		}
		if !isLockStale(lockPath) {
			return nil, ErrSpawnInProgress
		}
		os.Remove(lockPath)
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire spawn lock after removing stale lock: %w", err)
		}
	}

	// "<pid> <start ticks>" lets a later reader tell a recycled PID apart.
	pid := os.Getpid()
	fmt.Fprintf(file, "%d %d", pid, processStartTicks(pid))

	return &Lock{
		path: lockPath,
		file: file,
	}, nil
}

// Release releases the spawn lock.
func (l *Lock) Release() error {
	if l.file != nil {
		l.file.Close()
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release spawn lock: %w", err)
	}
	return nil
}

// isLockStale reports whether the process that wrote the lock is gone.
// Both "<pid>" and "<pid> <start ticks>" contents are understood.
func isLockStale(lockPath string) bool {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return true
	}

	var pid int
	var ticks int64
	n, _ := fmt.Sscanf(string(data), "%d %d", &pid, &ticks)
	if n == 0 {
		return true
	}

	owner := &State{PID: pid}
	if n == 2 {
		owner.StartTicks = ticks
	}
	return !owner.IsRunning()
}
