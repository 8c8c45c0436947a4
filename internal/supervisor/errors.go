package supervisor

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Start while a relay is already held.
var ErrAlreadyRunning = errors.New("relay server is already running")

// StartupFailedError reports a relay that exited during the grace period.
// Message is the captured stderr, or the exit status when stderr was empty.
type StartupFailedError struct {
	Message  string
	ExitCode int
	Err      error
}

func (e *StartupFailedError) Error() string {
	return "relay server failed to start: " + e.Message
}

func (e *StartupFailedError) Unwrap() error { return e.Err }

// StopError reports a failure to signal the relay process.
type StopError struct {
	PID int
	Err error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("failed to stop relay (pid %d): %v", e.PID, e.Err)
}

func (e *StopError) Unwrap() error { return e.Err }
