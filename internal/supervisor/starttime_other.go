//go:build !linux

package supervisor

// processStartTicks is unavailable off Linux; 0 disables the start time
// comparison and liveness falls back to the PID alone.
func processStartTicks(_ int) int64 {
	return 0
}
