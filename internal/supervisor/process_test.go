package supervisor

import (
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsProcessAlive_CurrentProcess(t *testing.T) {
	assert.True(t, IsProcessAlive(os.Getpid()))
}

func TestIsProcessAlive_InvalidPID(t *testing.T) {
	assert.False(t, IsProcessAlive(0))
	assert.False(t, IsProcessAlive(-1))
}

func TestIsProcessAlive_NonExistentPID(t *testing.T) {
	assert.False(t, IsProcessAlive(999999999))
}

func TestStopPID_InvalidPID(t *testing.T) {
	_, err := StopPID(0, time.Second)
	assert.Error(t, err)
}

// spawnForeign starts a process the way another panel would have, reaping
// it in the background so it does not linger as a zombie.
func spawnForeign(t *testing.T, script string) int {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	cmd := exec.Command("/bin/sh", "-c", script)
	cmd.SysProcAttr = getSysProcAttr()
	require.NoError(t, cmd.Start())
	go cmd.Wait()
	t.Cleanup(func() { _ = kill(cmd.Process) })
	return cmd.Process.Pid
}

func TestStopPID_Graceful(t *testing.T) {
	pid := spawnForeign(t, `sleep 30`)

	forced, err := StopPID(pid, 2*time.Second)
	require.NoError(t, err)
	assert.False(t, forced)
	assert.False(t, IsProcessAlive(pid))
}

func TestStopPID_EscalatesToKill(t *testing.T) {
	pid := spawnForeign(t, `trap "" TERM; while :; do sleep 0.1; done`)
	// Give the shell time to install the trap.
	time.Sleep(100 * time.Millisecond)

	forced, err := StopPID(pid, 300*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, forced)
	assert.False(t, IsProcessAlive(pid))
}

func TestProcessStartTicks(t *testing.T) {
	ticks := processStartTicks(os.Getpid())
	if runtime.GOOS == "linux" {
		assert.Positive(t, ticks)
	} else {
		assert.Zero(t, ticks)
	}
	assert.Zero(t, processStartTicks(999999999))
}
