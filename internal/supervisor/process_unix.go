//go:build !windows

package supervisor

import (
	"os"
	"syscall"
)

// getSysProcAttr puts the relay in its own process group so a Ctrl-C aimed
// at the panel does not reach it, and so workers the relay forks can be
// signalled together with it.
func getSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// terminate asks the relay's process group to exit.
func terminate(p *os.Process) error {
	return signalGroup(p, syscall.SIGTERM)
}

// kill forcibly ends the relay's process group.
func kill(p *os.Process) error {
	return signalGroup(p, syscall.SIGKILL)
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	if err := syscall.Kill(-p.Pid, sig); err == nil {
		return nil
	}
	// Not a group leader (or already gone): signal the process alone.
	return p.Signal(sig)
}
