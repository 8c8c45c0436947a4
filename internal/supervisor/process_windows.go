//go:build windows

package supervisor

import (
	"os"
	"syscall"
)

// getSysProcAttr starts the relay in a new process group so console
// interrupts aimed at the panel do not reach it.
func getSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: 0x00000200, // CREATE_NEW_PROCESS_GROUP
	}
}

// terminate has no graceful variant on Windows; the process is killed.
func terminate(p *os.Process) error {
	return p.Kill()
}

func kill(p *os.Process) error {
	return p.Kill()
}
