//go:build windows

package cli

import (
	"os"
	"os/exec"
)

// detach is a no-op on Windows. Run the server under a service wrapper such
// as NSSM for production use.
func detach(cmd *exec.Cmd) {}

// isProcessRunning reports whether pid can be opened. FindProcess calls
// OpenProcess on Windows, which fails once the process has exited.
func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	proc.Release()
	return true
}

// stopProcess kills the process; Windows has no SIGTERM.
func stopProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
