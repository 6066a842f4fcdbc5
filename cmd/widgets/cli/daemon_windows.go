//go:build windows

package cli

import (
	"errors"
	"os"
)

// isProcessRunning reports whether a process is alive. Windows has no signal
// 0, so an interrupt is attempted and only ErrProcessDone counts as dead.
func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(os.Interrupt)
	return !errors.Is(err, os.ErrProcessDone)
}

// stopProcess kills the process on Windows (no graceful SIGTERM support).
func stopProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
