//go:build !windows

package cli

import (
	"errors"
	"os"
	"syscall"
)

// isProcessRunning sends signal 0 to pid. EPERM means the process exists but
// belongs to another user, which still counts as running.
func isProcessRunning(pid int) bool {
	err := signalPID(pid, syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// stopProcess asks the server to shut down gracefully.
func stopProcess(pid int) error {
	return signalPID(pid, syscall.SIGTERM)
}

func signalPID(pid int, sig os.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}
