package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const stopPollInterval = 100 * time.Millisecond

func newStopCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running widgets server",
		Long: `Send a graceful shutdown signal to the server started with 'widgets serve'
and wait for in-flight key checks and widget requests to drain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for the server to exit")

	return cmd
}

func runStop(timeout time.Duration) error {
	pid, err := readPID()
	if err != nil {
		return fmt.Errorf("no running widgets server (missing PID file at %s)", pidFilePath())
	}

	if !isProcessRunning(pid) {
		removePID()
		return fmt.Errorf("widgets server (PID %d) is not running; removed stale PID file", pid)
	}

	fmt.Printf("Stopping widgets server (PID %d)...\n", pid)

	if err := stopProcess(pid); err != nil {
		return fmt.Errorf("signal widgets server: %w", err)
	}

	if !waitForExit(pid, timeout, isProcessRunning) {
		return fmt.Errorf("widgets server (PID %d) still running after %s; it may be draining connections", pid, timeout)
	}
	removePID()
	fmt.Println("Server stopped.")
	return nil
}

// waitForExit polls alive until pid is gone or timeout passes.
func waitForExit(pid int, timeout time.Duration, alive func(int) bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !alive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(stopPollInterval)
	}
}
