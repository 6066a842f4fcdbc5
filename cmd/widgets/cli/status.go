package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check if the widgets server is running",
		Long:  "Report the server process state and probe its /healthz and /readyz endpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if pid, err := readPID(); err == nil {
		if isProcessRunning(pid) {
			fmt.Printf("Server process is running (PID %d)\n", pid)
		} else {
			removePID()
			fmt.Println("Server process is not running (stale PID file removed).")
		}
	}

	base := fmt.Sprintf("http://%s:%d", localHost(cfg.Server.Host), cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(base + "/healthz")
	if err != nil {
		fmt.Printf("Server is not responding at %s\n", base)
		return nil
	}
	resp.Body.Close()
	fmt.Printf("  Health:  %s/healthz (%d)\n", base, resp.StatusCode)

	resp, err = client.Get(base + "/readyz")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	var ready struct {
		Status string `json:"status"`
		Driver string `json:"driver"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ready); err == nil {
		fmt.Printf("  Ready:   %s (driver %s)\n", ready.Status, ready.Driver)
	}
	return nil
}
