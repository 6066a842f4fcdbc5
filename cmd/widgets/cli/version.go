package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/faucetdb/widgets/internal/store"
)

// Build identifies the binary. main fills it from -ldflags; unset fields fall
// back to the VCS stamp the Go toolchain embeds.
type Build struct {
	Version string
	Commit  string
	Date    string
}

type versionInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	Built     string   `json:"built"`
	Modified  bool     `json:"modified,omitempty"`
	GoVersion string   `json:"go_version"`
	Platform  string   `json:"platform"`
	Drivers   []string `json:"database_drivers"`
}

func (b Build) info() versionInfo {
	v := versionInfo{
		Version:   b.Version,
		Commit:    b.Commit,
		Built:     b.Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Drivers:   store.Drivers(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if v.Commit == "" || v.Commit == "none" {
					v.Commit = s.Value
				}
			case "vcs.time":
				if v.Built == "" || v.Built == "unknown" {
					v.Built = s.Value
				}
			case "vcs.modified":
				v.Modified = s.Value == "true"
			}
		}
	}
	return v
}

func newVersionCmd(b Build) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the widgets build and the database drivers it supports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printVersion(cmd.OutOrStdout(), b.info(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	return cmd
}

func printVersion(w io.Writer, v versionInfo, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	commit := v.Commit
	if v.Modified {
		commit += " (modified)"
	}
	fmt.Fprintf(w, "widgets %s\n", v.Version)
	fmt.Fprintf(w, "  commit:   %s\n", commit)
	fmt.Fprintf(w, "  built:    %s\n", v.Built)
	fmt.Fprintf(w, "  go:       %s (%s)\n", v.GoVersion, v.Platform)
	fmt.Fprintf(w, "  drivers:  %s\n", strings.Join(v.Drivers, ", "))
	return nil
}
