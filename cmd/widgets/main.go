// Command widgets runs the widgets API and manages its API keys.
package main

import (
	"fmt"
	"os"

	"github.com/faucetdb/widgets/cmd/widgets/cli"
)

// Stamped by the release build with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	build := cli.Build{Version: version, Commit: commit, Date: date}
	if err := cli.Execute(build); err != nil {
		fmt.Fprintln(os.Stderr, "widgets:", err)
		os.Exit(1)
	}
}
