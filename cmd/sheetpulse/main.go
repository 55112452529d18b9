// Command sheetpulse refreshes tag-driven spreadsheet dashboards from
// Jira. See `sheetpulse refresh --help`.
package main

import (
	"fmt"
	"os"
)

// Version information - set by goreleaser via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
