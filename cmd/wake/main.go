// Command wake is the operational CLI for the activity feed engine:
// definition tooling (validate, compile), the resident engine (run),
// scheduler and admin operations (post, collect, reset, prune, feed)
// and the scenario harness (test).
package main

import (
	"fmt"
	"os"

	"github.com/wakefeed/wake/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
