// Command tipsync resolves tip amounts, replays reconciliation scenarios
// and inspects saved tip stores.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tipsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tipsync:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
