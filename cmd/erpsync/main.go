// Command erpsync runs the bidirectional document sync engine: one-shot
// reconciliation passes, the webhook intake server and queue worker, and
// operational inspection of sync records and conflicts.
package main

import (
	"fmt"
	"os"

	"github.com/agentworkforce/erpsync/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
