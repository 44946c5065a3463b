// Command relmap compiles nested records into SQL statements, document
// commands and change logs.
package main

import (
	"os"

	"github.com/roach88/relmap/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
