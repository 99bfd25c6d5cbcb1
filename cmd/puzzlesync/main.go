// Command puzzlesync runs the puzzle session relay and participants.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/puzzlesync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
