// Command sweeps runs parameter sweeps of an external program.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/sweeps/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
