// Command rtigen generates real-time iteration NMPC solvers in C.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rtigen/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
