package main

import (
	"fmt"
	"os"

	"github.com/roach88/trialkit/internal/cli"
)

func main() {
	// Commands report their own failures on stdout; the error here carries
	// the exit code and a one-line summary for stderr.
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
