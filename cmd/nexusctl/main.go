package main

import (
	"fmt"
	"os"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
