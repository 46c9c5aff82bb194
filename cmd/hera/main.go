package main

import (
	"os"

	"github.com/smallbiznis/hera/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		cli.ReportUnrendered(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
