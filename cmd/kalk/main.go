package main

import (
	"os"

	"github.com/felixgeelhaar/kalk/internal/infrastructure/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.Report(os.Stderr, err))
	}
}
