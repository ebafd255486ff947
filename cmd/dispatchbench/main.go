// Command dispatchbench drives serial queues on a shared pool and reports
// throughput, optionally exposing Prometheus metrics while it runs.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "dispatchbench",
		Usage: "Benchmark serial dispatch queues on a shared goroutine pool",
		Commands: []*cli.Command{
			RunCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
