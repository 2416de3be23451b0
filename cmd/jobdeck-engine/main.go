// Package main provides the automation engine service: it consumes business
// events, runs matched workflows and sweeps suspended executions.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "jobdeck-engine",
		EnableShellCompletion: true,
		Usage:                 "Run workflow executions for incoming business events",
		Commands: []*cli.Command{
			NewRunCommand(),
			NewValidateCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
