// Package main provides the REST API server for workflow authoring and
// execution monitoring.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "jobdeck-api",
		EnableShellCompletion: true,
		Usage:                 "Serve the workflow automation REST API",
		Commands: []*cli.Command{
			RunAPICommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
