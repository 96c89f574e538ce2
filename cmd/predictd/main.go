package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "predictd",
		Usage: "CS2 prediction pipeline scheduler and evaluation API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "pipelines",
				Aliases: []string{"p"},
				Usage:   "trigger table file (overrides PIPELINES_FILE)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			runCommand(),
			validateCommand(),
			statusCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
