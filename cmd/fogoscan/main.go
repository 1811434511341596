package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "fogoscan",
		Usage: "Fogo validator explorer CLI",
		Description: `A command-line tool for the fogoscan explorer service.

Use this CLI to list validators, inspect cached vote history, stream scans,
start backfills and tail scan events from NATS.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			validatorsCommand(),
			statusCommand(),
			monthCommand(),
			detailsCommand(),
			scanCommand(),
			backfillCommand(),
			// NATS scan event commands
			{
				Name:  "nats",
				Usage: "NATS scan event commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Explorer server URL",
				EnvVars: []string{"FOGOSCAN_SERVER_URL"},
				Value:   "http://localhost:3000",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "Filter JSON output with a jq expression (implies --json)",
			},
		},
	}
}
