package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	natspkg "github.com/brojonat/fogoscan/service/nats"
)

// subscribeCommand tails scan events mirrored to JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Tail scan events for a validator (or all validators)",
		ArgsUsage: "[vote_address]",
		Description: `Subscribe to scan progress events published to NATS JetStream.

Events are published to the subject: scans.{vote_address}

Example:
  fogoscan nats subscribe 5BAi9YGCipHq4ZcXuen5vagRQqRTVTRszXNqBZC6uBPZ --json`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Stop after this long (0 runs until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return fmt.Errorf("at most one vote address is allowed")
			}
			address := c.Args().First()

			p, err := newPrinter(c)
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelError,
			}))
			sub, err := natspkg.NewSubscriber(c.String("nats-url"), logger)
			if err != nil {
				return err
			}
			defer sub.Close()

			// Create context that cancels on interrupt
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout := c.Duration("timeout"); timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			if !p.json {
				target := address
				if target == "" {
					target = "all validators"
				}
				fmt.Fprintf(os.Stderr, "Tailing scan events for %s... (Ctrl+C to stop)\n\n", target)
			}

			return sub.Tail(ctx, address, func(ev *natspkg.ScanEvent) {
				if p.json {
					if err := p.line(ev); err != nil {
						fmt.Fprintf(os.Stderr, "Error handling event: %v\n", err)
					}
					return
				}
				printScanEvent(p, ev)
			})
		},
	}
}

func printScanEvent(p *printer, ev *natspkg.ScanEvent) {
	var total int
	for _, m := range ev.Months {
		total += m.Total
	}
	ts := ev.PublishedAt.Format(time.RFC3339)
	switch {
	case ev.Message != "":
		fmt.Fprintf(p.w, "[%s] %s %s: %s\n", ts, ev.VoteAddress, ev.Type, ev.Message)
	case ev.BatchNum > 0:
		fmt.Fprintf(p.w, "[%s] %s %s %d: %d transaction(s) across %d month(s)\n", ts, ev.VoteAddress, ev.Type, ev.BatchNum, total, len(ev.Months))
	default:
		fmt.Fprintf(p.w, "[%s] %s %s: %d transaction(s) across %d month(s)\n", ts, ev.VoteAddress, ev.Type, total, len(ev.Months))
	}
}
