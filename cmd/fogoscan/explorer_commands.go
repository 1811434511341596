package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/fogoscan/client"
)

// lamportsPerToken converts activated stake to whole tokens for display.
var lamportsPerToken = decimal.New(1, 9)

func validatorsCommand() *cli.Command {
	return &cli.Command{
		Name:    "validators",
		Aliases: []string{"ls"},
		Usage:   "List validators, highest stake first",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "active-only",
				Usage: "Hide delinquent validators",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Show at most N validators (0 for all)",
			},
		},
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			p, err := newPrinter(c)
			if err != nil {
				return err
			}

			list, err := cl.Validators(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list validators: %w", err)
			}

			if c.Bool("active-only") {
				active := list[:0]
				for _, v := range list {
					if v.Active {
						active = append(active, v)
					}
				}
				list = active
			}
			if limit := c.Int("limit"); limit > 0 && len(list) > limit {
				list = list[:limit]
			}

			return p.print(list, func(w io.Writer) {
				printValidators(w, list)
			})
		},
	}
}

func printValidators(w io.Writer, list []client.Validator) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No validators found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVOTE ACCOUNT\tSTAKE\tCOMMISSION\tSTATUS")
	for _, v := range list {
		name := "-"
		if v.Name != nil {
			name = *v.Name
		}
		status := "active"
		if !v.Active {
			status = "delinquent"
		}
		stake := decimal.NewFromInt(int64(v.ActivatedStake)).Div(lamportsPerToken).StringFixed(2)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\n", name, v.VotePubkey, stake, v.Commission, status)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nTotal: %d validator(s)\n", len(list))
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show cached vote history for a validator without scanning",
		ArgsUsage: "VOTE_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("vote address is required")
			}
			address := c.Args().First()

			cl, err := newClient(c)
			if err != nil {
				return err
			}
			p, err := newPrinter(c)
			if err != nil {
				return err
			}

			status, err := cl.Status(c.Context, address)
			if err != nil {
				return fmt.Errorf("failed to get cache status: %w", err)
			}

			return p.print(status, func(w io.Writer) {
				if !status.Cached {
					fmt.Fprintf(w, "Nothing cached for %s\n", address)
					return
				}
				state := "partial"
				if status.Done {
					state = "complete"
				}
				fmt.Fprintf(w, "Vote account: %s (%s)\n\n", address, state)
				printMonths(w, status.Months)
			})
		},
	}
}

// printMonths renders month summaries newest first with a total row.
func printMonths(w io.Writer, months map[string]client.MonthSummary) {
	if len(months) == 0 {
		fmt.Fprintln(w, "No transactions recorded")
		return
	}

	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tSUCCESSFUL\tTOTAL\tFEES")
	var count, total int
	amount := decimal.Zero
	for _, k := range keys {
		m := months[k]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", k, m.Count, m.Total, m.Amount.String())
		count += m.Count
		total += m.Total
		amount = amount.Add(m.Amount)
	}
	fmt.Fprintf(tw, "TOTAL\t%d\t%d\t%s\n", count, total, amount.String())
	tw.Flush()
}

func monthCommand() *cli.Command {
	return &cli.Command{
		Name:      "month",
		Usage:     "List cached transactions of one month",
		ArgsUsage: "VOTE_ADDRESS YYYY-MM",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "failed",
				Usage: "Only show failed transactions",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("vote address and month are required")
			}
			address := c.Args().Get(0)
			month := c.Args().Get(1)

			cl, err := newClient(c)
			if err != nil {
				return err
			}
			p, err := newPrinter(c)
			if err != nil {
				return err
			}

			txs, err := cl.MonthTransactions(c.Context, address, month)
			if err != nil {
				return fmt.Errorf("failed to get month transactions: %w", err)
			}
			if c.Bool("failed") {
				failed := txs[:0]
				for _, tx := range txs {
					if tx.Failed() {
						failed = append(failed, tx)
					}
				}
				txs = failed
			}

			return p.print(txs, func(w io.Writer) {
				if len(txs) == 0 {
					fmt.Fprintf(w, "No transactions in %s\n", month)
					return
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "SIGNATURE\tSLOT\tBLOCK TIME\tSTATUS")
				for _, tx := range txs {
					bt := "-"
					if tx.BlockTime != nil {
						bt = time.Unix(*tx.BlockTime, 0).UTC().Format(time.RFC3339)
					}
					status := "ok"
					if tx.Failed() {
						status = "failed"
					}
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", tx.Signature, tx.Slot, bt, status)
				}
				tw.Flush()
				fmt.Fprintf(w, "\nTotal: %d transaction(s)\n", len(txs))
			})
		},
	}
}

func detailsCommand() *cli.Command {
	return &cli.Command{
		Name:      "details",
		Usage:     "Fetch fee, amount and instructions for transactions",
		ArgsUsage: "SIGNATURE [SIGNATURE...]",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("at least one signature is required")
			}

			cl, err := newClient(c)
			if err != nil {
				return err
			}
			p, err := newPrinter(c)
			if err != nil {
				return err
			}

			summaries, err := cl.Details(c.Context, c.Args().Slice())
			if err != nil {
				return fmt.Errorf("failed to get transaction details: %w", err)
			}

			return p.print(summaries, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "SIGNATURE\tAMOUNT\tFEE\tINSTRUCTIONS")
				for _, s := range summaries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Signature, s.Amount.String(), s.Fee.String(), strings.Join(s.Instructions, ", "))
				}
				tw.Flush()
			})
		},
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Scan a validator's vote history and stream progress",
		ArgsUsage: "VOTE_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("vote address is required")
			}
			address := c.Args().First()

			cl, err := newClient(c)
			if err != nil {
				return err
			}
			p, err := newPrinter(c)
			if err != nil {
				return err
			}

			var last client.ScanEvent
			err = cl.Scan(c.Context, address, func(ev client.ScanEvent) error {
				last = ev
				if p.json {
					return p.line(ev)
				}
				fmt.Fprintln(p.w, describeEvent(ev))
				return nil
			})
			if err != nil {
				return err
			}

			if !p.json && last.Months != nil {
				fmt.Fprintln(p.w)
				printMonths(p.w, last.Months)
			}
			return nil
		},
	}
}

func describeEvent(ev client.ScanEvent) string {
	var total int
	for _, m := range ev.Months {
		total += m.Total
	}
	switch ev.Type {
	case "cached":
		if ev.Done {
			return fmt.Sprintf("cached: %d transaction(s) across %d month(s), history complete", total, len(ev.Months))
		}
		return fmt.Sprintf("cached: %d transaction(s) across %d month(s), resuming", total, len(ev.Months))
	case "batch":
		return fmt.Sprintf("batch %d: %d transaction(s) across %d month(s)", ev.BatchNum, total, len(ev.Months))
	case "done":
		return fmt.Sprintf("done: %d transaction(s) across %d month(s)", total, len(ev.Months))
	}
	return ev.Type
}

func backfillCommand() *cli.Command {
	return &cli.Command{
		Name:      "backfill",
		Usage:     "Start a background backfill of a validator's vote history",
		ArgsUsage: "VOTE_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("vote address is required")
			}
			address := c.Args().First()

			cl, err := newClient(c)
			if err != nil {
				return err
			}
			p, err := newPrinter(c)
			if err != nil {
				return err
			}

			backfill, err := cl.StartBackfill(c.Context, address)
			if err != nil {
				return fmt.Errorf("failed to start backfill: %w", err)
			}

			return p.print(backfill, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Backfill started for %s\n", address)
				fmt.Fprintf(w, "  Workflow ID: %s\n", backfill.WorkflowID)
				fmt.Fprintf(w, "  Run ID:      %s\n", backfill.RunID)
			})
		},
	}
}
